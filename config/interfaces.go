// Package config loads application settings
//
// Settings are grouped in categories, each a mapping of keys to values:
//
//	rw:
//	  address: 127.0.0.1
//	  port: 8080
//	rw.plugins:
//	  rw.www: true
//
// Files are merged in the order given. Environment variables of the form
// PREFIX_CATEGORY__KEY override single keys.
package config

import (
	"sort"
)

// Settings maps category names to their key/value pairs
type Settings map[string]map[string]any

// Category returns the values of a category, or nil.
func (s Settings) Category(name string) map[string]any {
	return s[name]
}

// Get returns one value.
func (s Settings) Get(category, key string) (any, bool) {
	cat, ok := s[category]
	if !ok {
		return nil, false
	}
	v, ok := cat[key]
	return v, ok
}

// Set stores one value, creating the category as needed.
func (s Settings) Set(category, key string, value any) {
	cat, ok := s[category]
	if !ok {
		cat = make(map[string]any)
		s[category] = cat
	}
	cat[key] = value
}

// Bool returns a boolean value, or def when it is missing or not a bool.
func (s Settings) Bool(category, key string, def bool) bool {
	if v, ok := s.Get(category, key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// String returns a string value, or def.
func (s Settings) String(category, key, def string) string {
	if v, ok := s.Get(category, key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Categories returns the category names sorted.
func (s Settings) Categories() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the settings and their categories.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for name, cat := range s {
		c := make(map[string]any, len(cat))
		for k, v := range cat {
			c[k] = v
		}
		out[name] = c
	}
	return out
}

// ChangeCallback receives freshly read settings after a watched file changed
type ChangeCallback func(settings Settings, err error)
