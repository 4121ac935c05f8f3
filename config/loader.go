package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// Static errors for configuration package
var (
	ErrInvalidCategory = errors.New("config files must be in format {category: {key: value, ...}, ...}")
	ErrUnsupportedFile = errors.New("unsupported config file type")
	ErrInvalidEnvValue = errors.New("invalid environment override")
	ErrNoFilesToWatch  = errors.New("no config files to watch")
)

// ReadFiles reads and merges the given files in order. Later files
// override single keys of earlier ones.
func ReadFiles(paths ...string) (Settings, error) {
	settings := make(Settings)
	for _, path := range paths {
		raw, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := Merge(settings, raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return settings, nil
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := make(map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(&raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return raw, nil
}

// Merge merges raw, a decoded {category: {key: value}} document, into
// settings.
func Merge(settings Settings, raw map[string]any) error {
	for category, data := range raw {
		values, ok := data.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: category %q is %T", ErrInvalidCategory, category, data)
		}
		for key, value := range values {
			settings.Set(category, key, value)
		}
	}
	return nil
}

// ApplyEnv applies overrides from environ, given as KEY=value pairs like
// os.Environ returns them. A variable PREFIX_CATEGORY__KEY sets key in
// category; single underscores in the category name stand for dots and
// names are lower-cased, so RW_RW_PLUGINS__DEBUG sets "debug" in
// "rw.plugins". When the key already has a value the override is
// converted to that value's type.
func ApplyEnv(settings Settings, prefix string, environ []string) error {
	lead := strings.ToUpper(prefix) + "_"
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, lead) {
			continue
		}
		cat, key, ok := strings.Cut(strings.TrimPrefix(name, lead), "__")
		if !ok || cat == "" || key == "" {
			continue
		}
		category := strings.ReplaceAll(strings.ToLower(cat), "_", ".")
		key = strings.ToLower(key)

		var converted any = value
		if existing, ok := settings.Get(category, key); ok && existing != nil {
			if _, isString := existing.(string); !isString {
				v, err := convert(value, reflect.TypeOf(existing))
				if err != nil {
					return fmt.Errorf("%w: %s: %w", ErrInvalidEnvValue, name, err)
				}
				converted = v
			}
		}
		settings.Set(category, key, converted)
	}
	return nil
}

func convert(value string, typ reflect.Type) (any, error) {
	v, err := cast.FromType(value, typ)
	if err != nil {
		return nil, err
	}
	// cast yields the base kind; keep the exact type of the existing value
	rv := reflect.ValueOf(v)
	if rv.Type() != typ && rv.Type().ConvertibleTo(typ) {
		return rv.Convert(typ).Interface(), nil
	}
	return v, nil
}
