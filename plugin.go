package rw

import (
	"context"

	"github.com/GoCodeAlone/rw/event"
)

// Plugin is a named unit that does its setup when it is activated in a
// scope. Activation fires the plugin's init event once per scope.
//
//	var Cache = rw.NewPlugin("cache")
//
//	func init() {
//		Cache.Init("connect", func(ctx context.Context, _ ...any) (any, error) {
//			...
//		})
//	}
type Plugin struct {
	name     string
	activate *event.Event
}

// NewPlugin creates a plugin without init hooks.
func NewPlugin(name string) *Plugin {
	return &Plugin{
		name:     name,
		activate: event.New(name + ".activate"),
	}
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.name
}

// Init adds a hook run on activation.
func (p *Plugin) Init(name string, fn event.Func) *Plugin {
	p.activate.Add(name, fn)
	return p
}

// InitAsync adds a hook run concurrently with the other asynchronous
// hooks on activation.
func (p *Plugin) InitAsync(name string, fn event.Func) *Plugin {
	p.activate.AddAsync(name, fn)
	return p
}

// Activate runs the init hooks. Use scope.Activate to activate a plugin
// at most once per scope.
func (p *Plugin) Activate(ctx context.Context) error {
	_, err := p.activate.Fire(ctx)
	return err
}
