// Package rw is a request-processing runtime: applications are built from
// plugins and route-declaring modules, configured from files and the
// environment, and started through an ordered set of lifecycle phases.
//
//	root := rw.NewModule("shop")
//	root.Get("/item/<id:int>", "item", showItem)
//
//	app, err := rw.NewApplication("shop", root,
//		rw.WithConfigFiles("shop.yaml"),
//		rw.WithEnvPrefix("SHOP"),
//	)
//	...
//	err = app.Run(ctx)
//
// Everything an application publishes (itself, its settings, its plugin
// registry and routing table) lives in the application scope, which Run
// and Context put on the context chain.
package rw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"sort"
	"sync"

	"github.com/golobby/cast"

	"github.com/GoCodeAlone/rw/config"
	"github.com/GoCodeAlone/rw/event"
	"github.com/GoCodeAlone/rw/internal/logging"
	"github.com/GoCodeAlone/rw/internal/metrics"
	"github.com/GoCodeAlone/rw/lifecycle"
	"github.com/GoCodeAlone/rw/registry"
	"github.com/GoCodeAlone/rw/routing"
	"github.com/GoCodeAlone/rw/scope"
)

// Keys of the application scope.
const (
	AppKey      = "app"
	SettingsKey = "settings"
	RegistryKey = "rw.registry"
)

// PluginsCategory is the settings category enabling plugins by name.
const PluginsCategory = "rw.plugins"

// Application ties a root module, its plugins and settings to one
// lifecycle run.
type Application struct {
	name      string
	root      *Module
	logger    Logger
	files     []string
	envPrefix string
	environ   []string
	initial   config.Settings
	registry  *registry.Registry
	observers []EventObserver

	scope         *scope.Scope
	lifecycle     *lifecycle.Orchestrator
	metrics       *metrics.Recorder
	configChanged *event.Event

	mu       sync.RWMutex
	plugins  map[string]scope.Activator
	settings config.Settings
	table    *routing.Table
}

// Option represents a configuration option for the application
type Option func(*Application) error

// WithLogger sets the application logger.
func WithLogger(l Logger) Option {
	return func(a *Application) error {
		a.logger = l
		return nil
	}
}

// WithConfigFiles sets the config files read, in order, during the
// configuration phase.
func WithConfigFiles(paths ...string) Option {
	return func(a *Application) error {
		a.files = append(a.files, paths...)
		return nil
	}
}

// WithEnvPrefix enables environment overrides of the form
// PREFIX_CATEGORY__KEY.
func WithEnvPrefix(prefix string) Option {
	return func(a *Application) error {
		a.envPrefix = prefix
		return nil
	}
}

// WithEnviron replaces os.Environ as the source of environment overrides.
func WithEnviron(environ []string) Option {
	return func(a *Application) error {
		a.environ = environ
		return nil
	}
}

// WithSettings sets base settings that config files and the environment
// override.
func WithSettings(s config.Settings) Option {
	return func(a *Application) error {
		a.initial = s.Clone()
		return nil
	}
}

// WithRegistry makes the application use reg instead of a registry of its
// own.
func WithRegistry(reg *registry.Registry) Option {
	return func(a *Application) error {
		if reg == nil {
			return fmt.Errorf("%w: nil registry", registry.ErrImplementationNil)
		}
		a.registry = reg
		return nil
	}
}

// WithObserver adds an observer for the CloudEvents the application
// emits.
func WithObserver(obs EventObserver) Option {
	return func(a *Application) error {
		a.observers = append(a.observers, obs)
		return nil
	}
}

// WithPlugins registers plugins that the rw.plugins settings category
// can enable.
func WithPlugins(plugins ...scope.Activator) Option {
	return func(a *Application) error {
		for _, p := range plugins {
			if err := a.RegisterPlugin(p); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewApplication creates an application serving root.
func NewApplication(name string, root *Module, opts ...Option) (*Application, error) {
	if root == nil {
		return nil, ErrNoRootModule
	}
	a := &Application{
		name:    name,
		root:    root,
		plugins: make(map[string]scope.Activator),
		scope:   scope.New(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply application option: %w", err)
		}
	}
	a.logger = logging.OrDiscard(a.logger)
	if a.registry == nil {
		a.registry = registry.NewRegistry(&registry.Config{
			ConflictResolution: registry.ConflictResolutionError,
			Logger:             a.logger,
		})
	}
	_, err := registry.DeclareFor[Mailer](a.registry, EmailPath, registry.Single,
		registry.WithDoc("Send", "Send delivers one message to every recipient."))
	if err != nil && !errors.Is(err, registry.ErrInterfaceAlreadyDeclared) {
		return nil, fmt.Errorf("failed to declare mailer: %w", err)
	}

	a.lifecycle = lifecycle.New(
		lifecycle.WithLogger(a.logger),
		lifecycle.WithObserver(a.observePhase),
		lifecycle.WithEventObserver(a.metrics.ObserveEvent),
	)
	a.configChanged = event.New("rw.config_changed", event.WithObserver(a.metrics.ObserveEvent))

	a.scope.Set(AppKey, a)
	a.scope.Set(RegistryKey, a.registry)

	hooks := []struct {
		phase lifecycle.Phase
		name  string
		fn    event.Func
	}{
		{lifecycle.PhaseConfiguration, "rw.configure", a.configure},
		{lifecycle.PhaseSetup, "rw.routing", a.setupRouting},
		{lifecycle.PhaseSetup, "rw.email", a.setupMail},
	}
	for _, h := range hooks {
		if err := a.lifecycle.On(h.phase, h.name, h.fn); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Name returns the application name.
func (a *Application) Name() string { return a.name }

// Root returns the root module.
func (a *Application) Root() *Module { return a.root }

// Logger returns the application logger.
func (a *Application) Logger() Logger { return a.logger }

// Registry returns the plugin registry.
func (a *Application) Registry() *registry.Registry { return a.registry }

// Scope returns the application scope.
func (a *Application) Scope() *scope.Scope { return a.scope }

// Metrics returns the recorder instrumenting the application.
func (a *Application) Metrics() *metrics.Recorder { return a.metrics }

// MetricsHandler serves the application metrics in the Prometheus
// exposition format.
func (a *Application) MetricsHandler() http.Handler {
	return a.metrics.Handler()
}

// Settings returns the current settings, or nil before the configuration
// phase. The returned value must not be modified.
func (a *Application) Settings() config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// Table returns the finalized routing table, or nil before the setup
// phase.
func (a *Application) Table() *routing.Table {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.table
}

// History returns the lifecycle records produced so far.
func (a *Application) History() []lifecycle.Record {
	return a.lifecycle.History()
}

// RegisterPlugin makes p available to the rw.plugins settings category.
func (a *Application) RegisterPlugin(p scope.Activator) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.plugins[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrPluginRegistered, p.Name())
	}
	a.plugins[p.Name()] = p
	return nil
}

// On subscribes fn to a lifecycle phase. Subscribers run after the
// application's own hooks of the phase.
func (a *Application) On(p lifecycle.Phase, name string, fn event.Func) error {
	return a.lifecycle.On(p, name, fn)
}

// OnAsync subscribes fn to a lifecycle phase as asynchronous subscriber.
func (a *Application) OnAsync(p lifecycle.Phase, name string, fn event.Func) error {
	return a.lifecycle.OnAsync(p, name, fn)
}

// OnConfigChanged subscribes fn to settings reloads. It receives the new
// config.Settings as its only argument.
func (a *Application) OnConfigChanged(name string, fn event.Func) {
	a.configChanged.Add(name, fn)
}

// Context returns ctx with the application scope entered.
func (a *Application) Context(ctx context.Context) context.Context {
	return scope.Enter(ctx, a.scope)
}

// Run runs the lifecycle phases within the application scope. It can be
// called once.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("Starting application", "name", a.name)
	if err := a.lifecycle.Run(a.Context(ctx)); err != nil {
		return fmt.Errorf("application %s: %w", a.name, err)
	}
	return nil
}

// Watch reloads the settings whenever a config file changes, until ctx
// is done. Reloads fire the config changed event; plugins and routes
// are not reconfigured.
func (a *Application) Watch(ctx context.Context) error {
	if a.Settings() == nil {
		return ErrNotConfigured
	}
	ctx = a.Context(ctx)
	w, err := config.NewWatcher(a.files, func(fromFiles config.Settings, err error) {
		a.reload(ctx, fromFiles, err)
	}, a.logger)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}

func (a *Application) reload(ctx context.Context, fromFiles config.Settings, err error) {
	var settings config.Settings
	if err == nil {
		settings, err = a.buildSettings(fromFiles)
	}
	if err != nil {
		a.logger.Error("Failed to reload settings", "error", err)
		a.emit(NewCloudEvent(EventTypeConfigInvalid, a.name, map[string]string{"error": err.Error()}, nil))
		return
	}
	a.publishSettings(settings)
	a.logger.Info("Settings reloaded", "categories", settings.Categories())
	a.emit(NewCloudEvent(EventTypeConfigChanged, a.name, settings, nil))
	if _, err := a.configChanged.Fire(ctx, settings); err != nil {
		a.logger.Error("Config change subscriber failed", "error", err)
	}
}

func (a *Application) buildSettings(fromFiles config.Settings) (config.Settings, error) {
	settings := a.initial.Clone()
	for cat, values := range fromFiles {
		for k, v := range values {
			settings.Set(cat, k, v)
		}
	}
	if a.envPrefix != "" {
		environ := a.environ
		if environ == nil {
			environ = os.Environ()
		}
		if err := config.ApplyEnv(settings, a.envPrefix, environ); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func (a *Application) publishSettings(s config.Settings) {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	a.scope.Set(SettingsKey, s)
}

func (a *Application) configure(ctx context.Context, _ ...any) (any, error) {
	var fromFiles config.Settings
	if len(a.files) > 0 {
		var err error
		if fromFiles, err = config.ReadFiles(a.files...); err != nil {
			return nil, err
		}
	}
	settings, err := a.buildSettings(fromFiles)
	if err != nil {
		return nil, err
	}
	a.publishSettings(settings)

	enabled := settings.Category(PluginsCategory)
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		on, err := pluginFlag(enabled[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, name)
		}
		if !on {
			continue
		}
		a.mu.RLock()
		p, ok := a.plugins[name]
		a.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
		}
		if err := a.scope.Activate(ctx, p); err != nil {
			return nil, err
		}
		a.logger.Info("Activated plugin", "plugin", name)
	}

	for _, m := range a.root.Modules() {
		if err := a.scope.Activate(ctx, m); err != nil {
			return nil, err
		}
		a.logger.Debug("Activated module", "module", m.Name())
	}
	return nil, nil
}

func pluginFlag(v any) (bool, error) {
	switch flag := v.(type) {
	case bool:
		return flag, nil
	case string:
		b, err := cast.FromType(flag, reflect.TypeOf(true))
		if err != nil {
			return false, ErrInvalidPluginFlag
		}
		return b.(bool), nil
	}
	return false, ErrInvalidPluginFlag
}

func (a *Application) setupRouting(ctx context.Context, _ ...any) (any, error) {
	t, err := a.root.BuildTable(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.table = t
	a.mu.Unlock()
	a.scope.Set(routing.TableKey, t)
	a.logger.Info("Routing table built", "routes", len(t.Routes()))
	return nil, nil
}

func (a *Application) setupMail(_ context.Context, _ ...any) (any, error) {
	h, err := a.registry.Resolve(EmailPath)
	if err != nil {
		return nil, err
	}
	if h.Kind() != registry.KindStub {
		return nil, nil
	}
	if err := a.registry.Activate("", NewLogMailer(a.logger)); err != nil {
		return nil, err
	}
	a.logger.Info("No mailer activated, mail will be logged", "interface", EmailPath)
	return nil, nil
}

func (a *Application) observePhase(rec lifecycle.Record) {
	a.emit(phaseEvent(a.name, rec))
}

func (a *Application) emit(ev CloudEvent) {
	for _, obs := range a.observers {
		obs(ev)
	}
}

// AppFrom returns the application whose scope is on the chain of ctx.
func AppFrom(ctx context.Context) (*Application, error) {
	return scope.Value[*Application](ctx, AppKey)
}

// SettingsFrom returns the settings published on the chain of ctx, or
// nil.
func SettingsFrom(ctx context.Context) config.Settings {
	s, err := scope.Value[config.Settings](ctx, SettingsKey)
	if err != nil {
		return nil
	}
	return s
}
