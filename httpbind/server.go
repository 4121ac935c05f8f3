// Package httpbind serves an rw application over HTTP.
//
// Every request runs in a request scope entered below the application
// scope. It holds the request, the response writer, the matched route's
// mount prefix, the URL variables (together and each under its own name)
// and the module declaring the route, so handlers read what they need
// from the context chain:
//
//	root.Get("/hello/<name>", "hello", func(ctx context.Context) error {
//		name, _ := scope.Value[string](ctx, "name")
//		_, err := fmt.Fprintf(httpbind.ResponseWriter(ctx), "hello %s", name)
//		return err
//	})
package httpbind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golobby/cast"

	"github.com/GoCodeAlone/rw"
	"github.com/GoCodeAlone/rw/config"
	"github.com/GoCodeAlone/rw/event"
	"github.com/GoCodeAlone/rw/internal/logging"
	"github.com/GoCodeAlone/rw/lifecycle"
	"github.com/GoCodeAlone/rw/routing"
	"github.com/GoCodeAlone/rw/scope"
)

// Static errors for httpbind package
var (
	ErrServerNotStarted = errors.New("HTTP server not started")
	ErrServerStarted    = errors.New("HTTP server already started")
	ErrInvalidPort      = errors.New("invalid port setting")
)

const (
	// ErrorHandlerKey is the scope key of an ErrorHandler replacing the
	// default error responses.
	ErrorHandlerKey = "rw.httpbind.error_handler"

	// SettingsCategory holds address, port and timeouts of the server.
	SettingsCategory = "rw.http"
)

// Config holds the listener settings.
type Config struct {
	Address         string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the settings used for keys missing from the
// rw.http category.
func DefaultConfig() Config {
	return Config{
		Address:         "127.0.0.1",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFromSettings reads the rw.http category over the defaults.
// Timeouts are durations like "10s".
func ConfigFromSettings(s config.Settings) (Config, error) {
	cfg := DefaultConfig()
	cfg.Address = s.String(SettingsCategory, "address", cfg.Address)
	if v, ok := s.Get(SettingsCategory, "port"); ok {
		port, err := cast.FromType(fmt.Sprint(v), reflect.TypeOf(0))
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidPort, v)
		}
		cfg.Port = port.(int)
	}
	for key, dst := range map[string]*time.Duration{
		"read_timeout":     &cfg.ReadTimeout,
		"write_timeout":    &cfg.WriteTimeout,
		"idle_timeout":     &cfg.IdleTimeout,
		"shutdown_timeout": &cfg.ShutdownTimeout,
	} {
		raw := s.String(SettingsCategory, key, "")
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("setting %s.%s: %w", SettingsCategory, key, err)
		}
		*dst = d
	}
	return cfg, nil
}

// ErrorHandler writes the response for a failed request. err is always an
// *HTTPError; for an unexpected failure its Status is 500 and Err holds
// the cause.
type ErrorHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request, err error)

// Server dispatches HTTP requests to the routes of an application.
type Server struct {
	app         *rw.Application
	logger      logging.Logger
	config      *Config
	metricsPath string

	router      *chi.Mux
	preRequest  *event.Event
	postRequest *event.Event

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger; the application logger is used otherwise.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithConfig replaces the settings read from the rw.http category.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.config = &cfg
	}
}

// WithMetricsPath serves the application metrics at path.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		s.metricsPath = path
	}
}

// New creates a server for app and subscribes it to the START phase,
// where it starts listening.
func New(app *rw.Application, opts ...Option) (*Server, error) {
	s := &Server{
		app:         app,
		preRequest:  event.New("PRE_REQUEST", event.WithObserver(app.Metrics().ObserveEvent)),
		postRequest: event.New("POST_REQUEST", event.WithObserver(app.Metrics().ObserveEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = app.Logger()
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.metricsPath != "" {
		s.router.Handle(s.metricsPath, app.MetricsHandler())
	}
	s.router.Handle("/*", http.HandlerFunc(s.dispatch))

	if err := app.On(lifecycle.PhaseStart, "rw.httpbind.listen", s.start); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// PreRequest subscribes fn to the event fired before each handler, in
// the request scope. A failing subscriber fails the request.
func (s *Server) PreRequest(name string, fn event.Func) {
	s.preRequest.Add(name, fn)
}

// PostRequest subscribes fn to the event fired after each handler, in
// the request scope, whether or not the handler failed.
func (s *Server) PostRequest(name string, fn event.Func) {
	s.postRequest.Add(name, fn)
}

// Addr returns the address the server listens on, or nil before START.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) start(ctx context.Context, _ ...any) (any, error) {
	cfg := s.config
	if cfg == nil {
		c, err := ConfigFromSettings(rw.SettingsFrom(ctx))
		if err != nil {
			return nil, err
		}
		cfg = &c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil, ErrServerStarted
	}
	addr := net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	base := context.WithoutCancel(ctx)
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	s.config = cfg

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	s.logger.Info("HTTP server listening", "address", ln.Addr().String())
	return nil, nil
}

// Shutdown stops the server gracefully, waiting at most the configured
// shutdown timeout for open requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cfg := s.server, s.config
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotStarted
	}

	s.logger.Info("Stopping HTTP server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	ctx := s.app.Context(r.Context())

	table := s.app.Table()
	if table == nil {
		s.fail(ctx, ww, r, NewHTTPError(http.StatusServiceUnavailable, "application not set up"))
		s.app.Metrics().ObserveRequest(r.Method, "", ww.Status(), time.Since(start))
		return
	}

	prefix, ep, args := table.FindRoute(r.Method, r.URL.Path)
	req := scope.New()
	// variables first so a variable never shadows a reserved key
	for k, v := range args {
		req.Set(k, v)
	}
	req.Set(rw.RequestKey, r)
	req.Set(rw.ResponseKey, http.ResponseWriter(ww))
	req.Set(routing.PrefixKey, prefix)
	req.Set(rw.URLVariablesKey, args)

	var routeName string
	var route *rw.Route
	if ep != nil {
		route = ep.Handler.(*rw.Route)
		routeName = joinName(prefix, ep.Name)
		req.Set(rw.ModuleKey, route.Module())
	}
	ctx = scope.Enter(ctx, req)
	r = r.WithContext(ctx)
	req.Set(rw.RequestKey, r)

	err := s.handle(ctx, ww, r, table, route)
	if _, postErr := s.postRequest.Fire(ctx); postErr != nil {
		s.logger.Error("Post request subscriber failed", "path", r.URL.Path, "error", postErr)
	}
	if err != nil {
		s.fail(ctx, ww, r, err)
	}
	s.app.Metrics().ObserveRequest(r.Method, routeName, ww.Status(), time.Since(start))
}

func (s *Server) handle(ctx context.Context, w http.ResponseWriter, r *http.Request, table *routing.Table, route *rw.Route) error {
	if _, err := s.preRequest.Fire(ctx); err != nil {
		return err
	}
	if route == nil {
		if allowed := table.Allowed(r.URL.Path); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			return NewHTTPError(http.StatusMethodNotAllowed, "")
		}
		return NewHTTPError(http.StatusNotFound, "")
	}
	return route.Handler(ctx)
}

func (s *Server) fail(ctx context.Context, w middleware.WrapResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(ctx), "error", err)
		httpErr = NewHTTPError(http.StatusInternalServerError, "")
		httpErr.Err = err
	}
	if h, lookupErr := scope.Value[ErrorHandler](ctx, ErrorHandlerKey); lookupErr == nil && h != nil {
		h(ctx, w, r, httpErr)
		return
	}
	if w.Status() != 0 {
		// headers are out, the status cannot change anymore
		return
	}
	http.Error(w, httpErr.Message, httpErr.Status)
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Request returns the request of the current request scope, or nil.
func Request(ctx context.Context) *http.Request {
	r, err := scope.Value[*http.Request](ctx, rw.RequestKey)
	if err != nil {
		return nil
	}
	return r
}

// ResponseWriter returns the response writer of the current request
// scope, or nil.
func ResponseWriter(ctx context.Context) http.ResponseWriter {
	w, err := scope.Value[http.ResponseWriter](ctx, rw.ResponseKey)
	if err != nil {
		return nil
	}
	return w
}
