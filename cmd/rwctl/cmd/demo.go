package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/rw"
	"github.com/GoCodeAlone/rw/httpbind"
	"github.com/GoCodeAlone/rw/registry"
	"github.com/GoCodeAlone/rw/routing"
	"github.com/GoCodeAlone/rw/scope"
)

// GreetingPath is the interface the demo greets through.
const GreetingPath = "demo.greeting"

// Greeter builds a greeting for a name.
type Greeter interface {
	Greet(name string) string
}

type formalGreeter struct{}

func (formalGreeter) PluginPath() string { return GreetingPath }

func (formalGreeter) Greet(name string) string {
	return "Good day, " + name + "."
}

// joinGreetings combines the greetings of every active greeter; with
// none active it falls back to a plain one.
func joinGreetings(args, results []any) (any, error) {
	if len(results) == 0 {
		return fmt.Sprintf("Hello, %v!", args[0]), nil
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprint(r))
	}
	return strings.Join(parts, " "), nil
}

// NewDemoApplication builds the application rwctl serves. Its greeter
// plugin is enabled with "demo.greeter: true" in the rw.plugins category.
func NewDemoApplication(opts ...rw.Option) (*rw.Application, error) {
	reg := registry.NewRegistry(nil)
	_, err := registry.DeclareFor[Greeter](reg, GreetingPath, registry.Multi,
		registry.WithPostProcess("Greet", joinGreetings),
		registry.WithDoc("Greet", "Greet returns a greeting for name."))
	if err != nil {
		return nil, err
	}

	greeter := rw.NewPlugin("demo.greeter").Init("activate", func(ctx context.Context, _ ...any) (any, error) {
		return nil, reg.Activate("", formalGreeter{})
	})

	api := rw.NewModule("demo.api")
	api.Get("/items/<id:int>", "item", showItem)

	root := rw.NewModule("demo")
	root.Get("/", "index", index)
	root.Get("/hello/<name>", "hello", hello)
	root.Post("/contact", "contact", contact)
	root.Mount("/api", api)

	opts = append([]rw.Option{rw.WithRegistry(reg), rw.WithPlugins(greeter)}, opts...)
	return rw.NewApplication("demo", root, opts...)
}

func index(ctx context.Context) error {
	hello, err := rw.URLFor(ctx, "hello", routing.Args{"name": "world"})
	if err != nil {
		return err
	}
	http.Redirect(httpbind.ResponseWriter(ctx), httpbind.Request(ctx), hello, http.StatusFound)
	return nil
}

type helloDeps struct {
	Registry *registry.Registry `scope:"rw.registry"`
	Name     string
}

var hello = scope.Injected(func(ctx context.Context, deps helloDeps) error {
	greeting, err := deps.Registry.Call(GreetingPath, "Greet", deps.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(httpbind.ResponseWriter(ctx), greeting)
	return err
})

func contact(ctx context.Context) error {
	reg, err := scope.Value[*registry.Registry](ctx, rw.RegistryKey)
	if err != nil {
		return err
	}
	r := httpbind.Request(ctx)
	to := r.FormValue("email")
	if to == "" {
		return httpbind.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	if err := rw.SendMail(ctx, reg, []string{to}, "Thanks for getting in touch", r.FormValue("message")); err != nil {
		return err
	}
	httpbind.ResponseWriter(ctx).WriteHeader(http.StatusAccepted)
	return nil
}

func showItem(ctx context.Context) error {
	id, err := scope.Value[int](ctx, "id")
	if err != nil {
		return err
	}
	self, err := rw.URLFor(ctx, ".item", routing.Args{"id": id})
	if err != nil {
		return err
	}
	w := httpbind.ResponseWriter(ctx)
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{"id": id, "url": self})
}
