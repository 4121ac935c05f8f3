package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rw"
	"github.com/GoCodeAlone/rw/cmd/rwctl/cmd"
	"github.com/GoCodeAlone/rw/httpbind"
	"github.com/GoCodeAlone/rw/registry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "rwctl runs the rw demo application")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "routes")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rwctl vdev")
}

func TestRoutesCommand(t *testing.T) {
	out, err := execute(t, "routes", "--env-prefix", "")
	require.NoError(t, err)
	assert.Contains(t, out, "METHOD")
	assert.Contains(t, out, "/hello/<name:str>")
	assert.Contains(t, out, "api.item")

	out, err = execute(t, "routes", "--json", "--env-prefix", "")
	require.NoError(t, err)
	var routes []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	require.NotEmpty(t, routes)
	names := make([]string, 0, len(routes))
	for _, r := range routes {
		names = append(names, r["name"])
	}
	assert.ElementsMatch(t, []string{"index", "hello", "contact", "api.item"}, names)
}

func TestPluginsCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rw.plugins:\n  demo.greeter: true\n"), 0o600))

	out, err := execute(t, "plugins", "--config", path, "--env-prefix", "")
	require.NoError(t, err)
	assert.Contains(t, out, "demo.greeting")
	assert.Contains(t, out, "rw.email")
	assert.Contains(t, out, "active: demo.greeter, demo, demo.api")
}

func TestRoutesCommand_BadConfig(t *testing.T) {
	_, err := execute(t, "routes", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func demoServer(t *testing.T, opts ...rw.Option) (*rw.Application, *httptest.Server) {
	t.Helper()
	app, err := cmd.NewDemoApplication(opts...)
	require.NoError(t, err)
	cfg := httpbind.DefaultConfig()
	cfg.Port = 0
	srv, err := httpbind.New(app, httpbind.WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, app.Run(context.Background()))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return app, ts
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestDemo_Greeting(t *testing.T) {
	_, ts := demoServer(t)
	resp, err := http.Get(ts.URL + "/hello/ann")
	require.NoError(t, err)
	assert.Equal(t, "Hello, ann!\n", body(t, resp))

	_, ts = demoServer(t, rw.WithSettings(map[string]map[string]any{
		rw.PluginsCategory: {"demo.greeter": true},
	}))
	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "Good day, world.\n", body(t, resp), "index redirects to the hello route")
}

func TestDemo_Item(t *testing.T) {
	_, ts := demoServer(t)
	resp, err := http.Get(ts.URL + "/api/items/7")
	require.NoError(t, err)
	var item map[string]any
	require.NoError(t, json.Unmarshal([]byte(body(t, resp)), &item))
	assert.EqualValues(t, 7, item["id"])
	assert.Equal(t, "/api/items/7", item["url"])
}

func TestDemo_Contact(t *testing.T) {
	app, ts := demoServer(t)

	resp, err := http.PostForm(ts.URL+"/contact", url.Values{"message": {"hi"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, strings.Contains(body(t, resp), "email is required"))

	resp, err = http.PostForm(ts.URL+"/contact", url.Values{"email": {"ann@example.com"}, "message": {"hi"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	mailer, err := registry.Get[rw.Mailer](app.Registry(), rw.EmailPath)
	require.NoError(t, err)
	sent := mailer.(*rw.LogMailer).Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"ann@example.com"}, sent[0].To)
	assert.Equal(t, "hi", sent[0].Body)
}
