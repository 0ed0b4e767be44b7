package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/freekieb7/flint/auth"
	"github.com/freekieb7/flint/config"
	"github.com/freekieb7/flint/http"
	"github.com/freekieb7/flint/test"
)

func TestAppRoutes(t *testing.T) {
	a := newApp(config.Default(), slog.New(slog.DiscardHandler))
	test.NoError(t, a.server.Err())
	test.True(t, a.key != "")

	protected := map[string]bool{}
	for _, r := range a.server.Routes() {
		protected[r.Pattern] = r.Auth != nil
	}
	test.False(t, protected["/hello/{name}"])
	test.True(t, protected["/counter"])
	test.True(t, protected["/api/whoami"])
	test.False(t, protected["/api/ping"])
}

func TestCounterController(t *testing.T) {
	c := &counterController{}
	server := http.NewServer("test")
	server.Mount("/counter", c)
	test.NoError(t, server.Err())

	res := http.NewResponse()
	req := &http.Request{Auth: auth.BasicCredentials{User: "ann"}}
	for _, r := range server.Routes() {
		if r.Method&http.MethodPost != 0 {
			r.Handler(req, res)
		}
	}
	test.Equal(t, int64(1), c.n.Load())
	test.Contains(t, string(res.Body), `"user":"ann"`)
}

func TestRoutesCommand(t *testing.T) {
	cmd := routesCmd()
	cmd.Flags().String("config", "", "")

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	test.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	test.True(t, len(lines) > 5)
	test.Contains(t, out.String(), `/files/{name:[a-z0-9_-]+\.txt}`)
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	test.NoError(t, cmd.Execute())
	test.Equal(t, "dev\n", out.String())
}
