package main

import (
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/freekieb7/flint/auth"
	"github.com/freekieb7/flint/config"
	"github.com/freekieb7/flint/http"
)

// app is the demo application served by the serve command.
type app struct {
	server *http.Server
	basic  *auth.Basic
	apiKey *auth.APIKey
	// key is the API key accepted by /api.
	key string
}

func newApp(cfg config.Config, logger *slog.Logger) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cfg.ServerOptions(),
		http.WithLogger(logger),
		http.WithRegistry(registry),
	)

	a := &app{
		basic:  auth.NewBasic(cfg.Server.Name),
		apiKey: auth.NewAPIKey(),
		key:    os.Getenv("FLINT_API_KEY"),
	}
	if a.key == "" {
		a.key = uuid.NewString()
	}

	user, password := os.Getenv("FLINT_BASIC_USER"), os.Getenv("FLINT_BASIC_PASSWORD")
	if user == "" {
		user, password = "admin", "admin"
	}
	a.basic.SetUser(user, password, 0)
	a.apiKey.SetKey(a.key, "demo", 0)

	interval := cfg.Auth.PruneInterval.Std()
	opts = append(opts,
		http.WithJob(a.basic.Users().PruneJob("prune-basic", interval)),
		http.WithJob(a.apiKey.Keys().PruneJob("prune-api-keys", interval)),
	)

	a.server = http.NewServer(cfg.Server.Name, opts...)
	a.routes(logger)
	return a
}

func (a *app) routes(logger *slog.Logger) {
	a.server.Mount("", http.ControllerFunc(func(g *http.Group) {
		g.Get("/", func(req *http.Request, res *http.Response) {
			res.WithText("hello world")
		})

		g.Get("/hello/{name}", func(req *http.Request, res *http.Response) {
			res.WithText("hello " + req.Param("name"))
		})

		g.Get("/echo/{first}/{second}", func(req *http.Request, res *http.Response) {
			res.WithJSON(map[string]string{
				"first":  req.Param("first"),
				"second": req.Param("second"),
			})
		})

		g.Post("/echo", func(req *http.Request, res *http.Response) {
			res.WithBytes(req.Header("Content-Type"), req.Body)
		})

		g.Get(`/files/{name:[a-z0-9_-]+\.txt}`, func(req *http.Request, res *http.Response) {
			res.WithText("file " + req.Param("name"))
		})

		g.Mount("/counter", &counterController{}, http.WithAuth(a.basic))
		g.Mount("/api", http.ControllerFunc(func(g *http.Group) {
			g.Get("/whoami", func(req *http.Request, res *http.Response) {
				owner, _ := a.apiKey.Owner(req.Auth.(string))
				res.WithJSON(map[string]string{"owner": owner})
			})
			g.Get("/ping", func(req *http.Request, res *http.Response) {
				res.WithText("pong")
			}, http.Public())
		}), http.WithAuth(a.apiKey))
	}), http.WithMiddleware(
		http.RecoverMiddleware(logger),
		http.RequestIDMiddleware(),
		http.LoggingMiddleware(logger),
	))
}

// counterController exposes a shared counter to Basic authenticated users.
type counterController struct {
	n atomic.Int64
}

func (c *counterController) Routes(g *http.Group) {
	g.Get("", func(req *http.Request, res *http.Response) {
		res.WithText(strconv.FormatInt(c.n.Load(), 10))
	})
	g.Post("", func(req *http.Request, res *http.Response) {
		creds := req.Auth.(auth.BasicCredentials)
		res.WithJSON(map[string]any{
			"user":  creds.User,
			"count": c.n.Add(1),
		})
	})
	g.Delete("", func(req *http.Request, res *http.Response) {
		c.n.Store(0)
		res.WithStatus(http.StatusNoContent)
	})
}
