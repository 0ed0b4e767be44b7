package http

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Middleware func(next Handler) Handler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// RecoverMiddleware turns a panic into a 500 for the wrapped handler only.
// The dispatcher recovers as well; this keeps route level panics out of the
// error log when a plain failure response is enough.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("recovered handler panic", "path", req.Path, "panic", r)
					res.Error(StatusInternalServerError)
				}
			}()

			next(req, res)
		}
	}
}

// RequestIDMiddleware echoes X-Request-Id, generating one when the client
// sent none.
func RequestIDMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) {
			id := req.Header("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}

			next(req, res)

			res.Headers.Set("X-Request-Id", id)
		}
	}
}

// LoggingMiddleware writes one access log record per request.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req *Request, res *Response) {
			start := time.Now()

			next(req, res)

			logger.Info("request",
				"method", req.MethodName,
				"path", req.Path,
				"status", res.Status,
				"bytes", len(res.Body),
				"remote", req.RemoteAddr,
				"duration", time.Since(start),
			)
		}
	}
}
