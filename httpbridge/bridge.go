// Package httpbridge hands module-contributed controllers off to a Chi
// router: a request-scoped container.Scope per request, and route
// mounting that resolves each controller's dependencies from that
// scope before serving the request.
package httpbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignitefw/ignite/container"
	"github.com/ignitefw/ignite/module"
)

type scopeCtxKey struct{}

// Config holds the configuration for ScopeMiddleware.
type Config struct {
	// ErrorHandler is called when scope creation fails. Defaults to a
	// 500 Internal Server Error response.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	// DisposeErrorHandler is called when scope disposal fails after the
	// request completes. Defaults to logging via slog.
	DisposeErrorHandler func(error)
}

// Option configures ScopeMiddleware.
type Option func(*Config)

// WithErrorHandler sets the error handler for scope creation failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(c *Config) { c.ErrorHandler = h }
}

// WithDisposeErrorHandler sets the error handler for scope disposal failures.
func WithDisposeErrorHandler(h func(error)) Option {
	return func(c *Config) { c.DisposeErrorHandler = h }
}

func defaultConfig(logger *slog.Logger) *Config {
	return &Config{
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		DisposeErrorHandler: func(err error) {
			logger.Error("failed to dispose request scope", "error", err)
		},
	}
}

// ScopeMiddleware creates a request-scoped container for each request,
// attaches it to the request context, and disposes it when the
// request completes.
func ScopeMiddleware(ct *container.Container, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := defaultConfig(logger)
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := ct.CreateScope()
			defer func() {
				if err := scope.Dispose(); err != nil {
					cfg.DisposeErrorHandler(err)
				}
			}()

			ctx := context.WithValue(r.Context(), scopeCtxKey{}, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ScopeFromContext retrieves the request-scoped container.Scope
// attached by ScopeMiddleware.
func ScopeFromContext(ctx context.Context) (*container.Scope, bool) {
	s, ok := ctx.Value(scopeCtxKey{}).(*container.Scope)
	return s, ok
}

// MiddlewareRegistry maps the names a module's ControllerDescriptor
// lists in Middleware to concrete chi-compatible middleware.
type MiddlewareRegistry map[string]func(http.Handler) http.Handler

// Mount registers every controller a module runtime collected as a
// route on router, scoped under its BasePath. Each request resolves
// the controller's Dependencies from the request scope, builds the
// controller via its Factory, and dispatches to it if it implements
// http.Handler.
func Mount(router chi.Router, ct *container.Container, controllers []module.ControllerDescriptor, middleware MiddlewareRegistry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, cd := range controllers {
		cd := cd

		mws := make([]func(http.Handler) http.Handler, 0, len(cd.Middleware))
		for _, name := range cd.Middleware {
			mw, ok := middleware[name]
			if !ok {
				return fmt.Errorf("httpbridge: controller %s references unknown middleware %q", cd.Type, name)
			}
			mws = append(mws, mw)
		}

		var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveController(w, r, ct, cd, logger)
		})
		for i := len(mws) - 1; i >= 0; i-- {
			handler = mws[i](handler)
		}

		router.Mount(cd.BasePath, handler)
	}
	return nil
}

func serveController(w http.ResponseWriter, r *http.Request, ct *container.Container, cd module.ControllerDescriptor, logger *slog.Logger) {
	scope, ok := ScopeFromContext(r.Context())
	if !ok {
		logger.Error("no request scope in context; was ScopeMiddleware installed?", "controller", cd.Type)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resolved := make([]any, len(cd.Dependencies))
	for i, dep := range cd.Dependencies {
		v, err := ct.ResolveByID(dep, scope)
		if err != nil {
			logger.Error("failed to resolve controller dependency", "controller", cd.Type, "dependency", dep, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		resolved[i] = v
	}

	instance, err := cd.Factory(resolved)
	if err != nil {
		logger.Error("controller factory failed", "controller", cd.Type, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h, ok := instance.(http.Handler)
	if !ok {
		logger.Error("controller does not implement http.Handler", "controller", cd.Type)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.ServeHTTP(w, r)
}
