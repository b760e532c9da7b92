package httpbridge_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignitefw/ignite/container"
	"github.com/ignitefw/ignite/httpbridge"
	"github.com/ignitefw/ignite/module"
)

type greeting struct{ name string }

func (g *greeting) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("hello " + g.name))
}

func TestMountResolvesDependenciesPerRequest(t *testing.T) {
	coll := container.NewCollection()
	require.NoError(t, container.BindInstance[string](coll, "gopher"))
	ct, err := coll.Build(nil)
	require.NoError(t, err)

	cd := module.ControllerDescriptor{
		Type:         container.TagOf[greeting](),
		BasePath:     "/greet",
		Dependencies: []container.ServiceId{container.IDOf[string]()},
		Factory: func(resolved []any) (any, error) {
			return &greeting{name: resolved[0].(string)}, nil
		},
	}

	r := chi.NewRouter()
	r.Use(httpbridge.ScopeMiddleware(ct, nil))
	require.NoError(t, httpbridge.Mount(r, ct, []module.ControllerDescriptor{cd}, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/greet", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello gopher", rec.Body.String())
}

func TestMountRejectsUnknownMiddlewareName(t *testing.T) {
	coll := container.NewCollection()
	ct, err := coll.Build(nil)
	require.NoError(t, err)

	cd := module.ControllerDescriptor{
		Type:       container.TagOf[greeting](),
		BasePath:   "/greet",
		Middleware: []string{"does-not-exist"},
		Factory:    func(resolved []any) (any, error) { return &greeting{}, nil },
	}

	r := chi.NewRouter()
	err = httpbridge.Mount(r, ct, []module.ControllerDescriptor{cd}, nil, nil)
	assert.Error(t, err)
}

func TestServeControllerFailsWithoutScopeMiddleware(t *testing.T) {
	coll := container.NewCollection()
	ct, err := coll.Build(nil)
	require.NoError(t, err)

	cd := module.ControllerDescriptor{
		Type:     container.TagOf[greeting](),
		BasePath: "/greet",
		Factory:  func(resolved []any) (any, error) { return &greeting{}, nil },
	}

	r := chi.NewRouter()
	require.NoError(t, httpbridge.Mount(r, ct, []module.ControllerDescriptor{cd}, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/greet", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
