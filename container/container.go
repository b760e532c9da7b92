package container

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ignitefw/ignite/internal/envprovider"
	"github.com/ignitefw/ignite/internal/graph"
)

// regKey distinguishes a plain registration from one marked Default:
// per spec §4.1, the same ServiceId may carry both a default and a
// non-default registration simultaneously without either overriding
// the other.
type regKey struct {
	id        ServiceId
	isDefault bool
}

// Container is the built, immutable resolution engine produced by
// Collection.Build(). Safe for concurrent use.
type Container struct {
	env         envprovider.Provider
	primary     map[ServiceId]*ServiceDescriptor
	defaults    map[ServiceId]*ServiceDescriptor
	typeOrder   map[TypeTag][]ServiceId
	depGraph    *graph.Graph[ServiceId]
	singletons  sync.Map // ServiceId -> any
	sfGroup     singleflight.Group
	scopesMu    sync.Mutex
	scopes      map[ScopeId]*Scope
}

// ResolveContext is handed to ActivationClosureFactory callbacks so they
// can reach back into the container from inside their own construction,
// and carries the in-flight resolution stack used for cycle detection.
type ResolveContext struct {
	container *Container
	scope     *Scope
	stack     []ServiceId
}

// Scope returns the scope this resolution is running under, or nil for
// a scopeless (singleton/transient-only) resolution.
func (ctx *ResolveContext) Scope() *Scope { return ctx.scope }

// Resolve fetches another service from within a factory callback,
// sharing this resolution's cycle-detection stack.
func (ctx *ResolveContext) Resolve(id ServiceId) (any, error) {
	return ctx.container.resolveWithStack(id, ctx.scope, ctx.stack)
}

// Build finalizes the collection: evaluates conditional bindings
// against env, applies override semantics in declaration order, and
// validates the resulting dependency graph for missing services and
// cycles. The Collection itself becomes unusable after Build succeeds
// or fails.
func (c *Collection) Build(env envprovider.Provider) (*Container, error) {
	c.mu.Lock()
	if c.built {
		c.mu.Unlock()
		return nil, ErrCollectionBuilt
	}
	c.built = true
	actions := c.actions
	c.mu.Unlock()

	if env == nil {
		env = &envprovider.OS{}
	}

	ct := &Container{
		env:       env,
		primary:   make(map[ServiceId]*ServiceDescriptor),
		defaults:  make(map[ServiceId]*ServiceDescriptor),
		typeOrder: make(map[TypeTag][]ServiceId),
		depGraph:  graph.New[ServiceId](),
		scopes:    make(map[ScopeId]*Scope),
	}

	for _, a := range actions {
		if a.binding != nil && len(a.binding.Conditions) > 0 {
			if !evalConditions(env, a.binding.Conditions) {
				continue
			}
		}
		d := &ServiceDescriptor{
			Id:             a.id,
			Implementation: implementationOf(a.id, a.activation),
			Lifetime:       a.lifetime,
			Dependencies:   a.deps,
			Activation:     a.activation,
			Binding:        a.binding,
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}

		isDefault := a.binding != nil && a.binding.IsDefault
		if isDefault {
			ct.defaults[a.id] = d
		} else {
			ct.primary[a.id] = d
		}

		order := ct.typeOrder[a.id.Type]
		found := false
		for _, existing := range order {
			if existing == a.id {
				found = true
				break
			}
		}
		if !found {
			ct.typeOrder[a.id.Type] = append(order, a.id)
		}

		ct.depGraph.AddNode(a.id)
		ct.depGraph.ReplaceEdges(a.id, a.deps)
	}

	if _, err := ct.depGraph.TopoSort(); err != nil {
		var cerr *graph.CycleError[ServiceId]
		if asCycleError(err, &cerr) {
			return nil, &CircularDependencyError{Cycle: cerr.Cycle}
		}
		return nil, err
	}

	for id, d := range ct.primary {
		for _, dep := range d.Dependencies {
			if !ct.has(dep) {
				return nil, &ServiceNotFoundError{Service: dep, RequiredBy: id, hasRequired: true}
			}
		}
	}

	return ct, nil
}

func asCycleError(err error, target **graph.CycleError[ServiceId]) bool {
	if ce, ok := err.(*graph.CycleError[ServiceId]); ok {
		*target = ce
		return true
	}
	return false
}

func (ct *Container) has(id ServiceId) bool {
	if _, ok := ct.primary[id]; ok {
		return true
	}
	_, ok := ct.defaults[id]
	return ok
}

func (ct *Container) lookup(id ServiceId) (*ServiceDescriptor, bool) {
	if d, ok := ct.primary[id]; ok {
		return d, true
	}
	d, ok := ct.defaults[id]
	return d, ok
}

// ResolveByID resolves a service by its raw ServiceId, for callers
// (e.g. httpbridge) that only have a container.ServiceId on hand
// rather than a Go type parameter.
func (ct *Container) ResolveByID(id ServiceId, scope *Scope) (any, error) {
	return ct.resolveWithStack(id, scope, nil)
}

// Resolve produces an instance of T from the container, reusing the
// scope if one is given for Scoped services. A nil scope is valid when
// resolving Singleton or Transient services; resolving a Scoped service
// with a nil scope returns an error wrapping ErrScopeRequired.
func Resolve[T any](c *Container, scope *Scope) (T, error) {
	var zero T
	v, err := c.resolveWithStack(IDOf[T](), scope, nil)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Service: IDOf[T](), Cause: fmt.Errorf("registered value does not implement requested type")}
	}
	return t, nil
}

// ResolveNamed is Resolve for a named registration.
func ResolveNamed[T any](c *Container, name string, scope *Scope) (T, error) {
	var zero T
	v, err := c.resolveWithStack(NamedIDOf[T](name), scope, nil)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Service: NamedIDOf[T](name), Cause: fmt.Errorf("registered value does not implement requested type")}
	}
	return t, nil
}

// ResolveAll resolves every registration (named, unnamed, and
// collection-bound) under T's TypeTag, in registration order.
func ResolveAll[T any](c *Container, scope *Scope) ([]T, error) {
	ids := c.typeOrder[TagOf[T]()]
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, err := c.resolveWithStack(id, scope, nil)
		if err != nil {
			return nil, err
		}
		t, ok := v.(T)
		if !ok {
			return nil, &ResolutionError{Service: id, Cause: fmt.Errorf("registered value does not implement requested type")}
		}
		out = append(out, t)
	}
	return out, nil
}

func (ct *Container) resolveWithStack(id ServiceId, scope *Scope, stack []ServiceId) (any, error) {
	for _, s := range stack {
		if s == id {
			cycle := append(append([]ServiceId{}, stack...), id)
			return nil, &CircularDependencyError{Cycle: cycle}
		}
	}
	nextStack := append(append([]ServiceId{}, stack...), id)

	d, ok := ct.lookup(id)
	if !ok {
		return nil, &ServiceNotFoundError{Service: id}
	}

	switch d.Lifetime {
	case Singleton:
		return ct.resolveSingleton(d, nextStack)
	case Scoped:
		if scope == nil {
			return nil, &ResolutionError{Service: id, Cause: ErrScopeRequired}
		}
		return scope.resolveScoped(ct, d, nextStack)
	case Transient:
		return ct.build(d, scope, nextStack)
	default:
		return nil, &InvalidServiceDescriptorError{Id: id, Cause: &LifetimeError{Value: d.Lifetime}}
	}
}

func (ct *Container) resolveSingleton(d *ServiceDescriptor, stack []ServiceId) (any, error) {
	if v, ok := ct.singletons.Load(d.Id); ok {
		return v, nil
	}
	v, err, _ := ct.sfGroup.Do(d.Id.String(), func() (any, error) {
		if v, ok := ct.singletons.Load(d.Id); ok {
			return v, nil
		}
		built, err := ct.build(d, nil, stack)
		if err != nil {
			return nil, err
		}
		ct.singletons.Store(d.Id, built)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (ct *Container) build(d *ServiceDescriptor, scope *Scope, stack []ServiceId) (any, error) {
	var resolvedDeps []any
	if d.Activation.Kind == ActivationAutoWired {
		resolvedDeps = make([]any, len(d.Dependencies))
		for i, dep := range d.Dependencies {
			v, err := ct.resolveWithStack(dep, scope, stack)
			if err != nil {
				return nil, &ResolutionError{Service: d.Id, Cause: err}
			}
			resolvedDeps[i] = v
		}
	}
	ctx := &ResolveContext{container: ct, scope: scope, stack: stack}
	v, err := d.Activation.run(ctx, resolvedDeps)
	if err != nil {
		return nil, &ResolutionError{Service: d.Id, Cause: err}
	}
	return v, nil
}

// DOTGraph renders the built dependency graph as Graphviz DOT, for
// operator diagnostics.
func (ct *Container) DOTGraph(w writerLike) error {
	return graph.WriteDOT(ct.depGraph, w, func(id ServiceId) string { return id.String() })
}

type writerLike interface {
	Write(p []byte) (n int, err error)
}
