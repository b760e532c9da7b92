package container

import (
	"sync"
	"sync/atomic"

	"github.com/ignitefw/ignite/internal/envprovider"
)

// groupKeyCounter generates unique internal names for unnamed entries
// added to a CollectionBinding, so that two implementations of the same
// unnamed service can coexist without tripping the "same ServiceId
// overrides" rule.
var groupKeyCounter uint64

func nextGroupName() string {
	n := atomic.AddUint64(&groupKeyCounter, 1)
	return "~group~" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// bindingAction is one registration, applied in declaration order when
// the Collection is built. Conditions gate whether it is applied at all.
type bindingAction struct {
	id         ServiceId
	lifetime   Lifetime
	deps       []ServiceId
	activation ActivationStrategy
	binding    *BindingConfig
}

// Collection is the mutable registration surface of the binding layer
// (spec §4.1). It is one-shot: Build() transitions it to an immutable
// Container.
type Collection struct {
	mu      sync.Mutex
	built   bool
	actions []*bindingAction
}

// NewCollection creates an empty, mutable service collection.
func NewCollection() *Collection {
	return &Collection{}
}

func (c *Collection) append(a *bindingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.built {
		return ErrCollectionBuilt
	}
	c.actions = append(c.actions, a)
	return nil
}

func wrapCtor[T any](ctor func() (T, error)) func() (any, error) {
	if ctor == nil {
		return nil
	}
	return func() (any, error) {
		v, err := ctor()
		return v, err
	}
}

func wrapFactory[T any](factory func(ctx *ResolveContext) (T, error)) func(ctx *ResolveContext) (any, error) {
	if factory == nil {
		return nil
	}
	return func(ctx *ResolveContext) (any, error) {
		v, err := factory(ctx)
		return v, err
	}
}

func wrapAutoWire[T any](ctor func(resolved []any) (T, error)) func(resolved []any) (any, error) {
	if ctor == nil {
		return nil
	}
	return func(resolved []any) (any, error) {
		v, err := ctor(resolved)
		return v, err
	}
}

// RegisterDescriptor appends an already-assembled ServiceDescriptor
// (e.g. one produced by a module's provider list) to the collection
// unmodified, applying the same override semantics as the Bind* helpers.
func RegisterDescriptor(c *Collection, d ServiceDescriptor) error {
	return c.append(&bindingAction{
		id:         d.Id,
		lifetime:   d.Lifetime,
		deps:       d.Dependencies,
		activation: d.Activation,
		binding:    d.Binding,
	})
}

// Bind registers T as lifetime using a default-construct activation
// (spec's bind(service -> implementation)).
func Bind[T any](c *Collection, lifetime Lifetime, ctor func() (T, error)) error {
	return c.append(&bindingAction{
		id:       IDOf[T](),
		lifetime: lifetime,
		activation: ActivationStrategy{
			Kind:      ActivationDefaultConstruct,
			Construct: wrapCtor(ctor),
		},
	})
}

// BindSingleton is shorthand for Bind(c, Singleton, ctor).
func BindSingleton[T any](c *Collection, ctor func() (T, error)) error {
	return Bind(c, Singleton, ctor)
}

// BindScoped is shorthand for Bind(c, Scoped, ctor).
func BindScoped[T any](c *Collection, ctor func() (T, error)) error {
	return Bind(c, Scoped, ctor)
}

// BindTransient is shorthand for Bind(c, Transient, ctor).
func BindTransient[T any](c *Collection, ctor func() (T, error)) error {
	return Bind(c, Transient, ctor)
}

// BindNamed registers a named implementation of T (spec's
// bind_named(service, name -> implementation)).
func BindNamed[T any](c *Collection, name string, lifetime Lifetime, ctor func() (T, error)) error {
	return c.append(&bindingAction{
		id:       NamedIDOf[T](name),
		lifetime: lifetime,
		activation: ActivationStrategy{
			Kind:      ActivationDefaultConstruct,
			Construct: wrapCtor(ctor),
		},
	})
}

// BindFactory registers T using a closure factory that can reach back
// into the container via *ResolveContext (spec's bind_factory).
func BindFactory[T any](c *Collection, lifetime Lifetime, factory func(ctx *ResolveContext) (T, error)) error {
	return c.append(&bindingAction{
		id:       IDOf[T](),
		lifetime: lifetime,
		activation: ActivationStrategy{
			Kind:    ActivationClosureFactory,
			Factory: wrapFactory(factory),
		},
	})
}

// BindInstance registers a pre-built value as a singleton (spec's
// bind_instance).
func BindInstance[T any](c *Collection, instance T) error {
	return c.append(&bindingAction{
		id:       IDOf[T](),
		lifetime: Singleton,
		activation: ActivationStrategy{
			Kind:     ActivationPreBuiltInstance,
			Instance: instance,
		},
	})
}

// BindInjectable registers T as auto-wired from an explicit dependency
// list: the container resolves deps in order and passes the resolved
// values to ctor (spec's bind_injectable / §6 service-author contract).
func BindInjectable[T any](c *Collection, lifetime Lifetime, deps []ServiceId, ctor func(resolved []any) (T, error)) error {
	return c.append(&bindingAction{
		id:       IDOf[T](),
		lifetime: lifetime,
		deps:     deps,
		activation: ActivationStrategy{
			Kind:         ActivationAutoWired,
			AutoWireCtor: wrapAutoWire(ctor),
		},
	})
}

// BindInjectableSingleton is shorthand for BindInjectable(c, Singleton, ...).
func BindInjectableSingleton[T any](c *Collection, deps []ServiceId, ctor func(resolved []any) (T, error)) error {
	return BindInjectable(c, Singleton, deps, ctor)
}

// ConditionalBinding accumulates when_*() conditions for a single
// pending registration, evaluated once at Collection.Build() time. If
// any condition fails, the registration is silently dropped, per
// spec §4.1.
type ConditionalBinding struct {
	action *bindingAction
}

// BindWith starts a conditional registration for T (spec's
// bind_with(...).when_env(...)....).
func BindWith[T any](c *Collection, lifetime Lifetime, ctor func() (T, error)) *ConditionalBinding {
	a := &bindingAction{
		id:       IDOf[T](),
		lifetime: lifetime,
		activation: ActivationStrategy{
			Kind:      ActivationDefaultConstruct,
			Construct: wrapCtor(ctor),
		},
		binding: &BindingConfig{},
	}
	_ = c.append(a) // error (already built) surfaces at Build(); chain is still safe to use before that
	return &ConditionalBinding{action: a}
}

// WhenEnv requires environment variable key to equal value.
func (b *ConditionalBinding) WhenEnv(key, value string) *ConditionalBinding {
	b.action.binding.Conditions = append(b.action.binding.Conditions, Condition{kind: condEnv, key: key, val: value})
	return b
}

// WhenFeature requires FEATURE_<UPPER(name)> to be present.
func (b *ConditionalBinding) WhenFeature(name string) *ConditionalBinding {
	b.action.binding.Conditions = append(b.action.binding.Conditions, Condition{kind: condFeature, key: name})
	return b
}

// InProfile requires the active profile to equal p.
func (b *ConditionalBinding) InProfile(p string) *ConditionalBinding {
	b.action.binding.Conditions = append(b.action.binding.Conditions, Condition{kind: condProfile, val: p})
	return b
}

// When requires an arbitrary custom predicate to hold.
func (b *ConditionalBinding) When(pred func() bool) *ConditionalBinding {
	b.action.binding.Conditions = append(b.action.binding.Conditions, Condition{kind: condCustom, pred: pred})
	return b
}

// Named sets the binding's name.
func (b *ConditionalBinding) Named(name string) *ConditionalBinding {
	b.action.id.Name = name
	return b
}

// WithLifetime overrides the lifetime passed to BindWith.
func (b *ConditionalBinding) WithLifetime(l Lifetime) *ConditionalBinding {
	b.action.lifetime = l
	return b
}

// Default marks this binding as the default implementation for its
// ServiceId, allowing it to coexist with a non-default registration of
// the same id (spec §4.1's is_default flag).
func (b *ConditionalBinding) Default() *ConditionalBinding {
	b.action.binding.IsDefault = true
	return b
}

func evalConditions(env envprovider.Provider, conds []Condition) bool {
	for _, c := range conds {
		switch c.kind {
		case condEnv:
			v, ok := env.Lookup(c.key)
			if !ok || v != c.val {
				return false
			}
		case condFeature:
			if !env.FeatureEnabled(c.key) {
				return false
			}
		case condProfile:
			if env.Profile() != c.val {
				return false
			}
		case condCustom:
			if c.pred == nil || !c.pred() {
				return false
			}
		}
	}
	return true
}

// CollectionBinding accumulates multiple implementations for a single
// service type, resolvable together via ResolveAll (spec's
// bind_collection(service).add(impl).add_named(name, impl)).
type CollectionBinding struct {
	coll     *Collection
	typeOf   TypeTag
	lifetime Lifetime
	err      error
}

// BindCollection starts a multi-binding group for T.
func BindCollection[T any](c *Collection, lifetime Lifetime) *CollectionBinding {
	return &CollectionBinding{coll: c, typeOf: TagOf[T](), lifetime: lifetime}
}

// Add appends an unnamed implementation to the group, using a
// synthetic, internally-unique name so it does not override prior
// entries of the same type.
func (cb *CollectionBinding) Add(ctor func() (any, error)) *CollectionBinding {
	if cb.err != nil {
		return cb
	}
	cb.err = cb.coll.append(&bindingAction{
		id:       ServiceId{Type: cb.typeOf, Name: nextGroupName()},
		lifetime: cb.lifetime,
		activation: ActivationStrategy{
			Kind:      ActivationDefaultConstruct,
			Construct: ctor,
		},
	})
	return cb
}

// AddNamed appends a named implementation to the group.
func (cb *CollectionBinding) AddNamed(name string, ctor func() (any, error)) *CollectionBinding {
	if cb.err != nil {
		return cb
	}
	cb.err = cb.coll.append(&bindingAction{
		id:       ServiceId{Type: cb.typeOf, Name: name},
		lifetime: cb.lifetime,
		activation: ActivationStrategy{
			Kind:      ActivationDefaultConstruct,
			Construct: ctor,
		},
	})
	return cb
}

// Err returns the first registration error encountered, if any.
func (cb *CollectionBinding) Err() error {
	return cb.err
}
