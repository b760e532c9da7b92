package container

import (
	"fmt"
	"reflect"
)

// TypeTag is a stable, process-wide identity for a concrete or abstract
// service type. reflect.Type values returned by reflect.TypeOf for the
// same type compare equal and are safe to use as map keys.
type TypeTag = reflect.Type

// TagOf returns the TypeTag for T. T is normally an interface or a
// pointer-to-struct; TagOf[MyService]() is the idiomatic spelling at a
// call site.
func TagOf[T any]() TypeTag {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ServiceId identifies a service by type plus an optional name, per
// spec's ServiceId = (TypeTag, Option<Name>). Two ids are equal iff both
// fields are equal, which is exactly Go's struct equality here since
// TypeTag is comparable.
type ServiceId struct {
	Type TypeTag
	Name string // "" means unnamed
}

func (id ServiceId) String() string {
	if id.Name == "" {
		return id.Type.String()
	}
	return fmt.Sprintf("%s[%s]", id.Type, id.Name)
}

// IDOf builds the unnamed ServiceId for T.
func IDOf[T any]() ServiceId {
	return ServiceId{Type: TagOf[T]()}
}

// NamedIDOf builds the named ServiceId for T.
func NamedIDOf[T any](name string) ServiceId {
	return ServiceId{Type: TagOf[T](), Name: name}
}

// ActivationKind tags which strategy a descriptor uses to produce an
// instance, per spec §4.1's ActivationStrategy union.
type ActivationKind int

const (
	// ActivationDefaultConstruct calls a zero-argument constructor.
	ActivationDefaultConstruct ActivationKind = iota
	// ActivationClosureFactory calls a factory given a *ResolveContext,
	// letting it reach back into the container (e.g. to resolve
	// dependencies it decides on dynamically).
	ActivationClosureFactory
	// ActivationPreBuiltInstance returns an already-constructed value.
	ActivationPreBuiltInstance
	// ActivationAutoWired resolves Dependencies in order and passes the
	// resolved values to a constructor, per spec §6's service-author
	// contract.
	ActivationAutoWired
)

func (k ActivationKind) String() string {
	switch k {
	case ActivationDefaultConstruct:
		return "DefaultConstruct"
	case ActivationClosureFactory:
		return "ClosureFactory"
	case ActivationPreBuiltInstance:
		return "PreBuiltInstance"
	case ActivationAutoWired:
		return "AutoWired"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ActivationStrategy holds exactly the callable or value relevant to its
// Kind; the other fields are nil/zero.
type ActivationStrategy struct {
	Kind ActivationKind

	// Construct is used when Kind == ActivationDefaultConstruct.
	Construct func() (any, error)

	// Factory is used when Kind == ActivationClosureFactory.
	Factory func(ctx *ResolveContext) (any, error)

	// Instance is used when Kind == ActivationPreBuiltInstance.
	Instance any

	// AutoWireCtor is used when Kind == ActivationAutoWired; it receives
	// resolved dependencies in the same order as the descriptor's
	// Dependencies list.
	AutoWireCtor func(resolved []any) (any, error)
}

func (a ActivationStrategy) run(ctx *ResolveContext, resolvedDeps []any) (any, error) {
	switch a.Kind {
	case ActivationDefaultConstruct:
		if a.Construct == nil {
			return nil, &InvalidServiceDescriptorError{Cause: ErrMissingConstruct}
		}
		return a.Construct()
	case ActivationClosureFactory:
		if a.Factory == nil {
			return nil, &InvalidServiceDescriptorError{Cause: ErrMissingFactory}
		}
		return a.Factory(ctx)
	case ActivationPreBuiltInstance:
		return a.Instance, nil
	case ActivationAutoWired:
		if a.AutoWireCtor == nil {
			return nil, &InvalidServiceDescriptorError{Cause: ErrMissingConstruct}
		}
		return a.AutoWireCtor(resolvedDeps)
	default:
		return nil, &InvalidServiceDescriptorError{Cause: fmt.Errorf("unknown activation kind %v", a.Kind)}
	}
}

// Condition gates whether a BindingConfig is active. Conditions are
// evaluated once, at Collection.Build() time.
type Condition struct {
	kind conditionKind
	key  string
	val  string
	pred func() bool
}

type conditionKind int

const (
	condEnv conditionKind = iota
	condFeature
	condProfile
	condCustom
)

// BindingConfig records the activation conditions and default-ness of a
// registration, per spec §4.1's bind_with(...).when_*() chain.
type BindingConfig struct {
	Conditions []Condition
	IsDefault  bool
}

// ServiceDescriptor is the normalized, built record the container
// resolves from. Values are shared for read after Collection.Build().
type ServiceDescriptor struct {
	Id             ServiceId
	Implementation TypeTag
	Lifetime       Lifetime
	Dependencies   []ServiceId
	Activation     ActivationStrategy
	Binding        *BindingConfig
}

// implementationOf derives the concrete TypeTag a binding resolves to,
// computed at bind time rather than waiting for the first resolve. A
// pre-built instance carries its own runtime type, which can be more
// specific than the declared service id (e.g. a *Memory bound under the
// Backend interface); every other activation kind only knows the
// declared id until it runs, so that is what it reports.
func implementationOf(id ServiceId, a ActivationStrategy) TypeTag {
	if a.Kind == ActivationPreBuiltInstance && a.Instance != nil {
		return reflect.TypeOf(a.Instance)
	}
	return id.Type
}

// Validate checks the descriptor's internal consistency, independent of
// the rest of the collection. It does not check that dependencies
// resolve; that is a Collection.Build()-time, whole-graph concern.
func (d *ServiceDescriptor) Validate() error {
	if d.Id.Type == nil {
		return &InvalidServiceDescriptorError{Cause: ErrDescriptorNil}
	}
	if !d.Lifetime.IsValid() {
		return &InvalidServiceDescriptorError{Id: d.Id, Cause: &LifetimeError{Value: d.Lifetime}}
	}
	switch d.Activation.Kind {
	case ActivationDefaultConstruct:
		if d.Activation.Construct == nil {
			return &InvalidServiceDescriptorError{Id: d.Id, Cause: ErrMissingConstruct}
		}
	case ActivationClosureFactory:
		if d.Activation.Factory == nil {
			return &InvalidServiceDescriptorError{Id: d.Id, Cause: ErrMissingFactory}
		}
	case ActivationPreBuiltInstance:
		// Instance may legitimately be a nil interface value for
		// pointer-typed services; nothing further to check.
	case ActivationAutoWired:
		if d.Activation.AutoWireCtor == nil {
			return &InvalidServiceDescriptorError{Id: d.Id, Cause: ErrMissingConstruct}
		}
	default:
		return &InvalidServiceDescriptorError{Id: d.Id, Cause: fmt.Errorf("unrecognized activation kind %v", d.Activation.Kind)}
	}
	return nil
}
