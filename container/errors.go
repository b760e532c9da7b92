package container

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrDescriptorNil     = errors.New("descriptor cannot be nil")
	ErrMissingConstruct  = errors.New("constructor is required for this activation kind")
	ErrMissingFactory    = errors.New("factory is required for this activation kind")
	ErrCollectionBuilt   = errors.New("collection has already been built")
	ErrScopeRequired     = errors.New("lifetime requires a scope id")
	ErrScopeDisposed     = errors.New("scope has been disposed")
	ErrContainerNotBuilt = errors.New("container has not been built")
)

// CoreError is the taxonomy spec §6/§7 names: service-not-found,
// circular-dependency, invalid-service-descriptor, resolution-failed.
// Each concrete error type below implements it by also implementing
// error; CoreError exists so callers can type-switch on the taxonomy
// without caring about the concrete struct.
type CoreError interface {
	error
	coreError()
}

// ServiceNotFoundError reports that a dependency, or a directly resolved
// service, has no registered descriptor.
type ServiceNotFoundError struct {
	Service     ServiceId
	RequiredBy  ServiceId
	hasRequired bool
}

func (e *ServiceNotFoundError) coreError() {}

func (e *ServiceNotFoundError) Error() string {
	if e.hasRequired {
		return fmt.Sprintf("service not found: %s (required by %s)", e.Service, e.RequiredBy)
	}
	return fmt.Sprintf("service not found: %s", e.Service)
}

// CircularDependencyError reports a cycle discovered during resolution
// or at build time, with the witness cycle in traversal order.
type CircularDependencyError struct {
	Cycle []ServiceId
}

func (e *CircularDependencyError) coreError() {}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		parts[i] = id.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(parts, " -> "))
}

// ResolutionError wraps a failure from an activation strategy.
type ResolutionError struct {
	Service ServiceId
	Cause   error
}

func (e *ResolutionError) coreError() {}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution failed for %s: %v", e.Service, e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// InvalidServiceDescriptorError reports a malformed descriptor, found
// either at registration or at Collection.Build() time.
type InvalidServiceDescriptorError struct {
	Id    ServiceId
	Cause error
}

func (e *InvalidServiceDescriptorError) coreError() {}

func (e *InvalidServiceDescriptorError) Error() string {
	if e.Id.Type == nil {
		return fmt.Sprintf("invalid service descriptor: %v", e.Cause)
	}
	return fmt.Sprintf("invalid service descriptor for %s: %v", e.Id, e.Cause)
}

func (e *InvalidServiceDescriptorError) Unwrap() error { return e.Cause }

// LifetimeError indicates an invalid Lifetime value. Text carries the raw
// source text when the error originates from UnmarshalText; Value is
// meaningful otherwise.
type LifetimeError struct {
	Value Lifetime
	Text  string
}

func (e *LifetimeError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("invalid service lifetime: %q", e.Text)
	}
	return fmt.Sprintf("invalid service lifetime: %v", int(e.Value))
}

// IsNotFound reports whether err is or wraps a ServiceNotFoundError.
func IsNotFound(err error) bool {
	var e *ServiceNotFoundError
	return errors.As(err, &e)
}

// IsCircularDependency reports whether err is or wraps a
// CircularDependencyError.
func IsCircularDependency(err error) bool {
	var e *CircularDependencyError
	return errors.As(err, &e)
}

// IsScopeDisposed reports whether err indicates the scope used for
// resolution has already been disposed.
func IsScopeDisposed(err error) bool {
	return errors.Is(err, ErrScopeDisposed)
}
