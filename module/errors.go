package module

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLoadOrderNotComputed is returned by DOTGraph when called before
// ComputeLoadOrder (directly or via Configure) has run at least once.
var ErrLoadOrderNotComputed = errors.New("module: load order has not been computed yet")

// ConfigurationConflictError reports a second registration of a module
// name already in use.
type ConfigurationConflictError struct {
	Name string
}

func (e *ConfigurationConflictError) Error() string {
	return fmt.Sprintf("module %q is already registered", e.Name)
}

// ValidationErrors bundles every ValidationError found in one pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return fmt.Sprintf("module validation failed: %s", strings.Join(parts, "; "))
}

// CircularImportError reports a cycle in the module import/dependency
// graph, with module names in traversal order ending at the repeated
// node.
type CircularImportError struct {
	Cycle []string
}

func (e *CircularImportError) Error() string {
	return fmt.Sprintf("circular module dependency: %s", strings.Join(e.Cycle, " -> "))
}

// InitializationError wraps a hook failure during Configure/Initialize,
// identifying which module and which phase failed.
type InitializationError struct {
	Module string
	Phase  string
	Cause  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("module %q failed during %s: %v", e.Module, e.Phase, e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }
