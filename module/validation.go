package module

import "fmt"

// ValidationError is one distinct problem found by Validate; tooling
// collects every ValidationError found rather than stopping at the
// first, per spec §4.3.
type ValidationError struct {
	Module string
	Kind   ValidationKind
	Detail string
}

// ValidationKind tags which invariant a ValidationError violates.
type ValidationKind int

const (
	DuplicateModuleName ValidationKind = iota
	DuplicateExport
	SelfImport
	MissingImport
)

func (k ValidationKind) String() string {
	switch k {
	case DuplicateModuleName:
		return "DuplicateModuleName"
	case DuplicateExport:
		return "DuplicateExport"
	case SelfImport:
		return "SelfImport"
	case MissingImport:
		return "MissingImport"
	default:
		return "Unknown"
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s in module %q: %s", e.Kind, e.Module, e.Detail)
}

// Validate runs the pre-initialization pass spec §4.3 describes:
// duplicate names, duplicate exports within a module, self-imports, and
// missing import targets. Every violation found is returned; an empty
// slice means the registration is consistent.
func Validate(descriptors []ModuleDescriptor) []*ValidationError {
	var errs []*ValidationError

	byName := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if byName[d.Name] {
			errs = append(errs, &ValidationError{
				Module: d.Name,
				Kind:   DuplicateModuleName,
				Detail: "a module with this name is already registered",
			})
			continue
		}
		byName[d.Name] = true
	}

	for _, d := range descriptors {
		seenExports := make(map[string]bool, len(d.Exports))
		for _, exp := range d.Exports {
			key := exp.String()
			if seenExports[key] {
				errs = append(errs, &ValidationError{
					Module: d.Name,
					Kind:   DuplicateExport,
					Detail: fmt.Sprintf("service %s exported more than once", key),
				})
			}
			seenExports[key] = true
		}

		for _, imp := range d.Imports {
			if imp == d.Name {
				errs = append(errs, &ValidationError{
					Module: d.Name,
					Kind:   SelfImport,
					Detail: "a module cannot import itself",
				})
				continue
			}
			if !byName[imp] {
				errs = append(errs, &ValidationError{
					Module: d.Name,
					Kind:   MissingImport,
					Detail: fmt.Sprintf("imported module %q is not registered", imp),
				})
			}
		}
	}

	return errs
}
