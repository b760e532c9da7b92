// Package module implements the Module Runtime: registration,
// cross-module dependency validation, topological load ordering, and
// the configure/initialize/health/shutdown lifecycle built on top of
// container.Collection.
package module

import (
	"github.com/ignitefw/ignite/container"
)

// ControllerDescriptor names an HTTP controller a module contributes,
// handed off to httpbridge for route registration.
type ControllerDescriptor struct {
	Type         container.TypeTag
	BasePath     string
	Middleware   []string
	Dependencies []container.ServiceId
	Factory      func(resolved []any) (any, error)
}

// ModuleDescriptor is the unit of composition the runtime registers,
// validates, and sequences. Name must be unique within a composition.
type ModuleDescriptor struct {
	Name        string
	Version     string
	Description string

	Providers   []container.ServiceDescriptor
	Controllers []ControllerDescriptor

	Imports      []string
	Exports      []container.ServiceId
	Dependencies []string

	Optional bool

	BeforeInit    func() error
	Start         func() error
	AfterInit     func(durationMS int64) error
	BeforeShutdown func() error
	Stop          func() error
	AfterShutdown func() error
	HealthCheck   func() HealthStatus
}

// Builder provides a fluent, chainable construction style for
// assembling a ModuleDescriptor.
type Builder struct {
	d ModuleDescriptor
}

// NewModule starts building a ModuleDescriptor named name.
func NewModule(name string) *Builder {
	return &Builder{d: ModuleDescriptor{Name: name}}
}

func (b *Builder) Version(v string) *Builder { b.d.Version = v; return b }

func (b *Builder) Description(desc string) *Builder { b.d.Description = desc; return b }

func (b *Builder) Provide(desc container.ServiceDescriptor) *Builder {
	b.d.Providers = append(b.d.Providers, desc)
	return b
}

func (b *Builder) Controller(c ControllerDescriptor) *Builder {
	b.d.Controllers = append(b.d.Controllers, c)
	return b
}

func (b *Builder) Import(moduleName string) *Builder {
	b.d.Imports = append(b.d.Imports, moduleName)
	return b
}

func (b *Builder) Export(id container.ServiceId) *Builder {
	b.d.Exports = append(b.d.Exports, id)
	return b
}

func (b *Builder) DependsOn(moduleName string) *Builder {
	b.d.Dependencies = append(b.d.Dependencies, moduleName)
	return b
}

func (b *Builder) Optional() *Builder { b.d.Optional = true; return b }

func (b *Builder) OnBeforeInit(fn func() error) *Builder { b.d.BeforeInit = fn; return b }

func (b *Builder) OnStart(fn func() error) *Builder { b.d.Start = fn; return b }

func (b *Builder) OnAfterInit(fn func(durationMS int64) error) *Builder {
	b.d.AfterInit = fn
	return b
}

func (b *Builder) OnBeforeShutdown(fn func() error) *Builder { b.d.BeforeShutdown = fn; return b }

func (b *Builder) OnStop(fn func() error) *Builder { b.d.Stop = fn; return b }

func (b *Builder) OnAfterShutdown(fn func() error) *Builder { b.d.AfterShutdown = fn; return b }

func (b *Builder) OnHealthCheck(fn func() HealthStatus) *Builder { b.d.HealthCheck = fn; return b }

// Build returns the assembled descriptor.
func (b *Builder) Build() ModuleDescriptor { return b.d }

// Compose merges descriptors in load order into one flat set of
// providers, then applies overrides keyed by (TypeTag, optional name),
// removing any existing provider under that key before inserting the
// override. Runs in O(len(descriptors) + len(overrides)).
func Compose(loadOrder []ModuleDescriptor, overrides map[container.ServiceId]container.ServiceDescriptor) []container.ServiceDescriptor {
	merged := make(map[container.ServiceId]container.ServiceDescriptor)
	order := make([]container.ServiceId, 0)
	for _, m := range loadOrder {
		for _, p := range m.Providers {
			if _, exists := merged[p.Id]; !exists {
				order = append(order, p.Id)
			}
			merged[p.Id] = p
		}
	}
	for id, override := range overrides {
		if _, exists := merged[id]; !exists {
			order = append(order, id)
		}
		merged[id] = override
	}
	out := make([]container.ServiceDescriptor, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out
}
