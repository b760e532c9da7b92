package module

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ignitefw/ignite/container"
	"github.com/ignitefw/ignite/internal/envprovider"
	"github.com/ignitefw/ignite/internal/graph"
)

// Runtime registers module descriptors, computes a load order, and
// drives the configure/initialize/health/shutdown lifecycle over it.
type Runtime struct {
	mu          sync.Mutex
	modules     map[string]*RuntimeInfo
	regOrder    []string
	loadOrder   []string
	controllers []ControllerDescriptor
	env         envprovider.Provider
	logger      *slog.Logger
	metrics     *metricsCollector
	depGraph    *graph.Graph[string]
}

// NewRuntime creates an empty Runtime. A nil env defaults to the real
// process environment; a nil logger defaults to slog.Default().
func NewRuntime(env envprovider.Provider, logger *slog.Logger) *Runtime {
	if env == nil {
		env = &envprovider.OS{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		modules: make(map[string]*RuntimeInfo),
		env:     env,
		logger:  logger,
		metrics: newMetricsCollector(),
	}
}

// Collectors exposes this runtime's Prometheus collectors for
// registration against a prometheus.Registry.
func (r *Runtime) Collectors() []prometheus.Collector {
	return r.metrics.Collectors()
}

// Register inserts a module descriptor. A second registration of the
// same name fails with *ConfigurationConflictError.
func (r *Runtime) Register(d ModuleDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[d.Name]; exists {
		return &ConfigurationConflictError{Name: d.Name}
	}
	r.modules[d.Name] = &RuntimeInfo{Descriptor: d, State: Registered, LastHealth: Unknown}
	r.regOrder = append(r.regOrder, d.Name)
	r.metrics.setState(d.Name, Registered)
	return nil
}

func (r *Runtime) descriptorsLocked() []ModuleDescriptor {
	out := make([]ModuleDescriptor, 0, len(r.regOrder))
	for _, name := range r.regOrder {
		out = append(out, r.modules[name].Descriptor)
	}
	return out
}

// Validate runs the pre-initialization consistency pass over every
// registered module.
func (r *Runtime) Validate() ValidationErrors {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := Validate(r.descriptorsLocked())
	if len(errs) == 0 {
		return nil
	}
	return ValidationErrors(errs)
}

// ComputeLoadOrder validates, then topologically sorts the import and
// dependency graph with Kahn's algorithm, recovering a concrete cycle
// witness via DFS when the graph is not a DAG. The computed order is
// persisted and reused by Configure/Initialize/Shutdown.
func (r *Runtime) ComputeLoadOrder() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if errs := Validate(r.descriptorsLocked()); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	g := graph.New[string]()
	for _, name := range r.regOrder {
		g.AddNode(name)
	}
	for _, name := range r.regOrder {
		info := r.modules[name]
		deps := make([]string, 0, len(info.Descriptor.Imports)+len(info.Descriptor.Dependencies))
		seen := make(map[string]bool)
		for _, dep := range append(append([]string{}, info.Descriptor.Imports...), info.Descriptor.Dependencies...) {
			if !seen[dep] {
				seen[dep] = true
				deps = append(deps, dep)
			}
		}
		g.ReplaceEdges(name, deps)
	}

	order, err := g.TopoSort()
	if err != nil {
		if ce, ok := err.(*graph.CycleError[string]); ok {
			return nil, &CircularImportError{Cycle: ce.Cycle}
		}
		return nil, err
	}

	r.depGraph = g
	r.loadOrder = order
	for i, name := range order {
		info := r.modules[name]
		info.LoadOrderIndex = i
		info.HasLoadOrder = true
		info.State = ResolvingDependencies
		r.metrics.setState(name, ResolvingDependencies)
	}
	return append([]string{}, order...), nil
}

// Configure feeds each module's providers into coll in load order and
// collects its controllers for the HTTP layer, recording per-module
// timing. ComputeLoadOrder is called automatically if not already run.
func (r *Runtime) Configure(coll *container.Collection) error {
	r.mu.Lock()
	if r.loadOrder == nil {
		r.mu.Unlock()
		if _, err := r.ComputeLoadOrder(); err != nil {
			return err
		}
		r.mu.Lock()
	}
	order := append([]string{}, r.loadOrder...)
	r.mu.Unlock()

	for _, name := range order {
		r.mu.Lock()
		info := r.modules[name]
		info.State = Configuring
		r.metrics.setState(name, Configuring)
		r.mu.Unlock()

		start := time.Now()
		for _, p := range info.Descriptor.Providers {
			if err := container.RegisterDescriptor(coll, p); err != nil {
				r.mu.Lock()
				info.State = Failed
				info.FailureReason = err.Error()
				r.metrics.setState(name, Failed)
				r.mu.Unlock()
				return &InitializationError{Module: name, Phase: "configure", Cause: err}
			}
		}
		elapsed := time.Since(start)

		r.mu.Lock()
		info.ConfigureMillis = elapsed.Milliseconds()
		r.controllers = append(r.controllers, info.Descriptor.Controllers...)
		r.mu.Unlock()
		r.metrics.observeConfigure(name, elapsed.Seconds())
	}
	return nil
}

// Controllers returns every controller collected during Configure, in
// load order.
func (r *Runtime) Controllers() []ControllerDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ControllerDescriptor{}, r.controllers...)
}

// Initialize runs before_init/start/after_init for each module in load
// order. It halts on the first failure; modules already initialized
// remain Ready.
func (r *Runtime) Initialize() error {
	r.mu.Lock()
	order := append([]string{}, r.loadOrder...)
	r.mu.Unlock()

	for _, name := range order {
		r.mu.Lock()
		info := r.modules[name]
		info.State = Initializing
		r.metrics.setState(name, Initializing)
		r.mu.Unlock()

		start := time.Now()
		if hook := info.Descriptor.BeforeInit; hook != nil {
			if err := hook(); err != nil {
				return r.fail(name, "before_init", err)
			}
		}
		if hook := info.Descriptor.Start; hook != nil {
			if err := hook(); err != nil {
				return r.fail(name, "start", err)
			}
		}
		elapsed := time.Since(start)
		if hook := info.Descriptor.AfterInit; hook != nil {
			if err := hook(elapsed.Milliseconds()); err != nil {
				return r.fail(name, "after_init", err)
			}
		}

		r.mu.Lock()
		info.InitMillis = elapsed.Milliseconds()
		info.State = Ready
		r.mu.Unlock()
		r.metrics.observeInit(name, elapsed.Seconds())
		r.metrics.setState(name, Ready)
	}
	return nil
}

func (r *Runtime) fail(name, phase string, cause error) error {
	r.mu.Lock()
	info := r.modules[name]
	info.State = Failed
	info.FailureReason = cause.Error()
	info.Errors = append(info.Errors, cause)
	r.mu.Unlock()
	r.metrics.setState(name, Failed)
	r.logger.Error("module initialization failed", "module", name, "phase", phase, "error", cause)
	return &InitializationError{Module: name, Phase: phase, Cause: cause}
}

// HealthCheckAll invokes each module's health hook (or the default
// Ready→Healthy/Failed→Unhealthy/else→Unknown rule) and caches the
// result with a timestamp.
func (r *Runtime) HealthCheckAll() map[string]HealthStatus {
	r.mu.Lock()
	names := append([]string{}, r.regOrder...)
	r.mu.Unlock()

	out := make(map[string]HealthStatus, len(names))
	now := time.Now().UnixMilli()
	for _, name := range names {
		r.mu.Lock()
		info := r.modules[name]
		hook := info.Descriptor.HealthCheck
		state := info.State
		r.mu.Unlock()

		var status HealthStatus
		if hook != nil {
			status = hook()
		} else {
			switch state {
			case Ready:
				status = Healthy
			case Failed:
				status = Unhealthy
			default:
				status = Unknown
			}
		}

		r.mu.Lock()
		info.LastHealth = status
		info.LastHealthAtUnixMilli = now
		r.mu.Unlock()
		r.metrics.setHealth(name, status)
		out[name] = status
	}
	return out
}

// Shutdown iterates the load order in reverse, running
// before_shutdown/stop/after_shutdown per module. Hook failures are
// logged and accumulated on the module's RuntimeInfo; the pass
// continues regardless.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	order := append([]string{}, r.loadOrder...)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		r.mu.Lock()
		info := r.modules[name]
		info.State = ShuttingDown
		r.metrics.setState(name, ShuttingDown)
		r.mu.Unlock()

		r.runShutdownHook(name, "before_shutdown", info.Descriptor.BeforeShutdown)
		r.runShutdownHook(name, "stop", info.Descriptor.Stop)
		r.runShutdownHook(name, "after_shutdown", info.Descriptor.AfterShutdown)

		r.mu.Lock()
		info.State = Shutdown
		r.mu.Unlock()
		r.metrics.setState(name, Shutdown)
	}
}

// DOTGraph renders the module import/dependency graph as Graphviz DOT,
// for operator diagnostics. ComputeLoadOrder must have run at least
// once (directly or via Configure).
func (r *Runtime) DOTGraph(w writerLike) error {
	r.mu.Lock()
	g := r.depGraph
	r.mu.Unlock()
	if g == nil {
		return ErrLoadOrderNotComputed
	}
	return graph.WriteDOT(g, w, func(name string) string { return name })
}

type writerLike interface {
	Write(p []byte) (n int, err error)
}

func (r *Runtime) runShutdownHook(name, phase string, hook func() error) {
	if hook == nil {
		return
	}
	if err := hook(); err != nil {
		r.mu.Lock()
		info := r.modules[name]
		info.Errors = append(info.Errors, err)
		r.mu.Unlock()
		r.logger.Error("module shutdown hook failed", "module", name, "phase", phase, "error", err)
	}
}

// Info returns a copy of the RuntimeInfo for name, or false if name was
// never registered.
func (r *Runtime) Info(name string) (RuntimeInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.modules[name]
	if !ok {
		return RuntimeInfo{}, false
	}
	return *info, true
}

// Statistics summarizes configure/init timing across every registered
// module.
func (r *Runtime) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Statistics{
		TotalModules:        len(r.modules),
		PerModuleInitMillis: make(map[string]int64, len(r.modules)),
	}
	for name, info := range r.modules {
		stats.ConfigureTotalMillis += info.ConfigureMillis
		stats.InitTotalMillis += info.InitMillis
		stats.PerModuleInitMillis[name] = info.InitMillis
		if info.InitMillis > stats.SlowestModuleMillis {
			stats.SlowestModuleMillis = info.InitMillis
			stats.SlowestModule = name
		}
	}
	return stats
}
