package module

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Statistics is the value snapshot spec §4.3 describes: total modules,
// per-phase durations, per-module init duration, and the slowest
// module.
type Statistics struct {
	TotalModules         int
	ConfigureTotalMillis int64
	InitTotalMillis      int64
	PerModuleInitMillis  map[string]int64
	SlowestModule        string
	SlowestModuleMillis  int64
}

type metricsCollector struct {
	mu sync.Mutex

	configureDuration *prometheus.HistogramVec
	initDuration      *prometheus.HistogramVec
	moduleState       *prometheus.GaugeVec
	healthStatus      *prometheus.GaugeVec
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		configureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ignite",
			Subsystem: "module",
			Name:      "configure_duration_seconds",
			Help:      "Time spent configuring a module's providers into the container.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		initDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ignite",
			Subsystem: "module",
			Name:      "init_duration_seconds",
			Help:      "Time spent in a module's before_init/start hooks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		moduleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ignite",
			Subsystem: "module",
			Name:      "state",
			Help:      "Current ModuleState as an integer (see module.ModuleState).",
		}, []string{"module"}),
		healthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ignite",
			Subsystem: "module",
			Name:      "health_status",
			Help:      "Current HealthStatus as an integer (see module.HealthStatus).",
		}, []string{"module"}),
	}
}

// Collectors returns every Prometheus collector this package registers,
// for the caller to hand to a prometheus.Registry.
func (m *metricsCollector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.configureDuration, m.initDuration, m.moduleState, m.healthStatus}
}

func (m *metricsCollector) observeConfigure(moduleName string, seconds float64) {
	m.configureDuration.WithLabelValues(moduleName).Observe(seconds)
}

func (m *metricsCollector) observeInit(moduleName string, seconds float64) {
	m.initDuration.WithLabelValues(moduleName).Observe(seconds)
}

func (m *metricsCollector) setState(moduleName string, state ModuleState) {
	m.moduleState.WithLabelValues(moduleName).Set(float64(state))
}

func (m *metricsCollector) setHealth(moduleName string, h HealthStatus) {
	m.healthStatus.WithLabelValues(moduleName).Set(float64(h))
}
