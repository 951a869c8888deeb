package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/routing-engine/internal/isolation"
	"github.com/tributary-ai/routing-engine/internal/types"
)

// ProbeFunc checks one provider's upstream endpoint. A nil error marks the
// provider healthy.
type ProbeFunc func(ctx context.Context) error

// FailureSink receives probe outcomes so provider isolation can react to
// upstream outages. Satisfied by the isolation tracker.
type FailureSink interface {
	RecordFailure(provider, model string, failureType isolation.FailureType, errorMessage, requestType string)
	RecordSuccess(provider, model string)
}

// MonitorConfig holds health monitor settings.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Monitor sweeps registered components on an interval. Providers with a
// probe are checked against their endpoint; providers without one, and all
// runtimes, are marked healthy, matching a check with nothing to verify.
type Monitor struct {
	registry *Registry
	config   MonitorConfig
	sink     FailureSink
	logger   *logrus.Logger

	mutex  sync.Mutex
	probes map[string]ProbeFunc

	ticker  *time.Ticker
	stop    chan bool
	stopped bool
}

// NewMonitor creates a monitor. sink may be nil.
func NewMonitor(registry *Registry, config MonitorConfig, sink FailureSink, logger *logrus.Logger) *Monitor {
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Monitor{
		registry: registry,
		config:   config,
		sink:     sink,
		logger:   logger,
		probes:   make(map[string]ProbeFunc),
		stop:     make(chan bool),
	}
}

// RegisterProbe attaches a probe to a provider name.
func (m *Monitor) RegisterProbe(provider string, probe ProbeFunc) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.probes[provider] = probe
}

// Start launches the sweep loop. The first sweep runs immediately so routing
// does not wait a full interval for health data.
func (m *Monitor) Start() {
	m.ticker = time.NewTicker(m.config.Interval)

	go func() {
		m.CheckAll(context.Background())
		for {
			select {
			case <-m.ticker.C:
				m.CheckAll(context.Background())
			case <-m.stop:
				return
			}
		}
	}()

	m.logger.WithField("interval", m.config.Interval).Info("Health monitor started")
}

// Stop halts the sweep loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true

	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.stop)
}

// CheckAll probes every provider and refreshes runtime status.
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, name := range m.registry.ListProviders(false) {
		m.checkProvider(ctx, name)
	}
	for _, name := range m.registry.ListRuntimes(false) {
		m.registry.SetHealth(types.HealthKeyRuntime(name), &types.HealthStatus{
			Status: types.HealthHealthy,
		})
	}
}

func (m *Monitor) checkProvider(ctx context.Context, name string) {
	m.mutex.Lock()
	probe := m.probes[name]
	m.mutex.Unlock()

	key := types.HealthKeyProvider(name)

	if probe == nil {
		m.registry.SetHealth(key, &types.HealthStatus{Status: types.HealthHealthy})
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	prev, _ := m.registry.HealthStatus(key)
	start := time.Now()
	err := probe(probeCtx)
	elapsed := time.Since(start)

	if err != nil {
		m.registry.SetHealth(key, &types.HealthStatus{
			Status:       types.HealthUnhealthy,
			ResponseTime: elapsed.Milliseconds(),
			ErrorMessage: err.Error(),
		})
		m.logger.WithError(err).WithField("provider", name).Warn("Provider probe failed")

		if m.sink != nil {
			m.sink.RecordFailure(name, "", isolation.FailureProviderUnavailable, err.Error(), "health_probe")
		}
		return
	}

	m.registry.SetHealth(key, &types.HealthStatus{
		Status:       types.HealthHealthy,
		ResponseTime: elapsed.Milliseconds(),
	})
	m.logger.WithFields(logrus.Fields{
		"provider":    name,
		"response_ms": elapsed.Milliseconds(),
	}).Debug("Provider probe passed")

	// Only a recovery transition is a success signal; steady healthy sweeps
	// must not clear failure streaks accumulated from live traffic.
	if m.sink != nil && prev != nil && prev.Status == types.HealthUnhealthy {
		m.sink.RecordSuccess(name, "")
	}
}
