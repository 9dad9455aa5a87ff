package probe

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mediaprobe/server/internal/shared/metrics"
)

// HealthStatus represents the reachability of one fleet endpoint.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// Pinger performs a lightweight reachability check.
type Pinger interface {
	Ping(ctx context.Context, ep Endpoint) error
}

// HealthMonitor periodically checks every fleet endpoint behind a circuit
// breaker. Health is advisory: runs against unhealthy endpoints still execute
// and report their own failures.
type HealthMonitor struct {
	mu sync.RWMutex

	fleet     *Fleet
	pinger    Pinger
	breakers  map[string]*gobreaker.CircuitBreaker[any]
	status    map[string]HealthStatus
	lastCheck map[string]time.Time

	checkInterval time.Duration
	checkTimeout  time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
	stopCh        chan struct{}
}

// HealthConfig contains health monitor configuration.
type HealthConfig struct {
	CheckInterval    time.Duration
	CheckTimeout     time.Duration
	FailureThreshold uint32
}

// DefaultHealthConfig returns the default health monitor configuration.
func DefaultHealthConfig() *HealthConfig {
	return &HealthConfig{
		CheckInterval:    30 * time.Second,
		CheckTimeout:     10 * time.Second,
		FailureThreshold: 5,
	}
}

// NewHealthMonitor creates a monitor for the fleet.
func NewHealthMonitor(fleet *Fleet, pinger Pinger, cfg *HealthConfig, logger *zap.Logger, m *metrics.Metrics) *HealthMonitor {
	if cfg == nil {
		cfg = DefaultHealthConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &HealthMonitor{
		fleet:         fleet,
		pinger:        pinger,
		breakers:      make(map[string]*gobreaker.CircuitBreaker[any]),
		status:        make(map[string]HealthStatus),
		lastCheck:     make(map[string]time.Time),
		checkInterval: cfg.CheckInterval,
		checkTimeout:  cfg.CheckTimeout,
		logger:        logger.Named("health"),
		metrics:       m,
		stopCh:        make(chan struct{}),
	}

	for _, ep := range fleet.All() {
		h.status[ep.ID] = HealthStatusUnknown
		h.breakers[ep.ID] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        ep.ID,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
		})
	}

	return h
}

// Start begins background health checking.
func (h *HealthMonitor) Start() {
	go h.monitorLoop()
}

// Stop stops the background loop.
func (h *HealthMonitor) Stop() {
	close(h.stopCh)
}

func (h *HealthMonitor) monitorLoop() {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.CheckAll(context.Background())
		}
	}
}

// CheckAll checks every endpoint once.
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	for _, ep := range h.fleet.All() {
		checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
		h.Check(checkCtx, ep)
		cancel()
	}
}

// Check checks one endpoint through its circuit breaker and records the
// outcome.
func (h *HealthMonitor) Check(ctx context.Context, ep Endpoint) error {
	h.mu.RLock()
	breaker := h.breakers[ep.ID]
	h.mu.RUnlock()

	var err error
	if breaker != nil {
		_, err = breaker.Execute(func() (any, error) {
			return nil, h.pinger.Ping(ctx, ep)
		})
	} else {
		err = h.pinger.Ping(ctx, ep)
	}

	status := HealthStatusHealthy
	if err != nil {
		status = HealthStatusUnhealthy
		h.logger.Debug("endpoint unhealthy",
			zap.String("endpoint", ep.ID),
			zap.Error(err))
	}

	h.mu.Lock()
	h.status[ep.ID] = status
	h.lastCheck[ep.ID] = time.Now()
	h.mu.Unlock()

	h.metrics.SetEndpointHealth(ep.ID, status == HealthStatusHealthy)
	return err
}

// Status returns the last observed health of an endpoint.
func (h *HealthMonitor) Status(endpointID string) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.status[endpointID]; ok {
		return s
	}
	return HealthStatusUnknown
}

// All returns the last observed health of every endpoint.
func (h *HealthMonitor) All() map[string]HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]HealthStatus, len(h.status))
	for k, v := range h.status {
		out[k] = v
	}
	return out
}
