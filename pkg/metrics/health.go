package metrics

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Overall and readiness states reported by GetHealth and GetReadiness
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusDown     = "unhealthy"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Components that gate readiness; anything else only degrades health
var criticalComponents = []string{"store", "api"}

// checkTimeout bounds a single check inside RunChecks
const checkTimeout = 2 * time.Second

// CheckFunc checks a dependency; nil means healthy
type CheckFunc func(ctx context.Context) error

// ComponentStatus is the last known state of one component
type ComponentStatus struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Latency   time.Duration `json:"latencyNs,omitempty"`
}

// HealthStatus is the body served on /health and /ready
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
	Message    string                     `json:"message,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
	checks     map[string]CheckFunc
	started    time.Time
	version    string
}

var health = newRegistry()

func newRegistry() *registry {
	return &registry{
		components: make(map[string]ComponentStatus),
		checks:     make(map[string]CheckFunc),
		started:    time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	health.mu.Lock()
	health.version = version
	health.mu.Unlock()
}

// RegisterComponent records the health of a component
func RegisterComponent(name string, healthy bool, message string) {
	health.set(name, ComponentStatus{Healthy: healthy, Message: message, CheckedAt: time.Now()})
}

// UpdateComponent is RegisterComponent for a component that already reported
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// RegisterCheck attaches a check that RunChecks uses to refresh the
// component's health
func RegisterCheck(name string, check CheckFunc) {
	health.mu.Lock()
	health.checks[name] = check
	health.mu.Unlock()
}

func (r *registry) set(name string, status ComponentStatus) {
	r.mu.Lock()
	r.components[name] = status
	r.mu.Unlock()
}

// RunChecks runs every registered check in parallel, each bounded by its
// own timeout, and records the results
func RunChecks(ctx context.Context) {
	health.mu.RLock()
	checks := maps.Clone(health.checks)
	health.mu.RUnlock()

	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			status := ComponentStatus{Healthy: err == nil, CheckedAt: time.Now(), Latency: time.Since(start)}
			if err != nil {
				status.Message = err.Error()
			}
			health.set(name, status)
			return nil
		})
	}
	_ = g.Wait()
}

// GetHealth reports unhealthy when a critical component is down and
// degraded when only optional ones are
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := StatusHealthy
	var down []string
	for name, comp := range health.components {
		if comp.Healthy {
			continue
		}
		down = append(down, name)
		if slices.Contains(criticalComponents, name) {
			status = StatusDown
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}

	var message string
	if len(down) > 0 {
		slices.Sort(down)
		message = "failing: " + strings.Join(down, ", ")
	}
	return health.snapshot(status, message, maps.Clone(health.components))
}

// GetReadiness is ready once every critical component has reported healthy
func GetReadiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	components := make(map[string]ComponentStatus, len(criticalComponents))
	var waiting []string
	for _, name := range criticalComponents {
		comp, ok := health.components[name]
		if !ok {
			comp = ComponentStatus{Message: "not registered"}
		}
		if !comp.Healthy {
			waiting = append(waiting, name)
		}
		components[name] = comp
	}

	if len(waiting) > 0 {
		return health.snapshot(StatusNotReady, "waiting for "+strings.Join(waiting, ", "), components)
	}
	return health.snapshot(StatusReady, "", components)
}

// snapshot must be called with r.mu held
func (r *registry) snapshot(status, message string, components map[string]ComponentStatus) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}

// Uptime returns the time since the process started
func Uptime() time.Duration {
	health.mu.RLock()
	defer health.mu.RUnlock()
	return time.Since(health.started)
}
