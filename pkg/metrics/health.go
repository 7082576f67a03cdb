package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const serviceName = "live-memory"

// HealthStatus is the JSON body served on /health and /ready.
type HealthStatus struct {
	Status        string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Service       string            `json:"service"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    map[string]string `json:"components,omitempty"`
	Message       string            `json:"message,omitempty"`
	Version       string            `json:"version,omitempty"`
	Uptime        string            `json:"uptime,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

type componentState struct {
	healthy bool
	message string
	updated time.Time
}

// Checker aggregates component states into health and readiness
// reports. Readiness gates on the critical components only; a failing
// non-critical component degrades health without blocking traffic.
type Checker struct {
	mu         sync.RWMutex
	components map[string]componentState
	critical   []string
	version    string
	startedAt  time.Time
}

// NewChecker builds a checker whose readiness waits for the named
// critical components.
func NewChecker(critical ...string) *Checker {
	return &Checker{
		components: make(map[string]componentState),
		critical:   critical,
		startedAt:  time.Now(),
	}
}

// defaultChecker backs the package-level functions. Storage and the
// API gate readiness; the LLM entry only degrades health when the
// consolidation endpoint is unreachable.
var defaultChecker = NewChecker("storage", "api")

// SetVersion stamps health responses from the default checker.
func SetVersion(version string) { defaultChecker.SetVersion(version) }

// SetComponent records the state of one component on the default
// checker, creating the entry on first use.
func SetComponent(name string, healthy bool, message string) {
	defaultChecker.SetComponent(name, healthy, message)
}

// GetHealth reports the aggregate health of the default checker.
func GetHealth() HealthStatus { return defaultChecker.Health() }

// GetReadiness reports the readiness of the default checker.
func GetReadiness() HealthStatus { return defaultChecker.Readiness() }

// HealthHandler serves the default checker under GET /health.
func HealthHandler() http.HandlerFunc { return defaultChecker.HealthHandler() }

// ReadyHandler serves the default checker under GET /ready.
func ReadyHandler() http.HandlerFunc { return defaultChecker.ReadyHandler() }

// SetVersion stamps responses produced by this checker.
func (c *Checker) SetVersion(version string) {
	c.mu.Lock()
	c.version = version
	c.mu.Unlock()
}

// SetComponent records the current state of one component.
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	c.components[name] = componentState{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
	c.mu.Unlock()
}

func (c *Checker) isCritical(name string) bool {
	for _, n := range c.critical {
		if n == name {
			return true
		}
	}
	return false
}

// Health aggregates every registered component. An unhealthy critical
// component turns the report unhealthy; any other failure only
// degrades it.
func (c *Checker) Health() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(c.components))
	for name, state := range c.components {
		if state.healthy {
			components[name] = "healthy"
			continue
		}
		components[name] = "unhealthy: " + state.message
		if c.isCritical(name) {
			status = "unhealthy"
		} else if status == "healthy" {
			status = "degraded"
		}
	}

	return c.report(status, "", components)
}

// Readiness checks the critical components only. An entry missing
// from the registry means that component has not finished starting.
func (c *Checker) Readiness() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(c.critical))
	for _, name := range c.critical {
		state, registered := c.components[name]
		switch {
		case !registered:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !state.healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + state.message
		default:
			components[name] = "ready"
		}
	}

	return c.report(status, message, components)
}

// report assembles the response body. Callers hold at least a read
// lock.
func (c *Checker) report(status, message string, components map[string]string) HealthStatus {
	uptime := time.Since(c.startedAt)
	return HealthStatus{
		Status:        status,
		Service:       serviceName,
		Timestamp:     time.Now(),
		Components:    components,
		Message:       message,
		Version:       c.version,
		Uptime:        uptime.String(),
		UptimeSeconds: uptime.Seconds(),
	}
}

// HealthHandler serves the health report. Degraded still answers 200;
// only an unhealthy critical component turns the endpoint 503.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := c.Health()
		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// ReadyHandler serves the readiness report, answering 503 until every
// critical component has come up.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := c.Readiness()
		code := http.StatusOK
		if ready.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, ready)
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
