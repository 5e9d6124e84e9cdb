package system

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) error

// Health implements HealthChecker.
func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// HealthSnapshot is the /healthz payload.
type HealthSnapshot struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	MemoryUsed uint64            `json:"memoryUsedBytes"`
	Load1      float64           `json:"load1"`
	Checks     map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves a process health snapshot plus dependency checks.
func HealthHandler(startedAt time.Time, checks map[string]HealthChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := HealthSnapshot{
			Status:     "ok",
			Uptime:     time.Since(startedAt).Round(time.Second).String(),
			Goroutines: runtime.NumGoroutine(),
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			snap.MemoryUsed = vm.Used
		}
		if avg, err := load.Avg(); err == nil {
			snap.Load1 = avg.Load1
		}

		status := http.StatusOK
		if len(checks) > 0 {
			snap.Checks = make(map[string]string, len(checks))
			for name, c := range checks {
				if err := c.Health(r.Context()); err != nil {
					snap.Checks[name] = err.Error()
					snap.Status = "degraded"
					status = http.StatusServiceUnavailable
				} else {
					snap.Checks[name] = "ok"
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(snap)
	})
}
