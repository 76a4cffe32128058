package http

import (
	"net/http"
	"runtime"
	"time"

	"callinsights-server/pkg/version"
)

// HealthStatus is the body of the /health endpoint
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult is one component's health verdict
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo carries process-level resource numbers
type SystemInfo struct {
	GoRoutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memory_mb"`
	CPUCount   int    `json:"cpu_count"`
}

// HealthHandler reports overall service health with per-component checks
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	if err := s.store.Ping(r.Context()); err != nil {
		health.Checks["store"] = CheckResult{Status: "unhealthy", Message: err.Error()}
		health.Status = "unhealthy"
	} else {
		health.Checks["store"] = CheckResult{Status: "healthy", Message: "Store reachable"}
	}

	if s.scheduler != nil {
		message := "Idle"
		if s.scheduler.IsRunning() {
			message = "Recompute run in progress"
		}
		health.Checks["scheduler"] = CheckResult{Status: "healthy", Message: message}
	}

	// Event publishing is optional; a down broker degrades, never fails
	if s.publisher != nil {
		if s.publisher.IsConnected() {
			health.Checks["amqp"] = CheckResult{Status: "healthy", Message: "Broker connected"}
		} else {
			health.Checks["amqp"] = CheckResult{Status: "degraded", Message: "Broker not connected"}
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	health.System = SystemInfo{
		GoRoutines: runtime.NumGoroutine(),
		MemoryMB:   memStats.Alloc / 1024 / 1024,
		CPUCount:   runtime.NumCPU(),
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

// LivenessHandler answers as long as the process is serving requests
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessHandler verifies the store before declaring the service ready
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
