package httpapi

import (
	"net/http"

	gosundheit "github.com/AppsFlyer/go-sundheit"
)

// HealthChecker is the subset of gosundheit.Health the router needs,
// narrowed so tests can supply a fake instead of running real checks.
// Grounded on dex's cmd/dex/serve.go wiring of gosundheit.Health into
// kubernetes-style /healthz/{live,ready} routes, split here into the three
// spec.md section 6 endpoints.
type HealthChecker interface {
	IsHealthy() bool
	Results() (results map[string]gosundheit.Result, healthy bool)
}

type healthStatus struct {
	Status string                           `json:"status"`
	Checks map[string]gosundheit.Result `json:"checks,omitempty"`
}

// handleLive reports only that the process is up and serving; it never
// depends on the Config View or any registered check.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "ok"})
}

// handleReady and handleStartup both require a loaded Config View snapshot
// (spec.md section 6: "503 when the Config View cannot produce a
// revision") in addition to every registered gosundheit check passing.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.writeReadiness(w)
}

func (s *server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.writeReadiness(w)
}

func (s *server) writeReadiness(w http.ResponseWriter) {
	if s.ConfigView.Current() == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "config not loaded"})
		return
	}
	results, healthy := s.Health.Results()
	status := http.StatusOK
	statusText := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "degraded"
	}
	writeJSON(w, status, healthStatus{Status: statusText, Checks: results})
}
