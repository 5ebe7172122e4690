package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter wires every route named in spec.md section 6, grounded on
// dex's server.go handle/handleFunc/handleWithCORS closures (server/
// server.go), generalized from a single-issuer OIDC provider onto this
// installation's full auth/search/sandbox surface. Every route is
// registered through public/authenticated (both wrapping handle) so its access-policy
// status is always recorded with s.policies before assertComplete runs.
func (s *server) buildRouter() http.Handler {
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()
	r.NotFoundHandler = http.NotFoundHandler()

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)

	handle := func(method, path string, h http.HandlerFunc) {
		r.Handle(path, instrument(s.Logger, path, cors(h))).Methods(method, http.MethodOptions)
	}
	// public marks a route as intentionally unauthenticated, satisfying the
	// dev-mode access-policy assertion without attaching a Policy.
	public := func(method, path string, h http.HandlerFunc) {
		s.policies.require(path, false)
		handle(method, path, h)
	}
	// authenticated marks a route as carrying its own authorization check
	// inline (requireUser/requirePilot plus whatever the handler itself
	// enforces), satisfying the assertion without a separate Policy value.
	authenticated := func(method, path string, h http.HandlerFunc) {
		s.policies.require(path, true)
		handle(method, path, h)
	}

	// Metrics (spec.md section 6's ambient "Metrics" stack).
	public(http.MethodGet, "/metrics", promhttp.Handler().ServeHTTP)

	// Discovery (spec.md section 6).
	public(http.MethodGet, "/.well-known/openid-configuration", s.handleDiscovery)
	public(http.MethodGet, "/.well-known/dirac-metadata", s.handleDiracMetadata)

	// Health (spec.md section 6, Kubernetes-style three-way split).
	public(http.MethodGet, "/api/health/live", s.handleLive)
	public(http.MethodGet, "/api/health/ready", s.handleReady)
	public(http.MethodGet, "/api/health/startup", s.handleStartup)

	// Configuration view, with conditional-GET support (spec.md section 6).
	public(http.MethodGet, "/api/config/", s.handleGetConfig)

	// Device flow (spec.md section 4.1).
	public(http.MethodPost, "/api/auth/device", s.handleStartDeviceFlow)
	public(http.MethodGet, "/api/auth/device/authorize", s.handleDeviceAuthorize)
	public(http.MethodGet, "/api/auth/device/callback", s.handleDeviceCallback)

	// Authorization-code flow (spec.md section 4.2).
	public(http.MethodGet, "/api/auth/authorize", s.handleAuthorize)
	public(http.MethodGet, "/api/auth/callback", s.handleAuthorizeCallback)

	// Token endpoint, grant_type-dispatched (spec.md section 4.1-4.3, 6).
	public(http.MethodPost, "/api/auth/token", s.handleToken)
	public(http.MethodPost, "/api/auth/revoke", s.handleRevoke)

	// Bearer-authenticated endpoints.
	authenticated(http.MethodGet, "/api/auth/userinfo", s.requireUser(s.handleUserInfo))
	authenticated(http.MethodGet, "/api/auth/legacy-exchange", s.handleLegacyExchange)

	// Pilot credential exchange (spec.md section 4.9, 6).
	public(http.MethodPost, "/api/auth/pilot-login", s.handlePilotLogin)
	public(http.MethodPost, "/api/auth/pilot-refresh-token", s.handlePilotRefresh)

	// Search (spec.md section 4.7, 6).
	authenticated(http.MethodPost, "/api/jobs/search", s.requireUser(s.handleJobsSearch))
	authenticated(http.MethodPost, "/api/pilots/management/search", s.requireUser(s.handlePilotsSearch))

	// Sandbox protocol (spec.md section 4.8, 6).
	authenticated(http.MethodPost, "/api/jobs/sandbox", s.requireUser(s.handleInitiateUpload))
	authenticated(http.MethodGet, "/api/jobs/sandbox", s.requireUser(s.handleDownload))

	s.policies.assertComplete(r)
	return r
}
