// Package httpapi is the HTTP transport layer: it turns internal/auth.Core,
// internal/search.Engine and internal/sandbox.Service into the routes
// enumerated in spec.md section 6, translating every domain error at the
// boundary into the stable {detail: string} shape (spec.md section 7).
// Grounded on dex's server/server.go for route registration and
// server/auth_middleware.go for bearer-token extraction, generalized from a
// single OIDC provider onto this installation's device/authcode/refresh/
// legacy/pilot flows, search engine and sandbox protocol.
package httpapi

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diracgrid/diracx-go/internal/auth"
	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/extensions"
	"github.com/diracgrid/diracx-go/internal/jobdb"
	"github.com/diracgrid/diracx-go/internal/pilot"
	"github.com/diracgrid/diracx-go/internal/sandbox"
	"github.com/diracgrid/diracx-go/internal/search"
	"github.com/diracgrid/diracx-go/internal/settings"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

// Deps are the collaborators NewRouter wires into handlers. Every field
// except Now is required; a nil Now falls back to time.Now.
type Deps struct {
	Core         *auth.Core
	Verifier     *tokens.Verifier
	ConfigView   *config.View
	SearchEngine *search.Engine
	Sandbox      *sandbox.Service
	PilotDB      *pilot.DB
	JobDB        *jobdb.DB
	Extensions   *extensions.Registry
	Settings     *settings.Settings
	Logger       logrus.FieldLogger
	Health       HealthChecker
	Now          func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// server holds Deps plus the access-policy registry built during routing;
// its methods are the HTTP handlers.
type server struct {
	Deps
	policies *policyRegistry
}

// NewRouter builds the full HTTP surface described in spec.md section 6.
// devMode, when true, makes every route registration assert it carries
// either an attached access policy or an explicit require_auth=false,
// panicking at startup rather than silently serving an unprotected
// endpoint (spec.md section 4.6).
func NewRouter(deps Deps, devMode bool) http.Handler {
	s := &server{Deps: deps, policies: newPolicyRegistry(devMode)}
	return s.buildRouter()
}
