package httpapi

import (
	"net/http"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// deviceFlowRequest is POST /api/auth/device's body (spec.md section 6).
type deviceFlowRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Scope    string `json:"scope"`
}

func (s *server) handleStartDeviceFlow(w http.ResponseWriter, r *http.Request) {
	var req deviceFlowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := s.Core.StartDeviceFlow(r.Context(), req.ClientID, req.Scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, start)
}

// handleDeviceAuthorize redirects the browser to the chosen VO's IdP for
// the device flow's user-facing leg (spec.md section 4.1).
func (s *server) handleDeviceAuthorize(w http.ResponseWriter, r *http.Request) {
	userCode := r.URL.Query().Get("user_code")
	vo := r.URL.Query().Get("vo")
	if userCode == "" || vo == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "user_code and vo are required"))
		return
	}
	url, err := s.Core.DeviceFlowAuthCodeURL(r.Context(), userCode, vo)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handleDeviceCallback completes the browser leg after the IdP redirects
// back with an authorization code.
func (s *server) handleDeviceCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userCode, vo, group, code := q.Get("state"), q.Get("vo"), q.Get("group"), q.Get("code")
	if userCode == "" || vo == "" || group == "" || code == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "state, vo, group and code are required"))
		return
	}
	err := s.Core.CompleteDeviceFlow(r.Context(), userCode, vo, group, code)
	authFlowTransitions.WithLabelValues("device_code", outcomeOf(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
}

// authorizeRequest is the query parameters for GET /api/auth/authorize.
type authorizeRequest struct {
	ClientID            string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
	VO                  string
}

func parseAuthorizeRequest(r *http.Request) authorizeRequest {
	q := r.URL.Query()
	return authorizeRequest{
		ClientID:            q.Get("client_id"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		RedirectURI:         q.Get("redirect_uri"),
		VO:                  q.Get("vo"),
	}
}

// handleAuthorize starts the authorization-code flow and redirects the
// browser to the chosen VO's IdP (spec.md section 4.2). code_challenge_method
// must be S256, per spec.md section 7's InvalidRequest example.
func (s *server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	req := parseAuthorizeRequest(r)
	if req.ClientID == "" || req.RedirectURI == "" || req.VO == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "client_id, redirect_uri and vo are required"))
		return
	}
	if req.CodeChallengeMethod != "S256" {
		writeError(w, apperr.New(apperr.InvalidRequest, "code_challenge_method must be S256"))
		return
	}
	flowID, err := s.Core.StartAuthorizationFlow(r.Context(), req.ClientID, req.Scope, req.CodeChallenge, req.CodeChallengeMethod, req.RedirectURI)
	if err != nil {
		writeError(w, err)
		return
	}
	redirectURL, err := s.Core.AuthorizationFlowAuthCodeURL(r.Context(), flowID, req.VO)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// handleAuthorizeCallback completes the authorization-code flow's browser
// leg and redirects back to the client's redirect_uri with a fresh code.
func (s *server) handleAuthorizeCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flowID, vo, group, idpCode := q.Get("state"), q.Get("vo"), q.Get("group"), q.Get("code")
	if flowID == "" || vo == "" || group == "" || idpCode == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "state, vo, group and code are required"))
		return
	}
	code, redirectURI, err := s.Core.CompleteAuthorizationFlow(r.Context(), flowID, vo, group, idpCode)
	authFlowTransitions.WithLabelValues("authorization_code", outcomeOf(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, redirectURI+"?code="+code, http.StatusFound)
}

// writeTokenResponse is shared by every grant type handled at /api/auth/token.
func (s *server) writeTokenResponse(flow string, w http.ResponseWriter, bundle any, err error) {
	authFlowTransitions.WithLabelValues(flow, outcomeOf(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, bundle)
}

// handleToken implements POST /api/auth/token, dispatching on grant_type
// the way dex's handleToken does (server/tokenhandlers.go), narrowed to
// the three grants spec.md section 6 names.
func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperr.New(apperr.InvalidRequest, "could not parse request body"))
		return
	}
	ctx := r.Context()
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "device_code":
		bundle, err := s.Core.PollDeviceFlow(ctx, r.PostFormValue("device_code"))
		s.writeTokenResponse("device_code", w, bundle, err)
	case "authorization_code":
		bundle, err := s.Core.RedeemAuthorizationCode(ctx, r.PostFormValue("code"), r.PostFormValue("code_verifier"), r.PostFormValue("redirect_uri"))
		s.writeTokenResponse("authorization_code", w, bundle, err)
	case "refresh_token":
		bundle, err := s.Core.RefreshAccessToken(ctx, r.PostFormValue("refresh_token"))
		s.writeTokenResponse("refresh_token", w, bundle, err)
	default:
		writeError(w, apperr.New(apperr.InvalidRequest, "unsupported_grant_type"))
	}
}

// revokeRequest is POST /api/auth/revoke's body (RFC 7009).
type revokeRequest struct {
	Token         string `json:"token" validate:"required"`
	TokenTypeHint string `json:"token_type_hint"`
}

func (s *server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Core.Revoke(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// userInfoResponse is GET /api/auth/userinfo's body (spec.md section 4.5).
type userInfoResponse struct {
	Subject           string   `json:"sub"`
	VO                string   `json:"vo"`
	Group             string   `json:"dirac_group"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email,omitempty"`
	Properties        []string `json:"properties"`
}

func (s *server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, errMissingPrincipal())
		return
	}
	props := make([]string, len(user.Properties))
	for i, p := range user.Properties {
		props[i] = string(p)
	}
	writeJSON(w, http.StatusOK, userInfoResponse{
		Subject:           user.Subject,
		VO:                user.VO,
		Group:             user.Group,
		PreferredUsername: user.PreferredUsername,
		Email:             user.Email,
		Properties:        props,
	})
}

// handleLegacyExchange serves GET /api/auth/legacy-exchange, reading vo,
// group and preferred_username from the query string (spec.md section
// 4.4). Despite the GET verb, the API key travels as a
// Bearer Authorization header, never in the query string.
func (s *server) handleLegacyExchange(w http.ResponseWriter, r *http.Request) {
	apiKey, err := extractBearerToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	vo, group, preferredUsername := q.Get("vo"), q.Get("group"), q.Get("preferred_username")
	if vo == "" || group == "" || preferredUsername == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "vo, group and preferred_username are required"))
		return
	}
	bundle, err := s.Core.LegacyExchange(r.Context(), apiKey, vo, group, preferredUsername)
	s.writeTokenResponse("legacy_exchange", w, bundle, err)
}

// pilotLoginRequest is POST /api/auth/pilot-login's body (spec.md section
// 4.9 and 6).
type pilotLoginRequest struct {
	PilotJobReference string `json:"pilot_job_reference" validate:"required"`
	PilotSecret       string `json:"pilot_secret" validate:"required"`
}

func (s *server) handlePilotLogin(w http.ResponseWriter, r *http.Request) {
	var req pilotLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pilot, err := s.PilotDB.Verify(r.Context(), req.PilotJobReference, req.PilotSecret, s.Settings.PilotInstallationKey)
	if err != nil {
		writeError(w, err)
		return
	}
	bundle, err := s.Core.MintPilotBundle(r.Context(), pilot.PilotStamp, pilot.VO)
	s.writeTokenResponse("pilot_login", w, bundle, err)
}

// pilotRefreshRequest is POST /api/auth/pilot-refresh-token's body.
type pilotRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *server) handlePilotRefresh(w http.ResponseWriter, r *http.Request) {
	var req pilotRefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bundle, err := s.Core.RefreshPilotAccessToken(r.Context(), req.RefreshToken)
	s.writeTokenResponse("pilot_refresh_token", w, bundle, err)
}
