package idp

import (
	"context"
	"fmt"
	"sync"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/config"
)

// Registry lazily builds and caches one Client per VO, keyed off whatever
// IdP binding the current Config View snapshot reports. It mirrors dex's
// server.go connector cache, but looked up by VO name against a live
// config.View instead of a static connector list read once at startup.
type Registry struct {
	view        *config.View
	redirectURI string

	mu      sync.Mutex
	clients map[string]*Client
	vos     map[string]config.IdP
}

func NewRegistry(view *config.View, redirectURI string) *Registry {
	return &Registry{
		view:        view,
		redirectURI: redirectURI,
		clients:     make(map[string]*Client),
		vos:         make(map[string]config.IdP),
	}
}

func (r *Registry) clientFor(ctx context.Context, vo string) (*Client, error) {
	snapshot := r.view.Current()
	if snapshot == nil {
		return nil, apperr.New(apperr.Unavailable, "configuration not loaded")
	}
	voConfig, ok := snapshot.Tree.Registry[vo]
	if !ok {
		return nil, apperr.New(apperr.InvalidRequest, "unknown VO")
	}

	r.mu.Lock()
	cached, known := r.vos[vo]
	client := r.clients[vo]
	r.mu.Unlock()

	if known && cached == voConfig.IdP && client != nil {
		return client, nil
	}

	built, err := New(ctx, voConfig.IdP.URL, voConfig.IdP.ClientID, "", r.redirectURI, []string{"profile", "email"})
	if err != nil {
		return nil, fmt.Errorf("idp: building client for vo %s: %w", vo, err)
	}

	r.mu.Lock()
	r.clients[vo] = built
	r.vos[vo] = voConfig.IdP
	r.mu.Unlock()
	return built, nil
}

// AuthCodeURL builds the browser redirect URL for vo's IdP.
func (r *Registry) AuthCodeURL(ctx context.Context, vo, state string) (string, error) {
	client, err := r.clientFor(ctx, vo)
	if err != nil {
		return "", err
	}
	return client.AuthCodeURL(state), nil
}

// Identity is what the Auth Core needs from a verified external ID token:
// just enough to resolve a VO user (spec.md section 4.5).
type Identity struct {
	Subject           string
	PreferredUsername string
	Email             string
}

// Exchange trades vo's IdP authorization code for a verified identity.
func (r *Registry) Exchange(ctx context.Context, vo, code string) (Identity, error) {
	client, err := r.clientFor(ctx, vo)
	if err != nil {
		return Identity{}, err
	}
	idToken, err := client.Exchange(ctx, code)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.AuthenticationRequired, "identity provider exchange failed", err)
	}
	var claims struct {
		Subject           string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, apperr.Wrap(apperr.AuthenticationRequired, "malformed identity provider claims", err)
	}
	return Identity{Subject: claims.Subject, PreferredUsername: claims.PreferredUsername, Email: claims.Email}, nil
}
