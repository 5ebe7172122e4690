// Package config implements the Config View: a read-only, versioned
// snapshot of the VO/group/user/property/IdP tree described in spec.md
// section 3, refreshed asynchronously from a ConfigSource.
package config

// SecurityProperty is a capability tag consulted by access policies, e.g.
// NormalUser, JobSharing, GenericPilot (spec.md GLOSSARY).
type SecurityProperty string

const (
	PropertyNormalUser   SecurityProperty = "NORMAL_USER"
	PropertyJobSharing   SecurityProperty = "JOB_SHARING"
	PropertyGenericPilot SecurityProperty = "GENERIC_PILOT"
	PropertyAdmin        SecurityProperty = "CS_ADMINISTRATOR"
)

// IdP is the OpenID Connect identity provider bound to a VO.
type IdP struct {
	URL      string `json:"url"`
	ClientID string `json:"client_id"`
}

// User is a registered principal within a VO, keyed by Subject in VO.Users.
type User struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email,omitempty"`
}

// Group is a named set of users within a VO carrying security properties.
type Group struct {
	Properties         map[SecurityProperty]struct{} `json:"properties"`
	Users              map[string]struct{}           `json:"users"`
	JobShare           int                            `json:"job_share"`
	AllowBackgroundTQs bool                            `json:"allow_background_tqs"`
}

// HasProperty reports whether g carries the given property.
func (g Group) HasProperty(p SecurityProperty) bool {
	_, ok := g.Properties[p]
	return ok
}

// PropertySet returns g's properties as a plain slice, for JSON responses.
func (g Group) PropertySet() []SecurityProperty {
	out := make([]SecurityProperty, 0, len(g.Properties))
	for p := range g.Properties {
		out = append(out, p)
	}
	return out
}

// VO is a tenant: owns groups, users and an IdP binding.
type VO struct {
	IdP          IdP              `json:"idp"`
	DefaultGroup string           `json:"default_group"`
	Groups       map[string]Group `json:"groups"`
	Users        map[string]User  `json:"users"`
	SupportEmail string           `json:"support_email,omitempty"`
}

// Registry is the full VO tree.
type Registry map[string]VO

// Validate enforces spec.md section 3's invariants: every Group.Users
// member must exist in VO.Users, and DefaultGroup must be one of Groups.
func (r Registry) Validate() error {
	for voName, vo := range r {
		if _, ok := vo.Groups[vo.DefaultGroup]; !ok {
			return &ValidationError{VO: voName, Msg: "default_group " + vo.DefaultGroup + " is not a declared group"}
		}
		for groupName, g := range vo.Groups {
			for sub := range g.Users {
				if _, ok := vo.Users[sub]; !ok {
					return &ValidationError{VO: voName, Msg: "group " + groupName + " references unknown user " + sub}
				}
			}
		}
	}
	return nil
}

// ValidationError reports a Registry invariant violation.
type ValidationError struct {
	VO  string
	Msg string
}

func (e *ValidationError) Error() string {
	return "config: vo " + e.VO + ": " + e.Msg
}

// ResolveUser finds the User and subject matching a preferred_username
// within a single group of a VO, reporting ok=false unless exactly one
// match exists (used by the legacy bearer exchange, spec.md section 4.4).
func (v VO) ResolveUser(group, preferredUsername string) (subject string, user User, ok bool) {
	g, found := v.Groups[group]
	if !found {
		return "", User{}, false
	}
	matches := 0
	for sub := range g.Users {
		u, exists := v.Users[sub]
		if !exists || u.PreferredUsername != preferredUsername {
			continue
		}
		matches++
		subject, user = sub, u
	}
	if matches != 1 {
		return "", User{}, false
	}
	return subject, user, true
}
