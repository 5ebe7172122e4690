package httpapi

import (
	"net/http"
	"sort"
)

// discoveryDoc is the OIDC metadata document (spec.md section 6), grounded
// on dex's discovery struct (server/handlers.go) and narrowed to the
// fields this installation actually supports.
type discoveryDoc struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	DeviceAuthorizationEndpoint   string   `json:"device_authorization_endpoint"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	SubjectTypesSupported         []string `json:"subject_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

func (s *server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	issuer := s.Settings.Issuer
	doc := discoveryDoc{
		Issuer:                      issuer,
		AuthorizationEndpoint:       issuer + "/api/auth/authorize",
		TokenEndpoint:               issuer + "/api/auth/token",
		DeviceAuthorizationEndpoint: issuer + "/api/auth/device",
		UserinfoEndpoint:            issuer + "/api/auth/userinfo",
		RevocationEndpoint:          issuer + "/api/auth/revoke",
		ResponseTypesSupported:      []string{"code"},
		GrantTypesSupported:         []string{"device_code", "authorization_code", "refresh_token"},
		SubjectTypesSupported:       []string{"public"},
		// S256-only per spec.md section 7: code_challenge_method != S256 is
		// an InvalidRequest, so "plain" is never advertised.
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	writeJSON(w, http.StatusOK, doc)
}

// diracMetadataGroup is one group's public shape within the metadata
// document (spec.md section 6: "enumerates VOs and their groups").
type diracMetadataGroup struct {
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
}

type diracMetadataVO struct {
	Name         string                `json:"name"`
	DefaultGroup string                `json:"default_group"`
	Groups       []diracMetadataGroup  `json:"groups"`
	SupportEmail string                `json:"support_email,omitempty"`
}

func (s *server) handleDiracMetadata(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ConfigView.Current()
	if snapshot == nil {
		writeError(w, errConfigUnavailableHTTP())
		return
	}

	vos := make([]diracMetadataVO, 0, len(snapshot.Tree.Registry))
	for voName, vo := range snapshot.Tree.Registry {
		groups := make([]diracMetadataGroup, 0, len(vo.Groups))
		for groupName, g := range vo.Groups {
			props := make([]string, 0, len(g.Properties))
			for p := range g.Properties {
				props = append(props, string(p))
			}
			sort.Strings(props)
			groups = append(groups, diracMetadataGroup{Name: groupName, Properties: props})
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
		vos = append(vos, diracMetadataVO{
			Name:         voName,
			DefaultGroup: vo.DefaultGroup,
			Groups:       groups,
			SupportEmail: vo.SupportEmail,
		})
	}
	sort.Slice(vos, func(i, j int) bool { return vos[i].Name < vos[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{"vos": vos})
}
