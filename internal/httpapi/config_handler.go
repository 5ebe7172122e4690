package httpapi

import (
	"net/http"
	"time"
)

// handleGetConfig implements spec.md section 6's GET /api/config/: it
// returns the current config tree with ETag and Last-Modified, honoring
// If-None-Match and If-Modified-Since with a 304 when either matches
// (spec.md section 6 and scenario E), the resolution of the open question
// in spec.md section 9 about which conditional header takes precedence —
// either is sufficient, neither is required over the other.
func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ConfigView.Current()
	if snapshot == nil {
		writeError(w, errConfigUnavailableHTTP())
		return
	}

	etag := `"` + snapshot.ETag() + `"`
	lastModified := snapshot.Tree.LastModified.UTC().Truncate(time.Second)

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !lastModified.After(t) {
			w.Header().Set("ETag", etag)
			w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
	writeJSON(w, http.StatusOK, snapshot.Tree.Registry)
}
