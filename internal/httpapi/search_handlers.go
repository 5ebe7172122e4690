package httpapi

import (
	"net/http"
	"strconv"

	"github.com/diracgrid/diracx-go/internal/search"
)

// searchRequest mirrors spec.md section 4.7's SearchParams. page/per_page
// travel as query parameters on the same POST request, the way the
// original paginates a declarative search body.
type searchRequest struct {
	Parameters []string        `json:"parameters"`
	Search     []searchSpecDTO `json:"search"`
	Sort       []sortDTO       `json:"sort"`
	Distinct   bool            `json:"distinct"`
}

type searchSpecDTO struct {
	Parameter string `json:"parameter" validate:"required"`
	Operator  string `json:"operator" validate:"required"`
	Value     any    `json:"value,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

type sortDTO struct {
	Parameter string `json:"parameter" validate:"required"`
	Direction string `json:"direction"`
}

var vectorOps = map[string]search.VectorOp{
	string(search.OpIn):    search.OpIn,
	string(search.OpNotIn): search.OpNotIn,
}

var scalarOps = map[string]search.ScalarOp{
	string(search.OpEqual):       search.OpEqual,
	string(search.OpNotEqual):    search.OpNotEqual,
	string(search.OpGreaterThan): search.OpGreaterThan,
	string(search.OpLessThan):    search.OpLessThan,
	string(search.OpLike):        search.OpLike,
	string(search.OpNotLike):     search.OpNotLike,
	string(search.OpRegex):       search.OpRegex,
}

func (req searchRequest) toParams() (search.Params, error) {
	params := search.Params{Parameters: req.Parameters, Distinct: req.Distinct}
	for _, s := range req.Search {
		if op, ok := vectorOps[s.Operator]; ok {
			params.Search = append(params.Search, search.Vector{Parameter: s.Parameter, Op: op, Values: s.Values})
			continue
		}
		op, ok := scalarOps[s.Operator]
		if !ok {
			return search.Params{}, invalidSearchOperator(s.Operator)
		}
		params.Search = append(params.Search, search.Scalar{Parameter: s.Parameter, Op: op, Value: s.Value})
	}
	for _, sortEntry := range req.Sort {
		dir := search.SortAscending
		if sortEntry.Direction == string(search.SortDescending) {
			dir = search.SortDescending
		}
		params.Sort = append(params.Sort, search.Sort{Parameter: sortEntry.Parameter, Direction: dir})
	}
	return params, nil
}

func parsePage(r *http.Request, maxPerPage int) search.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	return search.Page{Page: page, PerPage: perPage}
}

// searchResponse mirrors spec.md section 4.7's {total, rows} shape.
type searchResponse struct {
	Total int64            `json:"total"`
	Rows  []map[string]any `json:"rows"`
}

func (s *server) handleJobsSearch(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, errMissingPrincipal())
		return
	}
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params, err := req.toParams()
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.SearchEngine.Execute(r.Context(), s.JobDB.Conn(), s.JobDB.Driver(), search.JobFields, "jobs", "vo", user.VO, params, parsePage(r, s.Settings.MaxPerPage))
	searchQueries.WithLabelValues("jobs", outcomeOf(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Total: result.Total, Rows: result.Rows})
}

func (s *server) handlePilotsSearch(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, errMissingPrincipal())
		return
	}
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params, err := req.toParams()
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.SearchEngine.Execute(r.Context(), s.PilotDB.Conn(), s.PilotDB.Driver(), search.PilotFields, "pilots", "vo", user.VO, params, parsePage(r, s.Settings.MaxPerPage))
	searchQueries.WithLabelValues("pilots", outcomeOf(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Total: result.Total, Rows: result.Rows})
}
