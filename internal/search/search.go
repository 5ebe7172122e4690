package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/sqlutil"
)

// ScalarOp is a comparison operator applied against a single value.
type ScalarOp string

const (
	OpEqual       ScalarOp = "eq"
	OpNotEqual    ScalarOp = "neq"
	OpGreaterThan ScalarOp = "gt"
	OpLessThan    ScalarOp = "lt"
	OpLike        ScalarOp = "like"
	OpNotLike     ScalarOp = "not like"
	OpRegex       ScalarOp = "regex"
)

// VectorOp is a comparison operator applied against a list of values.
type VectorOp string

const (
	OpIn    VectorOp = "in"
	OpNotIn VectorOp = "not in"
)

// Spec is either a Scalar or a Vector search predicate.
type Spec interface{ isSpec() }

// Scalar matches spec.md section 4.7's Scalar search spec.
type Scalar struct {
	Parameter string
	Op        ScalarOp
	Value     any
}

func (Scalar) isSpec() {}

// Vector matches spec.md section 4.7's Vector search spec.
type Vector struct {
	Parameter string
	Op        VectorOp
	Values    []any
}

func (Vector) isSpec() {}

// SortDirection is the direction of a Sort entry.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Sort is one entry of SearchParams.sort.
type Sort struct {
	Parameter string
	Direction SortDirection
}

// Params is the declarative query spec.md section 4.7 defines: a nil
// Parameters list means "all fields".
type Params struct {
	Parameters []string
	Search     []Spec
	Sort       []Sort
	Distinct   bool
}

// Page is 1-indexed pagination input; PerPage is capped by the Engine's
// configured maximum.
type Page struct {
	Page    int
	PerPage int
}

// Result is the paginated outcome of Execute: Total reflects the filter
// before paging (spec.md section 4.7).
type Result struct {
	Total int64
	Rows  []map[string]any
}

// Engine composes and executes Params against a SQL table, always
// appending the caller's VO as an implicit eq filter (spec.md section
// 4.7, testable property 6).
type Engine struct {
	DefaultMaxPerPage int
}

// NewEngine builds an Engine with the installation's configured
// per_page cap (spec.md section 4.7 default: 10000).
func NewEngine(maxPerPage int) *Engine {
	if maxPerPage <= 0 {
		maxPerPage = 10000
	}
	return &Engine{DefaultMaxPerPage: maxPerPage}
}

type builtQuery struct {
	selectCols []string
	predicates []string
	args       []any
	orderBy    []string
}

// build composes the WHERE/ORDER BY/projection pieces shared by the row
// query and the count query, validating every referenced parameter
// against fields.
func (e *Engine) build(driver string, fields Table, voColumn, callerVO string, params Params) (builtQuery, error) {
	var bq builtQuery

	// The implicit VO filter always comes first, textually, so that it
	// is trivially visible when inspecting an emitted query.
	bq.predicates = append(bq.predicates, voColumn+" = ?")
	bq.args = append(bq.args, callerVO)

	for _, spec := range params.Search {
		switch s := spec.(type) {
		case Scalar:
			f, err := fields.Lookup(s.Parameter)
			if err != nil {
				return builtQuery{}, err
			}
			opSQL, err := scalarOpSQL(driver, s.Op)
			if err != nil {
				return builtQuery{}, err
			}
			value, err := f.Coerce(s.Value)
			if err != nil {
				return builtQuery{}, apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("invalid value for parameter %q", s.Parameter), apperr.ErrInvalidQuery)
			}
			bq.predicates = append(bq.predicates, fmt.Sprintf("%s %s ?", f.Column, opSQL))
			bq.args = append(bq.args, value)
		case Vector:
			f, err := fields.Lookup(s.Parameter)
			if err != nil {
				return builtQuery{}, err
			}
			opSQL, err := vectorOpSQL(s.Op)
			if err != nil {
				return builtQuery{}, err
			}
			if len(s.Values) == 0 {
				return builtQuery{}, apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("empty value list for parameter %q", s.Parameter), apperr.ErrInvalidQuery)
			}
			placeholders := make([]string, len(s.Values))
			for i, v := range s.Values {
				coerced, err := f.Coerce(v)
				if err != nil {
					return builtQuery{}, apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("invalid value for parameter %q", s.Parameter), apperr.ErrInvalidQuery)
				}
				placeholders[i] = "?"
				bq.args = append(bq.args, coerced)
			}
			bq.predicates = append(bq.predicates, fmt.Sprintf("%s %s (%s)", f.Column, opSQL, strings.Join(placeholders, ", ")))
		default:
			return builtQuery{}, apperr.New(apperr.InvalidRequest, "unsupported search spec")
		}
	}

	external := params.Parameters
	if external == nil {
		external = fields.All()
	}
	for _, name := range external {
		f, err := fields.Lookup(name)
		if err != nil {
			return builtQuery{}, err
		}
		bq.selectCols = append(bq.selectCols, fmt.Sprintf("%s AS %s", f.Column, name))
	}

	for _, s := range params.Sort {
		f, err := fields.Lookup(s.Parameter)
		if err != nil {
			return builtQuery{}, err
		}
		dir := "ASC"
		if s.Direction == SortDescending {
			dir = "DESC"
		}
		bq.orderBy = append(bq.orderBy, fmt.Sprintf("%s %s", f.Column, dir))
	}

	return bq, nil
}

// scalarOpSQL returns the backend-native operator for op. regex is the
// one operator whose SQL text differs by driver: Postgres spells it "~",
// SQLite's REGEXP keyword dispatches to the custom function registered
// in sqlite_regexp.go (spec.md section 4.7: "regex semantics are
// backend-native").
func scalarOpSQL(driver string, op ScalarOp) (string, error) {
	switch op {
	case OpEqual:
		return "=", nil
	case OpNotEqual:
		return "!=", nil
	case OpGreaterThan:
		return ">", nil
	case OpLessThan:
		return "<", nil
	case OpLike:
		return "LIKE", nil
	case OpNotLike:
		return "NOT LIKE", nil
	case OpRegex:
		if driver == "postgres" {
			return "~", nil
		}
		return "REGEXP", nil
	default:
		return "", apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("unknown scalar operator %q", op), apperr.ErrInvalidQuery)
	}
}

func vectorOpSQL(op VectorOp) (string, error) {
	switch op {
	case OpIn:
		return "IN", nil
	case OpNotIn:
		return "NOT IN", nil
	default:
		return "", apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("unknown vector operator %q", op), apperr.ErrInvalidQuery)
	}
}

// BuildQuery composes the row-fetching query for inspection/testing
// purposes (testable property 6: the implicit VO predicate is always
// present and always first).
func (e *Engine) BuildQuery(driver string, fields Table, table, voColumn, callerVO string, params Params, page Page) (string, []any, error) {
	bq, err := e.build(driver, fields, voColumn, callerVO, params)
	if err != nil {
		return "", nil, err
	}
	return e.rowQuery(driver, table, bq, params.Distinct, page), bq.args, nil
}

func (e *Engine) rowQuery(driver, table string, bq builtQuery, distinct bool, page Page) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(bq.selectCols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(bq.predicates, " AND "))
	if len(bq.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(bq.orderBy, ", "))
	}

	perPage := page.PerPage
	if perPage <= 0 || perPage > e.DefaultMaxPerPage {
		perPage = e.DefaultMaxPerPage
	}
	pageNum := page.Page
	if pageNum < 1 {
		pageNum = 1
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", perPage, (pageNum-1)*perPage)

	return sqlutil.Rebind(driver, b.String())
}

// Execute runs Params against table via db, returning the total matching
// row count (computed over the filtered, projected and possibly
// deduplicated result, before paging) alongside the current page of
// rows keyed by external parameter name.
func (e *Engine) Execute(ctx context.Context, db *sqlx.DB, driver string, fields Table, table, voColumn, callerVO string, params Params, page Page) (Result, error) {
	bq, err := e.build(driver, fields, voColumn, callerVO, params)
	if err != nil {
		return Result{}, err
	}

	rowSQL := e.rowQuery(driver, table, bq, params.Distinct, page)

	var distinctKeyword string
	if params.Distinct {
		distinctKeyword = "DISTINCT "
	}
	countSQL := sqlutil.Rebind(driver, fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s%s FROM %s WHERE %s) AS counted",
		distinctKeyword, strings.Join(bq.selectCols, ", "), table, strings.Join(bq.predicates, " AND "),
	))

	var total int64
	if err := db.GetContext(ctx, &total, countSQL, bq.args...); err != nil {
		return Result{}, fmt.Errorf("search: counting: %w", err)
	}

	rows, err := db.QueryxContext(ctx, rowSQL, bq.args...)
	if err != nil {
		return Result{}, fmt.Errorf("search: querying: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return Result{}, fmt.Errorf("search: scanning row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("search: iterating rows: %w", err)
	}

	return Result{Total: total, Rows: out}, nil
}
