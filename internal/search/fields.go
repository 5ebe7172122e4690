// Package search implements the declarative SearchParams -> SQL query
// composer shared by every administrative resource (spec.md section 4.7).
// Grounded on internal/sqlutil's driver-flavor rebind and on the field
// descriptor table design note from original_source's
// diracx-core/src/diracx/core/models/search.py, which this package
// generalizes from Python's dynamic attribute lookup into an explicit
// Go table mapping external names, internal columns and value coercion.
package search

import (
	"fmt"
	"strconv"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// Coerce converts the string/JSON-decoded value of a search parameter
// into the Go value that should be bound into the query.
type Coerce func(value any) (any, error)

// Field describes how one external, caller-facing parameter name maps to
// a SQL column and how its values must be coerced before binding.
type Field struct {
	External string
	Column   string
	Coerce   Coerce
}

// Table is the field descriptor table for one searchable entity: the
// single source of truth for every external<->internal<->coercion
// mapping consumed by BuildQuery and Execute. The entities' own stores
// (internal/pilot, internal/jobdb) name their columns directly and do
// not read it. Field order is preserved for the "all parameters" default
// projection.
type Table struct {
	byName map[string]Field
	order  []string
}

// NewTable builds a Table from its Fields, keyed by External name.
func NewTable(fields ...Field) Table {
	t := Table{byName: make(map[string]Field, len(fields)), order: make([]string, 0, len(fields))}
	for _, f := range fields {
		t.byName[f.External] = f
		t.order = append(t.order, f.External)
	}
	return t
}

// Lookup resolves an external parameter name, returning InvalidQuery for
// anything the table doesn't declare (spec.md section 4.7: "Unknown
// parameter => InvalidQueryError").
func (t Table) Lookup(external string) (Field, error) {
	f, ok := t.byName[external]
	if !ok {
		return Field{}, apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("unknown search parameter %q", external), apperr.ErrInvalidQuery)
	}
	return f, nil
}

// All returns every external parameter name in declaration order.
func (t Table) All() []string {
	return append([]string(nil), t.order...)
}

// CoerceString parses s as the Go type T via fn, for Fields backed by a
// scalar numeric/string column.
func CoerceString[T any](fn func(string) (T, error)) Coerce {
	return func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		return fn(s)
	}
}

// Identity passes the value through unchanged; the default for string
// columns.
func Identity(value any) (any, error) { return value, nil }

// CoerceInt parses decimal integers for numeric Fields. Neither
// PilotFields nor JobFields uses it; both pass SubmissionTime through
// Identity.
var CoerceInt = CoerceString(func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })

// PilotFields is the field descriptor table for internal/pilot's pilots
// table, the concrete entity this module exposes through search.
var PilotFields = NewTable(
	Field{External: "PilotJobReference", Column: "pilot_job_reference", Coerce: Identity},
	Field{External: "PilotStamp", Column: "pilot_stamp", Coerce: Identity},
	Field{External: "VO", Column: "vo", Coerce: Identity},
	Field{External: "GridType", Column: "grid_type", Coerce: Identity},
	Field{External: "Status", Column: "status", Coerce: Identity},
	Field{External: "SubmissionTime", Column: "submission_time", Coerce: Identity},
)

// JobFields is the field descriptor table for internal/jobdb's jobs
// table, exposed through search at POST /api/jobs/search.
var JobFields = NewTable(
	Field{External: "JobID", Column: "job_id", Coerce: Identity},
	Field{External: "VO", Column: "vo", Coerce: Identity},
	Field{External: "Owner", Column: "owner", Coerce: Identity},
	Field{External: "Status", Column: "status", Coerce: Identity},
	Field{External: "MinorStatus", Column: "minor_status", Coerce: Identity},
	Field{External: "Site", Column: "site", Coerce: Identity},
	Field{External: "SubmissionTime", Column: "submission_time", Coerce: Identity},
)
