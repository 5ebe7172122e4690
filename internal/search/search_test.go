package search

import (
	"context"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/pilot"
)

func newTestPilots(t *testing.T) *sqlx.DB {
	t.Helper()
	RegisterSQLiteRegexp()

	conn, err := sqlx.Open("sqlite3_with_regexp", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	require.NoError(t, conn.Ping())
	require.NoError(t, pilot.Migrate(conn.DB, "sqlite3"))
	t.Cleanup(func() { _ = conn.Close() })

	seed := []struct{ ref, stamp, vo, status string }{
		{"ref-1", "stamp-1", "lhcb", "SUBMITTED"},
		{"ref-2", "stamp-2", "lhcb", "RUNNING"},
		{"ref-3", "stamp-3", "gridpp", "RUNNING"},
	}
	for _, s := range seed {
		_, err := conn.Exec(`
			INSERT INTO pilots (pilot_job_reference, pilot_stamp, vo, grid_type, status, submission_time, hashed_secret)
			VALUES (?, ?, ?, 'DIRAC', ?, '2026-01-01 00:00:00', 'x')`,
			s.ref, s.stamp, s.vo, s.status)
		require.NoError(t, err)
	}
	return conn
}

func TestBuildQueryAlwaysPrependsImplicitVOFilter(t *testing.T) {
	engine := NewEngine(10000)
	query, args, err := engine.BuildQuery("sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{}, Page{Page: 1, PerPage: 10})
	require.NoError(t, err)

	assert.True(t, strings.Contains(query, "WHERE vo = ?"), "query: %s", query)
	assert.Equal(t, "lhcb", args[0])
}

func TestBuildQueryRejectsUnknownParameter(t *testing.T) {
	engine := NewEngine(10000)
	_, _, err := engine.BuildQuery("sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{
		Search: []Spec{Scalar{Parameter: "NoSuchField", Op: OpEqual, Value: "x"}},
	}, Page{})
	assert.Error(t, err)
}

func TestExecuteImplicitVOFilterScopesResults(t *testing.T) {
	db := newTestPilots(t)
	engine := NewEngine(10000)

	result, err := engine.Execute(context.Background(), db, "sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{}, Page{Page: 1, PerPage: 100})
	require.NoError(t, err)

	assert.EqualValues(t, 2, result.Total)
	for _, row := range result.Rows {
		assert.Equal(t, "lhcb", row["VO"])
	}
}

func TestExecuteScalarEqualMatchesRawScanCount(t *testing.T) {
	db := newTestPilots(t)
	engine := NewEngine(10000)

	result, err := engine.Execute(context.Background(), db, "sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{
		Search: []Spec{Scalar{Parameter: "Status", Op: OpEqual, Value: "RUNNING"}},
	}, Page{Page: 1, PerPage: 100})
	require.NoError(t, err)

	var rawCount int
	require.NoError(t, db.Get(&rawCount, `SELECT COUNT(*) FROM pilots WHERE vo = ? AND status = ?`, "lhcb", "RUNNING"))
	assert.EqualValues(t, rawCount, result.Total)
}

func TestExecuteDistinctDeduplicatesProjectedRows(t *testing.T) {
	db := newTestPilots(t)
	engine := NewEngine(10000)

	result, err := engine.Execute(context.Background(), db, "sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{
		Parameters: []string{"VO"},
		Distinct:   true,
	}, Page{Page: 1, PerPage: 100})
	require.NoError(t, err)

	assert.EqualValues(t, 1, result.Total)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "lhcb", result.Rows[0]["VO"])
}

func TestExecutePagingCapsAtInstallationMax(t *testing.T) {
	db := newTestPilots(t)
	engine := NewEngine(1)

	result, err := engine.Execute(context.Background(), db, "sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{}, Page{Page: 1, PerPage: 1000})
	require.NoError(t, err)

	assert.EqualValues(t, 2, result.Total)
	assert.Len(t, result.Rows, 1)
}

func TestExecuteRegexOperator(t *testing.T) {
	db := newTestPilots(t)
	engine := NewEngine(10000)

	result, err := engine.Execute(context.Background(), db, "sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{
		Search: []Spec{Scalar{Parameter: "PilotStamp", Op: OpRegex, Value: "^stamp-[0-9]+$"}},
	}, Page{Page: 1, PerPage: 100})
	require.NoError(t, err)

	assert.EqualValues(t, 2, result.Total)
}

func TestExecuteVectorIn(t *testing.T) {
	db := newTestPilots(t)
	engine := NewEngine(10000)

	result, err := engine.Execute(context.Background(), db, "sqlite3", PilotFields, "pilots", "vo", "lhcb", Params{
		Search: []Spec{Vector{Parameter: "PilotJobReference", Op: OpIn, Values: []any{"ref-1", "ref-2"}}},
	}, Page{Page: 1, PerPage: 100})
	require.NoError(t, err)

	assert.EqualValues(t, 2, result.Total)
}
