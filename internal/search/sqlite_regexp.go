package search

import (
	"database/sql"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"
)

var registerSQLiteRegexpOnce sync.Once

// RegisterSQLiteRegexp registers the "sqlite3_with_regexp" database/sql
// driver: go-sqlite3 has no REGEXP function built in, so the regex
// scalar operator is unusable against sqlite3 unless one is registered
// on the connection, mirroring the common go-sqlite3 ConnectHook
// pattern. Open(driverName) with this driver name instead of "sqlite3"
// wherever regex search support against SQLite is needed (tests, the
// dev/embedded deployment).
func RegisterSQLiteRegexp() {
	registerSQLiteRegexpOnce.Do(func() {
		sql.Register("sqlite3_with_regexp", &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", func(pattern, value string) (bool, error) {
					return regexp.MatchString(pattern, value)
				}, true)
			},
		})
	})
}
