package sqlstore

import (
	"strconv"
	"strings"

	"jobdeck/internal/store"
)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	kind store.Kind
	// name is the golang-migrate driver name and the migrations/ subdirectory.
	name string
	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
	// lock is appended to the claim SELECT.
	lock         string
	upsertWorker string
}

var (
	postgresDialect = dialect{
		kind:     store.KindPostgres,
		name:     "postgres",
		numbered: true,
		lock:     " FOR UPDATE SKIP LOCKED",
		upsertWorker: `INSERT INTO workers (id, worker_type, backend, last_seen) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
	}
	mysqlDialect = dialect{
		kind: store.KindMySQL,
		name: "mysql",
		lock: " FOR UPDATE SKIP LOCKED",
		upsertWorker: `INSERT INTO workers (id, worker_type, backend, last_seen) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE last_seen = VALUES(last_seen)`,
	}
	// SQLite runs on a single connection, so the claim transaction is already exclusive.
	sqliteDialect = dialect{
		kind: store.KindSQLite,
		name: "sqlite",
		upsertWorker: `INSERT INTO workers (id, worker_type, backend, last_seen) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET last_seen = excluded.last_seen`,
	}
)

// rebind rewrites ? placeholders for engines that use numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
