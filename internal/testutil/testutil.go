// Package testutil provides the shared test fixtures every package's _test.go
// files reach for, the way the teacher's internal/testutil/dockertest.go did
// for its Postgres/memcached/Redis-backed services. The teacher's fixtures
// spin up real docker containers because its repository layer is a SQL
// store; this module's durable store is a single embedded bbolt file, so the
// equivalent fixture is a temp-directory-backed *bolt.DB rather than a
// container pool.
package testutil

import (
	"testing"

	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// OpenTempBoltDB opens a fresh bbolt file under t.TempDir(), closing it
// automatically on test cleanup. The delegation, actions and client tests
// open their delegation store's *bolt.DB here (the replica tests open a
// BoltStore file directly instead), mirroring how the teacher's CreateDB/CreateRDB/CreateMC each hand
// back a ready client plus a cleanup func.
func OpenTempBoltDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(t.TempDir()+"/opchan-test.db", 0600, nil)
	if err != nil {
		t.Fatalf("failed to open temp bolt db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SetupMockTraceProvider installs an in-memory span exporter as the global
// tracer provider and returns it so a test can assert on what was recorded.
// Identical in shape to the teacher's own SetupMockTraceProvider.
func SetupMockTraceProvider() *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(provider)
	return exporter
}
