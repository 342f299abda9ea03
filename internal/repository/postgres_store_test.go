package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresURLEnv points the store tests at an existing server instead of a
// throwaway CockroachDB node.
const postgresURLEnv = "MEDIAGRABBA_TEST_POSTGRES_URL"

var (
	pgOnce   sync.Once
	pgPool   *pgxpool.Pool
	pgServer testserver.TestServer
	pgErr    error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if pgPool != nil {
		pgPool.Close()
	}
	if pgServer != nil {
		pgServer.Stop()
	}
	os.Exit(code)
}

func startPostgres() {
	url := os.Getenv(postgresURLEnv)
	if url == "" {
		server, err := testserver.NewTestServer()
		if err != nil {
			pgErr = err
			return
		}
		pgServer = server
		url = server.PGURL().String()
	}
	pgPool, pgErr = ConnectPostgres(context.Background(), url)
}

// newPostgresTestStore returns a store on an empty database. The server is
// started once per test binary.
func newPostgresTestStore(t *testing.T) testStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres store tests need a database server")
	}
	pgOnce.Do(startPostgres)
	if pgErr != nil {
		if os.Getenv(postgresURLEnv) != "" {
			t.Fatalf("connect postgres: %v", pgErr)
		}
		t.Skipf("start test server: %v", pgErr)
	}

	if _, err := pgPool.Exec(context.Background(), `TRUNCATE TABLE media, posts CASCADE`); err != nil {
		t.Fatalf("reset database: %v", err)
	}
	return &PostgresStore{pool: pgPool}
}

func TestPostgresStore_Ping(t *testing.T) {
	s := newPostgresTestStore(t).(*PostgresStore)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConnectPostgres_SchemaIsIdempotent(t *testing.T) {
	newPostgresTestStore(t)
	if _, err := pgPool.Exec(context.Background(), postgresSchema); err != nil {
		t.Fatalf("reapply schema: %v", err)
	}
}
