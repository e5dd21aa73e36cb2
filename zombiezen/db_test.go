package zombiezen

import (
	"context"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nmiguel/octocert"
)

func newTestWriter(t *testing.T) *Db {
	t.Helper()
	pool, err := sqlitex.NewPool("history", sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory,
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("opening in-memory pool: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("closing pool: %v", err)
		}
	})

	w := NewWriter(pool)
	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return w
}

func TestAddCert(t *testing.T) {
	w := newTestWriter(t)

	cert := octocert.Cert{
		Identifier:       "example.com",
		Domains:          `["example.com"]`,
		CertificateChain: "-----BEGIN CERTIFICATE-----\n...\n-----END CERTIFICATE-----\n",
		IssuedAt:         time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		ExpiresAt:        time.Date(2026, 11, 21, 12, 0, 0, 0, time.UTC),
	}
	if err := w.AddCert(cert); err != nil {
		t.Fatalf("AddCert() error = %v", err)
	}
	if err := w.AddCert(cert); err != nil {
		t.Fatalf("AddCert() second insert error = %v", err)
	}

	conn, err := w.pool.Take(context.Background())
	if err != nil {
		t.Fatalf("taking connection: %v", err)
	}
	defer w.pool.Put(conn)

	var count int
	var expiresAt string
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*), MAX(expires_at) FROM certificates WHERE identifier = ?;`,
		&sqlitex.ExecOptions{
			Args: []interface{}{"example.com"},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				expiresAt = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		t.Fatalf("querying history: %v", err)
	}

	if count != 2 {
		t.Errorf("history rows = %d, want 2", count)
	}
	if expiresAt != "2026-11-21T12:00:00Z" {
		t.Errorf("expires_at = %q, want RFC3339 UTC", expiresAt)
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	w := newTestWriter(t)
	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema() error = %v", err)
	}
}
