package zombiezen // Sub-package for the sqlite implementation

import (
	"context"
	"fmt"

	"github.com/nmiguel/octocert"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `CREATE TABLE IF NOT EXISTS certificates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier TEXT NOT NULL,
	domains TEXT NOT NULL,
	certificate_chain TEXT NOT NULL,
	issued_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);`

// Db implements the octocert.Writer interface using zombiezen/sqlite.
type Db struct {
	pool *sqlitex.Pool
}

// NewWriter creates a new Db instance satisfying the Writer interface.
// It expects the sqlitex.Pool to be created and managed externally.
func NewWriter(pool *sqlitex.Pool) *Db {
	if pool == nil {
		panic("zombiezen.NewWriter: received nil pool")
	}
	return &Db{pool: pool}
}

// EnsureSchema creates the history table when it does not exist yet.
func (d *Db) EnsureSchema(ctx context.Context) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("db: failed to get connection: %w", err)
	}
	defer d.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		return fmt.Errorf("db: failed to create certificates table: %w", err)
	}
	return nil
}

// AddCert adds a new certificate record to the 'certificates' table.
func (d *Db) AddCert(cert octocert.Cert) error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("db: failed to get connection: %w", err)
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO certificates (
			identifier, domains, certificate_chain, issued_at, expires_at
		) VALUES (?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				cert.Identifier,
				cert.Domains,
				cert.CertificateChain,
				octocert.TimeFormat(cert.IssuedAt),
				octocert.TimeFormat(cert.ExpiresAt),
			},
		})

	if err != nil {
		return fmt.Errorf("db: failed to insert certificate for identifier %q: %w", cert.Identifier, err)
	}
	return nil
}
