package notify

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresBackend appends events as rows, with the routing fields in their
// own columns next to the full JSON document.
type PostgresBackend struct {
	dsn   string
	table string

	mu     sync.Mutex
	db     *sql.DB
	insert string
}

func NewPostgresBackend(dsn, table string) (*PostgresBackend, error) {
	if table == "" {
		table = "vaultuplink_events"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid postgres table name %q", table)
	}
	return &PostgresBackend{
		dsn:    dsn,
		table:  table,
		insert: fmt.Sprintf(`INSERT INTO %s (name, project, bucket, object_key, payload) VALUES ($1, $2, $3, $4, $5)`, table),
	}, nil
}

func (p *PostgresBackend) Name() string { return "postgres" }

// open connects lazily and creates the table on first use.
func (p *PostgresBackend) open(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}
	db, err := sql.Open("postgres", p.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		received TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		name TEXT NOT NULL,
		project TEXT NOT NULL,
		bucket TEXT NOT NULL,
		object_key TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL
	)`, p.table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres create %s: %w", p.table, err)
	}
	p.db = db
	return db, nil
}

func (p *PostgresBackend) Publish(ctx context.Context, payload []byte) error {
	ev, ok := peek(payload)
	if !ok {
		return fmt.Errorf("postgres: payload is not an event")
	}
	db, err := p.open(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, p.insert, ev.Name, ev.Project, ev.Bucket, ev.Key, string(payload))
	return err
}

func (p *PostgresBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
