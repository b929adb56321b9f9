package cursor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
)

const defaultTable = "twikey_feed_cursor"

// Postgres stores positions in a single table keyed by feed name.
type Postgres struct {
	db    *sql.DB
	table string
}

// PostgresOption customizes the postgres store.
type PostgresOption func(*Postgres)

// WithTable overrides the table name.
func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		p.table = name
	}
}

// OpenPostgres connects with a lib/pq connection string and makes sure the table exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	store, err := NewPostgres(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(ctx context.Context, db *sql.DB, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(p)
	}
	if p.table == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty table name")
	}
	p.table = pq.QuoteIdentifier(p.table)

	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		feed TEXT PRIMARY KEY,
		position TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, p.table)
	if _, err := p.db.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "create table %s", p.table)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, feed string) (string, error) {
	q := fmt.Sprintf(`SELECT position FROM %s WHERE feed = $1`, p.table)

	var position string
	err := p.db.QueryRowContext(ctx, q, feed).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load cursor %s", feed)
	}
	return position, nil
}

func (p *Postgres) Save(ctx context.Context, feed, position string) error {
	q := fmt.Sprintf(`INSERT INTO %s (feed, position, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (feed) DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`, p.table)
	if _, err := p.db.ExecContext(ctx, q, feed, position); err != nil {
		return errors.Wrap(err, "save cursor %s", feed)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
