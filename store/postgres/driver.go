package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"granary/internal/logging"
	"granary/store"
)

type driver struct {
	cfg Config
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("postgres-store: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Open(ctx context.Context) (store.Session, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.cfg.Host, d.cfg.Port, d.cfg.User, d.cfg.Password, d.cfg.Database, d.cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres-store: open: %w", err)
	}
	db.SetMaxOpenConns(d.cfg.Pool.MaxOpen)
	db.SetMaxIdleConns(d.cfg.Pool.MaxIdle)
	db.SetConnMaxLifetime(d.cfg.Pool.MaxLifetime)

	if err := pingWithRetry(ctx, db, d.cfg.Retry); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{db: db, cfg: d.cfg}, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, r RetryCfg) error {
	var err error
	for i := 0; i < r.Attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		logging.L().Warn("postgres-store: ping failed", "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Backoff):
		}
	}
	return fmt.Errorf("postgres-store: connect after %d attempts: %w", r.Attempts, err)
}

type session struct {
	db  *sql.DB
	cfg Config
}

func (s *session) Tables(ctx context.Context) ([]string, error) {
	const q = `SELECT table_name FROM information_schema.tables
	           WHERE table_schema = $1 AND table_type = 'BASE TABLE'`
	rows, err := s.db.QueryContext(ctx, q, s.cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("postgres-store: list tables in %q: %w", s.cfg.Schema, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres-store: scan table name: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres-store: iterate tables: %w", err)
	}
	return out, nil
}

func (s *session) Prepare(ctx context.Context, table string) (store.Plan, error) {
	q := fmt.Sprintf("INSERT INTO %s.%s (payload) VALUES ($1)",
		pq.QuoteIdentifier(s.cfg.Schema), pq.QuoteIdentifier(table))
	stmt, err := s.db.PrepareContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres-store: prepare %q: %w", table, err)
	}
	return &plan{table: table, stmt: stmt, timeout: s.cfg.WriteTimeout}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

type plan struct {
	table   string
	stmt    *sql.Stmt
	timeout time.Duration
}

func (p *plan) Table() string { return p.table }

// ExecAsync issues the bound insert on the pool's own connection goroutine and
// settles the future when it completes or the per-write timeout fires.
func (p *plan) ExecAsync(ctx context.Context, payload string) *store.Future {
	f := store.NewFuture()
	go func() {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		_, err := p.stmt.ExecContext(wctx, payload)
		f.Settle(store.Outcome{Err: err})
	}()
	return f
}

func (p *plan) Close() error { return p.stmt.Close() }

/*──────── auto-register ───────*/
func init() {
	store.Register("postgres", func() store.Driver { return &driver{} })
}
