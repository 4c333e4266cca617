package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// Postgres writes each record kind into its own table with typed columns
type Postgres struct {
	mu      sync.Mutex
	pool    *pgxpool.Pool
	layouts layouts
	inserts map[string]string
}

// OpenPostgres connects to the database named by dsn
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres sink needs a dsn")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &Postgres{pool: pool, layouts: make(layouts), inserts: make(map[string]string)}, nil
}

func (p *Postgres) Emit(ctx context.Context, record models.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kind := record.Kind()
	l, created := p.layouts.lookup(record)
	if created {
		insert, err := p.createTable(ctx, kind, l)
		if err != nil {
			delete(p.layouts, kind)
			return err
		}
		p.inserts[kind] = insert
	}

	if _, err := p.pool.Exec(ctx, p.inserts[kind], l.row(record)...); err != nil {
		return fmt.Errorf("failed to insert %s row: %w", kind, err)
	}
	return nil
}

func (p *Postgres) createTable(ctx context.Context, kind string, l *layout) (string, error) {
	table := pgx.Identifier{kind}.Sanitize()
	defs := make([]string, len(l.columns))
	names := make([]string, len(l.columns))
	marks := make([]string, len(l.columns))
	for i, c := range l.columns {
		names[i] = pgx.Identifier{c.Name}.Sanitize()
		defs[i] = names[i] + " " + postgresType(c.Type)
		marks[i] = fmt.Sprintf("$%d", i+1)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return "", fmt.Errorf("failed to create table %s: %w", kind, err)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(marks, ", ")), nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func postgresType(t models.ColumnType) string {
	switch t {
	case models.ColumnInteger:
		return "BIGINT"
	case models.ColumnDecimal:
		return "DOUBLE PRECISION"
	case models.ColumnBool:
		return "BOOLEAN"
	case models.ColumnList:
		return "TEXT[]"
	default:
		return "TEXT"
	}
}
