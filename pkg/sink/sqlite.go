package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// SQLite writes each record kind into its own table
type SQLite struct {
	mu      sync.Mutex
	db      *sql.DB
	layouts layouts
	inserts map[string]*sql.Stmt
}

// OpenSQLite opens or creates the database file at path
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	return NewSQLite(db), nil
}

// NewSQLite writes into an open database
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, layouts: make(layouts), inserts: make(map[string]*sql.Stmt)}
}

func (s *SQLite) Emit(ctx context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := record.Kind()
	l, created := s.layouts.lookup(record)
	if created {
		stmt, err := s.createTable(ctx, kind, l)
		if err != nil {
			delete(s.layouts, kind)
			return err
		}
		s.inserts[kind] = stmt
	}

	row := l.row(record)
	args := make([]any, len(row))
	for i, v := range row {
		arg, err := sqliteValue(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", l.columns[i].Name, err)
		}
		args[i] = arg
	}
	if _, err := s.inserts[kind].ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("failed to insert %s row: %w", kind, err)
	}
	return nil
}

func (s *SQLite) createTable(ctx context.Context, kind string, l *layout) (*sql.Stmt, error) {
	defs := make([]string, len(l.columns))
	names := make([]string, len(l.columns))
	marks := make([]string, len(l.columns))
	for i, c := range l.columns {
		names[i] = quoteIdent(c.Name)
		defs[i] = names[i] + " " + sqliteType(c.Type)
		marks[i] = "?"
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(kind), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", kind, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(kind), strings.Join(names, ", "), strings.Join(marks, ", "))
	stmt, err := s.db.PrepareContext(ctx, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert into %s: %w", kind, err)
	}
	return stmt, nil
}

// Close releases the statements and the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, stmt := range s.inserts {
		err = multierr.Append(err, stmt.Close())
	}
	return multierr.Append(err, s.db.Close())
}

func sqliteType(t models.ColumnType) string {
	switch t {
	case models.ColumnInteger, models.ColumnBool:
		return "INTEGER"
	case models.ColumnDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// lists are stored as JSON arrays
func sqliteValue(v any) (any, error) {
	if list, ok := v.([]string); ok {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
