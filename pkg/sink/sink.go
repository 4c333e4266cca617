// Package sink persists crawl records. Every sink fixes the column order of
// a record kind on the first record of that kind it receives, and writes all
// later rows of the kind in that order.
package sink

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// Sink receives records. Emit is safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, record models.Record) error
	Close() error
}

const (
	TypeXLSX     = "xlsx"
	TypeNDJSON   = "ndjson"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Config selects and configures the output sinks
type Config struct {
	// Type is one sink type or a comma separated list of them
	Type string `mapstructure:"type"`
	// Path is the output file. With several file sinks it is a base name and
	// each sink adds its own extension.
	Path            string `mapstructure:"path"`
	DSN             string `mapstructure:"dsn"`
	IncludeListings bool   `mapstructure:"include_listings"`
}

// Types returns the configured sink types
func (c Config) Types() []string {
	var types []string
	for _, t := range strings.Split(c.Type, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// PathFor returns the output path a file sink of the given type writes to
func (c Config) PathFor(sinkType string) string {
	files := 0
	for _, t := range c.Types() {
		if t != TypePostgres {
			files++
		}
	}
	if files <= 1 && c.Path != "" {
		return c.Path
	}
	base := c.Path
	if base == "" {
		base = "output"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + extension(sinkType)
}

func extension(sinkType string) string {
	if sinkType == TypeSQLite {
		return "db"
	}
	return sinkType
}

// Open creates the sinks named in cfg. Several sinks are combined with
// NewMulti. Listing records are dropped unless cfg.IncludeListings is set.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	types := cfg.Types()
	if len(types) == 0 {
		return nil, fmt.Errorf("no sink type configured")
	}

	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	for _, t := range types {
		var (
			s   Sink
			err error
		)
		switch t {
		case TypeXLSX:
			s = NewXLSX(cfg.PathFor(t))
		case TypeNDJSON:
			s, err = CreateNDJSON(cfg.PathFor(t))
		case TypeSQLite:
			s, err = OpenSQLite(cfg.PathFor(t))
		case TypePostgres:
			s, err = OpenPostgres(ctx, cfg.DSN)
		default:
			err = fmt.Errorf("unknown sink type %q", t)
		}
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}

	var out Sink = sinks[0]
	if len(sinks) > 1 {
		out = NewMulti(sinks...)
	}
	if !cfg.IncludeListings {
		out = DropKinds(out, models.KindListing)
	}
	return out, nil
}

type dropKinds struct {
	Sink
	kinds map[string]bool
}

// DropKinds wraps s so records of the given kinds are discarded
func DropKinds(s Sink, kinds ...string) Sink {
	d := dropKinds{Sink: s, kinds: make(map[string]bool, len(kinds))}
	for _, k := range kinds {
		d.kinds[k] = true
	}
	return d
}

func (d dropKinds) Emit(ctx context.Context, record models.Record) error {
	if d.kinds[record.Kind()] {
		return nil
	}
	return d.Sink.Emit(ctx, record)
}

// layout is the column order fixed by the first record of a kind
type layout struct {
	columns []models.Column
	index   map[string]int
}

func newLayout(columns []models.Column) *layout {
	l := &layout{columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		l.index[c.Name] = i
	}
	return l
}

// row returns the record's values in layout order. Columns the record
// lacks are nil, columns the layout lacks are dropped.
func (l *layout) row(record models.Record) []any {
	out := make([]any, len(l.columns))
	values := record.Values()
	for i, c := range record.Columns() {
		if j, ok := l.index[c.Name]; ok && i < len(values) {
			out[j] = values[i]
		}
	}
	return out
}

func (l *layout) names() []string {
	names := make([]string, len(l.columns))
	for i, c := range l.columns {
		names[i] = c.Name
	}
	return names
}

type layouts map[string]*layout

// lookup returns the layout of the record's kind, creating it from the
// record when the kind is new.
func (ls layouts) lookup(record models.Record) (*layout, bool) {
	if l, ok := ls[record.Kind()]; ok {
		return l, false
	}
	l := newLayout(record.Columns())
	ls[record.Kind()] = l
	return l, true
}
