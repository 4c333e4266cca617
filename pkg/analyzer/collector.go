package analyzer

import (
	"context"
	"sync"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/sink"
)

// Collector is a sink that keeps every record in memory for Analyze
type Collector struct {
	mu   sync.Mutex
	rows []sink.Row
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Emit(_ context.Context, record models.Record) error {
	columns := record.Columns()
	values := record.Values()
	row := sink.Row{Kind: record.Kind(), Values: make(map[string]any, len(columns))}
	for i, col := range columns {
		if i < len(values) {
			row.Values[col.Name] = values[i]
		}
	}

	c.mu.Lock()
	c.rows = append(c.rows, row)
	c.mu.Unlock()
	return nil
}

func (c *Collector) Close() error { return nil }

// Rows returns a copy of the collected rows
func (c *Collector) Rows() []sink.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sink.Row(nil), c.rows...)
}
