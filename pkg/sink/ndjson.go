package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// NDJSON writes one JSON object per line. Each object starts with a "kind"
// key followed by the columns in layout order.
type NDJSON struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	layouts layouts
}

// NewNDJSON writes to w. Close closes w when it is an io.Closer.
func NewNDJSON(w io.Writer) *NDJSON {
	n := &NDJSON{w: bufio.NewWriter(w), layouts: make(layouts)}
	if c, ok := w.(io.Closer); ok {
		n.closer = c
	}
	return n
}

// CreateNDJSON creates or truncates the file at path
func CreateNDJSON(path string) (*NDJSON, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return NewNDJSON(f), nil
}

func (n *NDJSON) Emit(_ context.Context, record models.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, _ := n.layouts.lookup(record)
	line, err := encodeObject(record.Kind(), l, l.row(record))
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", record.Kind(), err)
	}
	if _, err := n.w.Write(line); err != nil {
		return err
	}
	return nil
}

func encodeObject(kind string, l *layout, row []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	k, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	buf.Write(k)
	for i, c := range l.columns {
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(row[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Close flushes buffered lines
func (n *NDJSON) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.w.Flush(); err != nil {
		return err
	}
	if n.closer != nil {
		return n.closer.Close()
	}
	return nil
}

// Row is one decoded NDJSON line
type Row struct {
	Kind   string
	Values map[string]any
}

// ReadNDJSON decodes every line of r and passes it to fn. Blank lines are
// skipped.
func ReadNDJSON(r io.Reader, fn func(Row) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		values := make(map[string]any)
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		kind, _ := values["kind"].(string)
		delete(values, "kind")
		if err := fn(Row{Kind: kind, Values: values}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
