package sink

import (
	"context"

	"go.uber.org/multierr"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// Multi fans records out to several sinks
type Multi struct {
	sinks []Sink
}

// NewMulti creates a sink that emits to every given sink
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Emit hands the record to every sink, even when one of them fails
func (m *Multi) Emit(ctx context.Context, record models.Record) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Emit(ctx, record))
	}
	return err
}

// Close closes every sink
func (m *Multi) Close() error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}
