// Package assembler turns raw selector output into typed record fields.
package assembler

import (
	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/utils"
)

// Multi decides how a field with several raw fragments is reduced
type Multi int

const (
	// TakeFirst normalizes each fragment and keeps the first usable value
	TakeFirst Multi = iota
	// JoinSpace joins all fragments with one space before normalizing
	JoinSpace
	// Collect keeps every usable fragment as a []string
	Collect
)

// Field is one schema entry
type Field struct {
	Name string
	// Source is the raw field to read; empty means Name
	Source    string
	Normalize Normalizer
	Default   any
	Multi     Multi
}

func (f Field) source() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// Schema is an ordered field list evaluated against one selector set
type Schema struct {
	Name      string
	Selectors string
	Fields    []Field
}

// FieldNames returns the output names in schema order
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Assemble evaluates every schema field against raw. The result holds
// exactly the schema's fields in schema order; a field whose normalizer
// finds nothing, or panics, gets its default.
func Assemble(raw models.RawFieldSet, schema Schema) models.Fields {
	out := models.NewFields()
	for _, f := range schema.Fields {
		v, ok := assembleField(raw.Get(f.source()), f)
		if !ok {
			v = f.Default
		}
		out.Set(f.Name, v)
	}
	return out
}

func assembleField(fragments []string, f Field) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()

	if f.Normalize == nil {
		return nil, false
	}

	switch f.Multi {
	case JoinSpace:
		return f.Normalize(utils.JoinFragments(fragments))
	case Collect:
		var values []string
		for _, frag := range fragments {
			if v, ok := f.Normalize(frag); ok {
				if s, isString := v.(string); isString {
					values = append(values, s)
				}
			}
		}
		return values, len(values) > 0
	default:
		if len(fragments) == 0 {
			return f.Normalize("")
		}
		for _, frag := range fragments {
			if v, ok := f.Normalize(frag); ok {
				return v, true
			}
		}
		return nil, false
	}
}
