package assembler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

var testBounds = models.YearBounds{Min: 1976, Max: 2026}

func raw(pairs ...string) models.RawFieldSet {
	s := models.NewRawFieldSet()
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Add(pairs[i], pairs[i+1])
	}
	return s
}

func fieldMap(f models.Fields) map[string]any {
	out := make(map[string]any, f.Len())
	for _, n := range f.Names() {
		v, _ := f.Get(n)
		out[n] = v
	}
	return out
}

func TestAssembleMatchesSchemaExactly(t *testing.T) {
	schema := Schema{Fields: []Field{
		{Name: "brand", Normalize: Text(), Default: ""},
		{Name: "year", Normalize: Year(testBounds)},
		{Name: "price", Normalize: Price(), Default: 0.0},
	}}

	tests := []struct {
		name string
		raw  models.RawFieldSet
		want map[string]any
	}{
		{
			name: "all present",
			raw:  raw("brand", " Audi ", "year", "2015 рік", "price", "12 000 $"),
			want: map[string]any{"brand": "Audi", "year": 2015, "price": 12000.0},
		},
		{
			name: "missing and unparsable degrade to defaults",
			raw:  raw("year", "9999", "extra", "ignored"),
			want: map[string]any{"brand": "", "year": nil, "price": 0.0},
		},
		{
			name: "empty set",
			raw:  models.NewRawFieldSet(),
			want: map[string]any{"brand": "", "year": nil, "price": 0.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assemble(tt.raw, schema)
			assert.Equal(t, schema.FieldNames(), got.Names())
			if diff := cmp.Diff(tt.want, fieldMap(got)); diff != "" {
				t.Errorf("Assemble() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssembleRecoversFromPanics(t *testing.T) {
	boom := func(string) (any, bool) { panic("bad selector output") }
	schema := Schema{Fields: []Field{
		{Name: "a", Normalize: boom, Default: "fallback"},
		{Name: "b", Normalize: Text(), Default: ""},
	}}

	var got models.Fields
	require.NotPanics(t, func() {
		got = Assemble(raw("a", "x", "b", "y"), schema)
	})
	assert.Equal(t, "fallback", got.String("a"))
	assert.Equal(t, "y", got.String("b"))
}

func TestAssembleMulti(t *testing.T) {
	s := models.NewRawFieldSet()
	s.Add("description", "First line.", "  ", "Second\nline.")
	s.Add("urls", "https://a", "", "https://b")
	s.Add("price", "Договірна", "5 000 грн")

	got := Assemble(s, Schema{Fields: []Field{
		{Name: "description", Normalize: Text(), Default: "", Multi: JoinSpace},
		{Name: "urls", Normalize: Text(), Multi: Collect},
		{Name: "price", Normalize: Price()},
	}})

	assert.Equal(t, "First line. Second line.", got.String("description"))
	assert.Equal(t, []string{"https://a", "https://b"}, got.Strings("urls"))
	p, ok := got.Float("price")
	assert.True(t, ok)
	assert.Equal(t, 5000.0, p)
}

func TestFlagNormalizers(t *testing.T) {
	tests := []struct {
		name string
		n    Normalizer
		raw  string
		want bool
	}{
		{name: "presence set", n: Presence(), raw: "✓", want: true},
		{name: "presence unset", n: Presence(), raw: "", want: false},
		{name: "equals", n: Equals("був в ДТП"), raw: " Був в ДТП", want: true},
		{name: "equals other text", n: Equals("був в ДТП"), raw: "не був в ДТП", want: false},
		{name: "contains", n: Contains("Перевірений VIN-код"), raw: "✓ Перевірений VIN-код", want: true},
		{name: "not equals missing", n: NotEquals("ні"), raw: "", want: true},
		{name: "not equals match", n: NotEquals("ні"), raw: "Ні", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := tt.n(tt.raw)
			assert.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestWords(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		raw      string
		want     any
		wantOK   bool
	}{
		{name: "first", from: 0, to: 1, raw: "Audi A6 2015", want: "Audi", wantOK: true},
		{name: "middle", from: 1, to: -1, raw: "Land Rover Range Rover 2015", want: "Rover Range Rover", wantOK: true},
		{name: "last", from: -1, to: 0, raw: "Audi A6 2015", want: "2015", wantOK: true},
		{name: "empty middle", from: 1, to: -1, raw: "Audi 2015", wantOK: false},
		{name: "blank", from: 0, to: 1, raw: "  ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Words(tt.from, tt.to, Text())(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}
