package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawFieldSet(t *testing.T) {
	s := NewRawFieldSet()
	s.Add("heading", "Audi A6 2015")
	s.Add("price")
	s.Add("heading", "ignored")
	s.Add("blank", "  ")

	assert.Equal(t, []string{"heading", "price", "blank"}, s.Names())
	assert.Equal(t, "Audi A6 2015", s.First("heading"))
	assert.Equal(t, "", s.First("price"))
	assert.True(t, s.Has("heading"))
	assert.False(t, s.Has("price"))
	assert.False(t, s.Has("blank"))
	assert.False(t, s.Has("missing"))

	var zero RawFieldSet
	zero.Add("x", "y")
	assert.Equal(t, []string{"y"}, zero.Get("x"))
}

func TestFieldsMerge(t *testing.T) {
	a := NewFields()
	a.Set("brand", "Audi")
	a.Set("price", 100.0)
	b := NewFields()
	b.Set("price", 200.0)
	b.Set("seller_name", "Ivan")

	m := a.Merge(b)
	assert.Equal(t, []string{"brand", "price", "seller_name"}, m.Names())
	p, ok := m.Float("price")
	assert.True(t, ok)
	assert.Equal(t, 200.0, p)

	// inputs untouched
	p, _ = a.Float("price")
	assert.Equal(t, 100.0, p)
}

func TestFieldsAccessors(t *testing.T) {
	f := NewFields()
	f.Set("year", 2015)
	f.Set("owners", int64(2))
	f.Set("price", 1500.5)
	f.Set("flag", true)
	f.Set("urls", []string{"a"})
	f.Set("nothing", nil)

	n, ok := f.Int("year")
	assert.True(t, ok)
	assert.Equal(t, int64(2015), n)
	n, ok = f.Int("owners")
	assert.True(t, ok)
	assert.Equal(t, int64(2), n)
	_, ok = f.Int("price")
	assert.False(t, ok)
	_, ok = f.Int("nothing")
	assert.False(t, ok)
	assert.True(t, f.Bool("flag"))
	assert.Equal(t, []string{"a"}, f.Strings("urls"))
	assert.Equal(t, "", f.String("year"))
}

func TestListingRecordValues(t *testing.T) {
	next := "https://auto.ria.com/search/?page=2"
	r := ListingRecord{PageURL: "https://auto.ria.com/search/", EntityURLs: []string{"https://auto.ria.com/a.html"}, NextPageURL: &next}
	assert.Equal(t, KindListing, r.Kind())
	assert.Len(t, r.Values(), len(r.Columns()))
	assert.Equal(t, next, r.Values()[2])

	r.NextPageURL = nil
	assert.Nil(t, r.Values()[2])
}

func TestNewDetailRecord(t *testing.T) {
	f := NewFields()
	f.Set("brand", "Audi")
	f.Set("year", 2015)
	f.Set("url", "https://elsewhere")
	f.Set("unknown_column", "dropped")

	r, err := NewDetailRecord(VariantBasic, "https://auto.ria.com/auto_audi_a6_1.html", f)
	require.NoError(t, err)
	assert.Equal(t, KindDetail, r.Kind())
	assert.Equal(t, []string{"url", "brand", "model", "year", "price"}, r.Fields().Names())
	assert.Equal(t, []any{"https://auto.ria.com/auto_audi_a6_1.html", "Audi", "", int64(2015), nil}, r.Values())

	_, err = NewDetailRecord(Variant("fancy"), "u", f)
	assert.Error(t, err)
}

func TestRichColumnsExtendBasic(t *testing.T) {
	basic, err := DetailColumns(VariantBasic)
	require.NoError(t, err)
	rich, err := DetailColumns(VariantRich)
	require.NoError(t, err)
	assert.Equal(t, basic, rich[:len(basic)])

	seen := make(map[string]bool)
	for _, c := range rich {
		assert.False(t, seen[c.Name], "duplicate column %s", c.Name)
		seen[c.Name] = true
	}
}

func TestDetailRecordIsImmutable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(src *Fields, r DetailRecord)
	}{
		{
			name: "through Fields",
			mutate: func(_ *Fields, r DetailRecord) {
				f := r.Fields()
				f.Set("brand", "MUTATED")
				f.Set("extra", "x")
			},
		},
		{
			name: "through the source fields",
			mutate: func(src *Fields, _ DetailRecord) {
				src.Set("brand", "MUTATED")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewFields()
			src.Set("brand", "Audi")
			r, err := NewDetailRecord(VariantBasic, "https://auto.ria.com/uk/auto_1.html", src)
			require.NoError(t, err)

			tt.mutate(&src, r)

			assert.Equal(t, "Audi", r.Values()[1])
			assert.Equal(t, []string{"url", "brand", "model", "year", "price"}, r.Fields().Names())
		})
	}
}

func TestFieldsClone(t *testing.T) {
	f := NewFields()
	f.Set("options", []string{"ABS", "ESP"})
	f.Set("year", int64(2015))

	c := f.Clone()
	c.Strings("options")[0] = "changed"
	c.Set("year", int64(1999))

	assert.Equal(t, []string{"ABS", "ESP"}, f.Strings("options"))
	got, _ := f.Int("year")
	assert.Equal(t, int64(2015), got)
	assert.Equal(t, f.Names(), c.Names())
}
