package models

import "fmt"

// ColumnType is the storage type of a record column
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnInteger ColumnType = "integer"
	ColumnDecimal ColumnType = "decimal"
	ColumnBool    ColumnType = "bool"
	ColumnList    ColumnType = "list"
)

// Column describes one output column
type Column struct {
	Name string
	Type ColumnType
}

// Record is a typed row handed to a sink. Values lines up with Columns.
type Record interface {
	Kind() string
	Columns() []Column
	Values() []any
}

const (
	KindListing = "listing"
	KindDetail  = "detail"
)

var listingColumns = []Column{
	{Name: "page_url", Type: ColumnText},
	{Name: "entity_urls", Type: ColumnList},
	{Name: "next_page_url", Type: ColumnText},
}

// ListingRecord is emitted once per listing page that yielded entity links
type ListingRecord struct {
	PageURL     string   `json:"page_url"`
	EntityURLs  []string `json:"entity_urls"`
	NextPageURL *string  `json:"next_page_url"`
}

func (r ListingRecord) Kind() string      { return KindListing }
func (r ListingRecord) Columns() []Column { return append([]Column(nil), listingColumns...) }

func (r ListingRecord) Values() []any {
	var next any
	if r.NextPageURL != nil {
		next = *r.NextPageURL
	}
	return []any{r.PageURL, append([]string(nil), r.EntityURLs...), next}
}

// Variant selects the detail record shape
type Variant string

const (
	VariantBasic Variant = "basic"
	VariantRich  Variant = "rich"
)

var basicColumns = []Column{
	{Name: "url", Type: ColumnText},
	{Name: "brand", Type: ColumnText},
	{Name: "model", Type: ColumnText},
	{Name: "year", Type: ColumnInteger},
	{Name: "price", Type: ColumnDecimal},
}

var richColumns = append(append([]Column(nil), basicColumns...),
	Column{Name: "description", Type: ColumnText},
	Column{Name: "color", Type: ColumnText},
	Column{Name: "engine", Type: ColumnText},
	Column{Name: "mileage", Type: ColumnInteger},
	Column{Name: "multimedia", Type: ColumnText},
	Column{Name: "comfort", Type: ColumnText},
	Column{Name: "safety", Type: ColumnText},
	Column{Name: "drive", Type: ColumnText},
	Column{Name: "condition", Type: ColumnText},
	Column{Name: "gearbox", Type: ColumnText},
	Column{Name: "technical_state", Type: ColumnText},
	Column{Name: "owners", Type: ColumnInteger},
	Column{Name: "last_operation", Type: ColumnText},
	Column{Name: "accident", Type: ColumnBool},
	Column{Name: "wanted", Type: ColumnBool},
	Column{Name: "state_number", Type: ColumnText},
	Column{Name: "vin", Type: ColumnText},
	Column{Name: "vin_confirmed", Type: ColumnBool},
	Column{Name: "seller_name", Type: ColumnText},
	Column{Name: "seller_last_visit", Type: ColumnText},
	Column{Name: "seller_location", Type: ColumnText},
	Column{Name: "seller_signed_in", Type: ColumnText},
	Column{Name: "seller_reputation", Type: ColumnText},
	Column{Name: "company_location", Type: ColumnText},
	Column{Name: "sold_cars", Type: ColumnInteger},
	Column{Name: "total_active_ads", Type: ColumnInteger},
	Column{Name: "total_verified_active_ads", Type: ColumnInteger},
	Column{Name: "company_website", Type: ColumnText},
	Column{Name: "verified_by_bank", Type: ColumnBool},
	Column{Name: "phone_verified", Type: ColumnBool},
	Column{Name: "is_company", Type: ColumnBool},
)

// DetailColumns returns the fixed column list of a variant
func DetailColumns(v Variant) ([]Column, error) {
	switch v {
	case VariantBasic:
		return append([]Column(nil), basicColumns...), nil
	case VariantRich:
		return append([]Column(nil), richColumns...), nil
	}
	return nil, fmt.Errorf("unknown detail variant %q", v)
}

// DetailRecord is one assembled item page
type DetailRecord struct {
	Variant Variant
	URL     string
	fields  Fields
	columns []Column
}

// NewDetailRecord builds a record from assembled fields. The url argument
// always wins over a "url" field. Fields outside the variant's columns are
// dropped.
func NewDetailRecord(variant Variant, url string, fields Fields) (DetailRecord, error) {
	columns, err := DetailColumns(variant)
	if err != nil {
		return DetailRecord{}, err
	}
	kept := NewFields()
	for _, c := range columns {
		if c.Name == "url" {
			kept.Set("url", url)
			continue
		}
		v, _ := fields.Get(c.Name)
		kept.Set(c.Name, cloneValue(v))
	}
	return DetailRecord{Variant: variant, URL: url, fields: kept, columns: columns}, nil
}

func (r DetailRecord) Kind() string      { return KindDetail }
func (r DetailRecord) Columns() []Column { return append([]Column(nil), r.columns...) }
func (r DetailRecord) Fields() Fields    { return r.fields.Clone() }

// Values returns the column values, coerced to the column types. Absent
// numbers are nil, absent text is "" and absent flags are false.
func (r DetailRecord) Values() []any {
	out := make([]any, len(r.columns))
	for i, c := range r.columns {
		switch c.Type {
		case ColumnInteger:
			if n, ok := r.fields.Int(c.Name); ok {
				out[i] = n
			}
		case ColumnDecimal:
			if n, ok := r.fields.Float(c.Name); ok {
				out[i] = n
			}
		case ColumnBool:
			out[i] = r.fields.Bool(c.Name)
		case ColumnList:
			out[i] = cloneValue(r.fields.Strings(c.Name))
		default:
			out[i] = r.fields.String(c.Name)
		}
	}
	return out
}
