package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category is one of the vehicle categories the search form offers
type Category string

const (
	CategoryAny        Category = "any"
	CategoryCars       Category = "cars"
	CategoryMoto       Category = "moto"
	CategoryTrucks     Category = "trucks"
	CategoryTrailers   Category = "trailers"
	CategorySpecial    Category = "special"
	CategoryAgro       Category = "agro"
	CategoryBuses      Category = "buses"
	CategoryWater      Category = "water"
	CategoryAir        Category = "air"
	CategoryMotorhomes Category = "motorhomes"
)

// categoryLabels maps categories to the labels rendered by the site's form
var categoryLabels = map[Category]string{
	CategoryAny:        "Будь-який",
	CategoryCars:       "Легкові",
	CategoryMoto:       "Мото",
	CategoryTrucks:     "Вантажівки",
	CategoryTrailers:   "Причепи",
	CategorySpecial:    "Спецтехніка",
	CategoryAgro:       "Сільгосптехніка",
	CategoryBuses:      "Автобуси",
	CategoryWater:      "Водний транспорт",
	CategoryAir:        "Повітряний транспорт",
	CategoryMotorhomes: "Автобудинки",
}

// Label returns the form label of the category
func (c Category) Label() string {
	return categoryLabels[c]
}

// Condition is the vehicle-condition switch of the search form
type Condition string

const (
	ConditionAny    Condition = "any"
	ConditionUsed   Condition = "used"
	ConditionNew    Condition = "new"
	ConditionImport Condition = "import"
)

var conditionLabels = map[Condition]string{
	ConditionAny:    "Всі",
	ConditionUsed:   "Вживані",
	ConditionNew:    "Нові",
	ConditionImport: "Під пригон",
}

// Label returns the form label of the condition
func (c Condition) Label() string {
	return conditionLabels[c]
}

// parseCategory accepts either the category code or its site label
func parseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryAny, true
	}
	for c, label := range categoryLabels {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, label) {
			return c, true
		}
	}
	return "", false
}

func parseCondition(s string) (Condition, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ConditionAny, true
	}
	for c, label := range conditionLabels {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, label) {
			return c, true
		}
	}
	return "", false
}

// YearBounds is the closed interval of model years accepted anywhere in a run
type YearBounds struct {
	Min int
	Max int
}

// DefaultYearBounds covers the fifty years up to the current one
func DefaultYearBounds(now time.Time) YearBounds {
	return YearBounds{Min: now.Year() - 50, Max: now.Year()}
}

// Contains reports whether year lies within the bounds
func (b YearBounds) Contains(year int) bool {
	return year >= b.Min && year <= b.Max
}

// FilterParams is the flat, unvalidated input for NewSearchFilter.
// Nil pointers and empty strings mean "not given".
type FilterParams struct {
	Category    string
	Brand       string
	Model       string
	Region      string
	MinYear     *int
	MaxYear     *int
	MinPrice    *int
	MaxPrice    *int
	Condition   string
	VerifiedVIN bool
}

// FilterError reports an invalid search filter value
type FilterError struct {
	Field  string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid search filter %s: %s", e.Field, e.Reason)
}

// SearchFilter is the validated search configuration of one crawl run.
// It cannot be modified after construction.
type SearchFilter struct {
	category    Category
	brand       string
	model       string
	region      string
	minYear     *int
	maxYear     *int
	minPrice    *int
	maxPrice    *int
	condition   Condition
	verifiedVIN bool
}

// NewSearchFilter validates params against bounds and builds a SearchFilter.
// The returned error is a *FilterError naming the first offending field.
func NewSearchFilter(params FilterParams, bounds YearBounds) (SearchFilter, error) {
	category, ok := parseCategory(params.Category)
	if !ok {
		return SearchFilter{}, &FilterError{Field: "category", Reason: fmt.Sprintf("unknown category %q", params.Category)}
	}
	condition, ok := parseCondition(params.Condition)
	if !ok {
		return SearchFilter{}, &FilterError{Field: "condition", Reason: fmt.Sprintf("unknown condition %q", params.Condition)}
	}

	if params.MinYear != nil && !bounds.Contains(*params.MinYear) {
		return SearchFilter{}, &FilterError{Field: "min_year", Reason: fmt.Sprintf("%d is outside [%d, %d]", *params.MinYear, bounds.Min, bounds.Max)}
	}
	if params.MaxYear != nil && !bounds.Contains(*params.MaxYear) {
		return SearchFilter{}, &FilterError{Field: "max_year", Reason: fmt.Sprintf("%d is outside [%d, %d]", *params.MaxYear, bounds.Min, bounds.Max)}
	}
	if params.MinYear != nil && params.MaxYear != nil && *params.MinYear > *params.MaxYear {
		return SearchFilter{}, &FilterError{Field: "max_year", Reason: "must not be less than min_year"}
	}

	if params.MinPrice != nil && *params.MinPrice < 0 {
		return SearchFilter{}, &FilterError{Field: "min_price", Reason: "must not be negative"}
	}
	if params.MaxPrice != nil && *params.MaxPrice < 0 {
		return SearchFilter{}, &FilterError{Field: "max_price", Reason: "must not be negative"}
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return SearchFilter{}, &FilterError{Field: "max_price", Reason: "must not be less than min_price"}
	}

	return SearchFilter{
		category:    category,
		brand:       strings.TrimSpace(params.Brand),
		model:       strings.TrimSpace(params.Model),
		region:      strings.TrimSpace(params.Region),
		minYear:     copyInt(params.MinYear),
		maxYear:     copyInt(params.MaxYear),
		minPrice:    copyInt(params.MinPrice),
		maxPrice:    copyInt(params.MaxPrice),
		condition:   condition,
		verifiedVIN: params.VerifiedVIN,
	}, nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (f SearchFilter) Category() Category   { return f.category }
func (f SearchFilter) Brand() string        { return f.brand }
func (f SearchFilter) Model() string        { return f.model }
func (f SearchFilter) Region() string       { return f.region }
func (f SearchFilter) Condition() Condition { return f.condition }
func (f SearchFilter) VerifiedVIN() bool    { return f.verifiedVIN }

// MinYear returns the lower year limit, if any
func (f SearchFilter) MinYear() (int, bool) { return deref(f.minYear) }

// MaxYear returns the upper year limit, if any
func (f SearchFilter) MaxYear() (int, bool) { return deref(f.maxYear) }

// MinPrice returns the lower price limit, if any
func (f SearchFilter) MinPrice() (int, bool) { return deref(f.minPrice) }

// MaxPrice returns the upper price limit, if any
func (f SearchFilter) MaxPrice() (int, bool) { return deref(f.maxPrice) }

func deref(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// FormParams returns the parameters handed to the filter-submission script.
// Absent and default values are left out so the form keeps its own defaults.
func (f SearchFilter) FormParams() map[string]string {
	params := make(map[string]string)
	if f.category != CategoryAny && f.category != "" {
		params["category"] = f.category.Label()
	}
	if f.brand != "" {
		params["brand"] = f.brand
	}
	if f.model != "" {
		params["model"] = f.model
	}
	if f.region != "" {
		params["region"] = f.region
	}
	if v, ok := f.MinYear(); ok {
		params["min_year"] = strconv.Itoa(v)
	}
	if v, ok := f.MaxYear(); ok {
		params["max_year"] = strconv.Itoa(v)
	}
	if v, ok := f.MinPrice(); ok {
		params["min_price"] = strconv.Itoa(v)
	}
	if v, ok := f.MaxPrice(); ok {
		params["max_price"] = strconv.Itoa(v)
	}
	if f.condition != ConditionAny && f.condition != "" {
		params["condition"] = f.condition.Label()
	}
	if f.verifiedVIN {
		params["verified_vin"] = "true"
	}
	return params
}
