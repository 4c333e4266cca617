package assembler

import (
	"fmt"
	"strings"
	"time"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

// FlagPolicy selects how a boolean attribute is read from the page
type FlagPolicy string

const (
	// FlagByPresence sets the flag when its element exists at all
	FlagByPresence FlagPolicy = "presence"
	// FlagByText sets the flag from the element's text content
	FlagByText FlagPolicy = "text"
)

// ParseFlagPolicy accepts "presence" or "text"
func ParseFlagPolicy(s string) (FlagPolicy, error) {
	switch p := FlagPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FlagByPresence, FlagByText:
		return p, nil
	}
	return "", fmt.Errorf("unknown flag policy %q (want presence or text)", s)
}

const (
	vinConfirmedText = "Перевірений VIN-код"
	accidentText     = "був в дтп"
	notWantedText    = "ні"
)

// DetailOptions parameterizes the detail schemas
type DetailOptions struct {
	YearBounds     models.YearBounds
	VINConfirmed   FlagPolicy
	RemainsAtLarge FlagPolicy
	DateSource     string
	DateOutput     string
}

// DefaultDetailOptions uses text flag policies and the site's DD.MM.YYYY dates
func DefaultDetailOptions(now time.Time) DetailOptions {
	return DetailOptions{
		YearBounds:     models.DefaultYearBounds(now),
		VINConfirmed:   FlagByText,
		RemainsAtLarge: FlagByText,
		DateSource:     "DD.MM.YYYY",
		DateOutput:     "YYYY-MM-DD",
	}
}

// Profile is one version of the crawl configuration: which selector sets
// feed which schemas, and which raw field anchors a detail page.
type Profile struct {
	Version int
	Variant models.Variant
	Listing Schema
	// Detail schemas are assembled in order and merged, later ones winning
	Detail []Schema
	Anchor string
}

func listingSchema() Schema {
	return Schema{
		Name:      "listing",
		Selectors: "listing",
		Fields: []Field{
			{Name: "page_url", Normalize: Text(), Default: ""},
			{Name: "entity_urls", Normalize: Text(), Multi: Collect},
		},
	}
}

// ProfileV1 reads brand, model and year from one "brand model year" anchor
func ProfileV1(opts DetailOptions) Profile {
	const anchor = "brand_model_year"
	return Profile{
		Version: 1,
		Variant: models.VariantBasic,
		Listing: listingSchema(),
		Anchor:  anchor,
		Detail: []Schema{{
			Name:      "detail",
			Selectors: "detail.basic",
			Fields: []Field{
				{Name: "brand", Source: anchor, Normalize: Words(0, 1, Text()), Default: ""},
				{Name: "model", Source: anchor, Normalize: Words(1, -1, Text()), Default: ""},
				{Name: "year", Source: anchor, Normalize: Words(-1, 0, Year(opts.YearBounds))},
				{Name: "price", Normalize: Price()},
			},
		}},
	}
}

// ProfileV2 reads the full ad: heading, technical attributes, VIN check
// block and the seller block.
func ProfileV2(opts DetailOptions) Profile {
	return Profile{
		Version: 2,
		Variant: models.VariantRich,
		Listing: listingSchema(),
		Anchor:  "heading",
		Detail: []Schema{
			{
				Name:      "detail",
				Selectors: "detail.rich",
				Fields: []Field{
					{Name: "brand", Source: "heading_brand", Normalize: Text(), Default: ""},
					{Name: "model", Source: "heading_model", Normalize: Text(), Default: ""},
					{Name: "year", Source: "heading", Normalize: Year(opts.YearBounds)},
					{Name: "price", Normalize: Price()},
					{Name: "description", Normalize: Text(), Default: "", Multi: JoinSpace},
					{Name: "color", Normalize: Text(), Default: ""},
					{Name: "engine", Normalize: Text(), Default: ""},
					{Name: "mileage", Normalize: Integer()},
					{Name: "multimedia", Normalize: Text(), Default: "", Multi: JoinSpace},
					{Name: "comfort", Normalize: Text(), Default: "", Multi: JoinSpace},
					{Name: "safety", Normalize: Text(), Default: "", Multi: JoinSpace},
					{Name: "drive", Normalize: Text(), Default: ""},
					{Name: "condition", Normalize: Text(), Default: ""},
					{Name: "gearbox", Normalize: Text(), Default: ""},
					{Name: "technical_state", Normalize: Text(), Default: ""},
					{Name: "owners", Normalize: Integer()},
					{Name: "last_operation", Normalize: Text(), Default: ""},
					{Name: "accident", Normalize: Equals(accidentText), Default: false},
					flagField("wanted", "wanted", opts.RemainsAtLarge, NotEquals(notWantedText)),
					{Name: "state_number", Normalize: Text(), Default: ""},
					{Name: "vin", Normalize: Text(), Default: ""},
					flagField("vin_confirmed", "vin_check", opts.VINConfirmed, Contains(vinConfirmedText)),
				},
			},
			{
				Name:      "seller",
				Selectors: "seller",
				Fields: []Field{
					{Name: "seller_name", Source: "name", Normalize: Text(), Default: "", Multi: JoinSpace},
					{Name: "seller_last_visit", Source: "last_visit", Normalize: Text(), Default: ""},
					{Name: "seller_location", Source: "location", Normalize: Text(), Default: ""},
					{Name: "seller_signed_in", Source: "signed_in", Normalize: Date(opts.DateSource, opts.DateOutput), Default: "", Multi: JoinSpace},
					{Name: "seller_reputation", Source: "reputation", Normalize: Text(), Default: ""},
					{Name: "company_location", Normalize: Text(), Default: ""},
					{Name: "sold_cars", Normalize: Integer()},
					{Name: "total_active_ads", Normalize: Integer()},
					{Name: "total_verified_active_ads", Normalize: Integer()},
					{Name: "company_website", Normalize: Text(), Default: ""},
					{Name: "verified_by_bank", Normalize: Presence(), Default: false, Multi: JoinSpace},
					{Name: "phone_verified", Normalize: Presence(), Default: false, Multi: JoinSpace},
					{Name: "is_company", Normalize: Presence(), Default: false, Multi: JoinSpace},
				},
			},
		},
	}
}

func flagField(name, source string, policy FlagPolicy, byText Normalizer) Field {
	if policy == FlagByPresence {
		return Field{Name: name, Source: source, Normalize: Presence(), Default: false, Multi: JoinSpace}
	}
	return Field{Name: name, Source: source, Normalize: byText, Default: false}
}

// ProfileFor returns the profile of the given version
func ProfileFor(version int, opts DetailOptions) (Profile, error) {
	var p Profile
	switch version {
	case 1:
		p = ProfileV1(opts)
	case 2:
		p = ProfileV2(opts)
	default:
		return Profile{}, fmt.Errorf("unknown profile version %d", version)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks that the schemas line up with the record columns, so a
// renamed field fails at startup instead of producing empty columns.
func (p Profile) Validate() error {
	columns, err := models.DetailColumns(p.Variant)
	if err != nil {
		return fmt.Errorf("profile v%d: %w", p.Version, err)
	}
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c.Name] = true
	}

	listing := make(map[string]bool)
	for _, f := range p.Listing.Fields {
		listing[f.Name] = true
	}
	for _, name := range []string{"page_url", "entity_urls"} {
		if !listing[name] {
			return fmt.Errorf("profile v%d: listing schema lacks %q", p.Version, name)
		}
	}

	if len(p.Detail) == 0 {
		return fmt.Errorf("profile v%d: no detail schemas", p.Version)
	}
	for _, s := range p.Detail {
		if s.Selectors == "" {
			return fmt.Errorf("profile v%d: schema %q has no selector set", p.Version, s.Name)
		}
		seen := make(map[string]bool)
		for _, f := range s.Fields {
			if !known[f.Name] || f.Name == "url" {
				return fmt.Errorf("profile v%d: schema %q field %q is not a %s record column", p.Version, s.Name, f.Name, p.Variant)
			}
			if seen[f.Name] {
				return fmt.Errorf("profile v%d: schema %q repeats field %q", p.Version, s.Name, f.Name)
			}
			if f.Normalize == nil {
				return fmt.Errorf("profile v%d: schema %q field %q has no normalizer", p.Version, s.Name, f.Name)
			}
			seen[f.Name] = true
		}
	}

	anchored := false
	for _, f := range p.Detail[0].Fields {
		if f.source() == p.Anchor {
			anchored = true
			break
		}
	}
	if !anchored {
		return fmt.Errorf("profile v%d: anchor %q is not read by schema %q", p.Version, p.Anchor, p.Detail[0].Name)
	}
	return nil
}
