package extractor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/markusmobius/go-trafilatura"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/utils"
)

var tracer = otel.Tracer("github.com/amosWeiskopf/riacrawler/pkg/extractor")

// Mode decides what a matched element contributes
type Mode string

const (
	ModeText     Mode = "text"      // all descendant text
	ModeOwnText  Mode = "own-text"  // direct text children only
	ModeAttr     Mode = "attr"      // an attribute value
	ModePresence Mode = "presence"  // a marker when anything matched
	ModeLabelled Mode = "labelled"  // the value next to a matching label
	ModeMainText Mode = "main-text" // readable text of the element's HTML
)

const presenceMarker = "1"

// FieldSpec is one extraction rule
type FieldSpec struct {
	Selector string `mapstructure:"selector"`
	Mode     Mode   `mapstructure:"mode"`
	// Attr names the attribute read in attr mode
	Attr string `mapstructure:"attr"`
	// Contains keeps only elements whose text contains it, ignoring case
	Contains string `mapstructure:"contains"`
	// Inner is looked up inside each kept element; in labelled mode it
	// selects the value
	Inner string `mapstructure:"inner"`
	// Label and LabelSelector drive labelled mode
	Label         string `mapstructure:"label"`
	LabelSelector string `mapstructure:"label_selector"`
	// Pattern filters fragments; its first group, or the whole match, is kept
	Pattern string `mapstructure:"pattern"`
	First   bool   `mapstructure:"first"`
}

// Rule binds a FieldSpec to the raw field it fills
type Rule struct {
	Field string
	FieldSpec
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// Extractor evaluates named selector sets against rendered pages
type Extractor struct {
	sets map[string][]compiledRule
}

// New creates an Extractor from the default AutoRia selector sets with
// overrides applied. An override replaces every default rule of its field,
// or adds the field when the set does not have it.
func New(overrides map[string]map[string]FieldSpec) (*Extractor, error) {
	sets := DefaultSets()
	for setName, fields := range overrides {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sets[setName] = override(sets[setName], name, fields[name])
		}
	}

	e := &Extractor{sets: make(map[string][]compiledRule, len(sets))}
	for setName, rules := range sets {
		compiled := make([]compiledRule, 0, len(rules))
		for _, r := range rules {
			cr, err := compile(r)
			if err != nil {
				return nil, fmt.Errorf("selector set %s field %s: %w", setName, r.Field, err)
			}
			compiled = append(compiled, cr)
		}
		e.sets[setName] = compiled
	}
	return e, nil
}

func override(rules []Rule, field string, spec FieldSpec) []Rule {
	out := make([]Rule, 0, len(rules)+1)
	replaced := false
	for _, r := range rules {
		if r.Field != field {
			out = append(out, r)
			continue
		}
		if !replaced {
			out = append(out, Rule{Field: field, FieldSpec: spec})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, Rule{Field: field, FieldSpec: spec})
	}
	return out
}

func compile(r Rule) (compiledRule, error) {
	if r.Mode == "" {
		r.Mode = ModeText
	}
	switch r.Mode {
	case ModeText, ModeOwnText, ModePresence, ModeMainText:
	case ModeAttr:
		if r.Attr == "" {
			return compiledRule{}, fmt.Errorf("attr mode needs an attribute name")
		}
	case ModeLabelled:
		if r.Label == "" || r.LabelSelector == "" || r.Inner == "" {
			return compiledRule{}, fmt.Errorf("labelled mode needs label, label_selector and inner")
		}
	default:
		return compiledRule{}, fmt.Errorf("unknown mode %q", r.Mode)
	}

	for _, sel := range []string{r.Selector, r.Inner, r.LabelSelector} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return compiledRule{}, fmt.Errorf("invalid selector %q: %w", sel, err)
		}
	}
	if r.Selector == "" {
		return compiledRule{}, fmt.Errorf("empty selector")
	}

	cr := compiledRule{Rule: r}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		cr.pattern = re
	}
	return cr, nil
}

// Sets returns the selector set names, sorted
func (e *Extractor) Sets() []string {
	names := make([]string, 0, len(e.sets))
	for n := range e.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select evaluates a selector set against the page body
func (e *Extractor) Select(page *models.Page, set string) (models.RawFieldSet, error) {
	_, span := tracer.Start(context.Background(), "extractor.Select", trace.WithAttributes(
		attribute.String("set", set),
		attribute.String("url", page.URL),
	))
	defer span.End()

	rules, ok := e.sets[set]
	if !ok {
		err := fmt.Errorf("unknown selector set %q", set)
		span.SetStatus(codes.Error, err.Error())
		return models.RawFieldSet{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cannot parse page")
		return models.RawFieldSet{}, fmt.Errorf("failed to parse %s: %w", page.URL, err)
	}

	raw := models.NewRawFieldSet()
	for _, r := range rules {
		if fragments := r.apply(doc); len(fragments) > 0 {
			raw.Add(r.Field, fragments...)
		}
	}
	span.SetAttributes(attribute.Int("fields", raw.Len()))
	return raw, nil
}

func (r compiledRule) apply(doc *goquery.Document) []string {
	sel := doc.Find(r.Selector)
	if r.Contains != "" {
		sel = sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return utils.ContainsFold(GetText(s.Nodes[0]), r.Contains)
		})
	}
	if r.Mode != ModeLabelled && r.Inner != "" {
		sel = sel.Find(r.Inner)
	}
	if sel.Length() == 0 {
		return nil
	}

	if r.Mode == ModePresence {
		return []string{presenceMarker}
	}
	if r.First && r.Mode != ModeLabelled {
		sel = sel.First()
	}

	var fragments []string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		frag, ok := r.fragment(s)
		if ok {
			if frag, ok = r.filter(frag); ok {
				fragments = append(fragments, frag)
			}
		}
		return !(r.First && len(fragments) > 0)
	})
	return fragments
}

func (r compiledRule) fragment(s *goquery.Selection) (string, bool) {
	node := s.Nodes[0]
	switch r.Mode {
	case ModeAttr:
		return s.Attr(r.Attr)
	case ModeOwnText:
		return ownText(node), true
	case ModeLabelled:
		label := s.Find(r.LabelSelector).First()
		if label.Length() == 0 || !utils.EqualsFold(GetText(label.Nodes[0]), r.Label) {
			return "", false
		}
		var parts []string
		s.Find(r.Inner).Each(func(_ int, v *goquery.Selection) {
			parts = append(parts, GetText(v.Nodes[0]))
		})
		return utils.JoinFragments(parts), len(parts) > 0
	case ModeMainText:
		return mainText(s), true
	default:
		return GetText(node), true
	}
}

func (r compiledRule) filter(frag string) (string, bool) {
	if r.pattern == nil {
		return frag, true
	}
	m := r.pattern.FindStringSubmatch(frag)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return m[0], true
}

// mainText runs readability extraction over the element, falling back to
// its plain text when nothing readable is found.
func mainText(s *goquery.Selection) string {
	outer, err := goquery.OuterHtml(s)
	if err == nil {
		result, err := trafilatura.Extract(strings.NewReader(outer), trafilatura.Options{})
		if err == nil && result != nil && strings.TrimSpace(result.ContentText) != "" {
			return result.ContentText
		}
	}
	return GetText(s.Nodes[0])
}

// GetText returns all text below n
func GetText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
