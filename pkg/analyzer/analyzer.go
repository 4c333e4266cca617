package analyzer

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/sink"
)

// coreFields are the columns every detail profile fills
var coreFields = []string{"brand", "model", "year", "price"}

// Analyzer turns crawl output into a DatasetReport
type Analyzer struct {
	config *Config
}

// Config holds analyzer configuration
type Config struct {
	// Coverage below this ratio is reported for core fields
	MinCoverage float64
	// Share of detail records without a price that is reported
	MaxUnpriced float64
	// Brands listed in the report, 0 for all
	TopBrands int
}

// DefaultConfig returns the thresholds used by New
func DefaultConfig() *Config {
	return &Config{MinCoverage: 0.5, MaxUnpriced: 0.2, TopBrands: 20}
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return &Analyzer{config: DefaultConfig()}
}

// NewWithConfig creates an Analyzer with custom configuration
func NewWithConfig(config *Config) *Analyzer {
	return &Analyzer{config: config}
}

// AnalyzeNDJSON reads an NDJSON output file and analyzes it
func (a *Analyzer) AnalyzeNDJSON(r io.Reader, source string) (*models.DatasetReport, error) {
	var rows []sink.Row
	err := sink.ReadNDJSON(r, func(row sink.Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return a.Analyze(rows, nil, source), nil
}

// Analyze builds the report. run may be nil when the rows were read back
// from a file.
func (a *Analyzer) Analyze(rows []sink.Row, run *models.CrawlSummary, source string) *models.DatasetReport {
	report := &models.DatasetReport{
		Source:      source,
		GeneratedAt: time.Now(),
		Run:         run,
	}
	if run != nil {
		report.RunID = run.RunID
	}

	var details []sink.Row
	for _, row := range rows {
		switch row.Kind {
		case models.KindDetail:
			details = append(details, row)
		case models.KindListing:
			report.ListingRecords++
		}
	}
	report.DetailRecords = len(details)

	report.Coverage, report.Flags = a.coverage(details)
	report.Brands = a.brands(details)
	report.Years = years(details)

	report.Scores.Completeness = completeness(report.Coverage)
	report.Scores.Pricing = pricing(details)
	report.Scores.Health = health(run)
	report.Scores.Overall = a.calculateOverallScore(report.Scores)

	report.KeyFindings = a.generateFindings(report)
	report.Recommendations = a.generateRecommendations(report.KeyFindings)
	report.Summary = a.generateSummary(report)
	return report
}

func (a *Analyzer) coverage(details []sink.Row) ([]models.FieldCoverage, []models.FlagRate) {
	var order []string
	filled := make(map[string]int)
	truths := make(map[string]int)
	isFlag := make(map[string]bool)
	seen := make(map[string]bool)

	for _, row := range details {
		names := make([]string, 0, len(row.Values))
		for name := range row.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if name == "url" {
				continue
			}
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
			v := row.Values[name]
			if b, ok := v.(bool); ok {
				isFlag[name] = true
				if b {
					truths[name]++
				}
				continue
			}
			if hasValue(v) {
				filled[name]++
			}
		}
	}

	total := float64(len(details))
	var coverage []models.FieldCoverage
	var flags []models.FlagRate
	for _, name := range order {
		if isFlag[name] {
			flags = append(flags, models.FlagRate{Field: name, True: truths[name], Ratio: ratio(float64(truths[name]), total)})
			continue
		}
		coverage = append(coverage, models.FieldCoverage{Field: name, Filled: filled[name], Ratio: ratio(float64(filled[name]), total)})
	}
	// core fields first, then by name
	sort.SliceStable(coverage, func(i, j int) bool {
		ci, cj := coreIndex(coverage[i].Field), coreIndex(coverage[j].Field)
		if ci != cj {
			return ci < cj
		}
		return coverage[i].Field < coverage[j].Field
	})
	return coverage, flags
}

func coreIndex(field string) int {
	for i, f := range coreFields {
		if f == field {
			return i
		}
	}
	return len(coreFields)
}

func (a *Analyzer) brands(details []sink.Row) []models.BrandStats {
	stats := make(map[string]*models.BrandStats)
	for _, row := range details {
		brand := strings.TrimSpace(fmt.Sprint(valueOr(row.Values["brand"], "")))
		if brand == "" {
			brand = "unknown"
		}
		s, ok := stats[brand]
		if !ok {
			s = &models.BrandStats{Brand: brand, MinPrice: math.Inf(1), MaxPrice: math.Inf(-1)}
			stats[brand] = s
		}
		s.Count++
		if price, ok := number(row.Values["price"]); ok {
			s.Priced++
			s.AvgPrice += price
			s.MinPrice = math.Min(s.MinPrice, price)
			s.MaxPrice = math.Max(s.MaxPrice, price)
		}
	}

	out := make([]models.BrandStats, 0, len(stats))
	for _, s := range stats {
		if s.Priced > 0 {
			s.AvgPrice = math.Round(s.AvgPrice/float64(s.Priced)*100) / 100
		} else {
			s.MinPrice, s.MaxPrice = 0, 0
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Brand < out[j].Brand
	})
	if a.config.TopBrands > 0 && len(out) > a.config.TopBrands {
		out = out[:a.config.TopBrands]
	}
	return out
}

func years(details []sink.Row) []models.YearBucket {
	counts := make(map[int]int)
	for _, row := range details {
		if y, ok := number(row.Values["year"]); ok {
			counts[int(y)]++
		}
	}
	out := make([]models.YearBucket, 0, len(counts))
	for y, n := range counts {
		out = append(out, models.YearBucket{Year: y, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func completeness(coverage []models.FieldCoverage) float64 {
	sum, n := 0.0, 0
	for _, c := range coverage {
		if coreIndex(c.Field) < len(coreFields) {
			sum += c.Ratio
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round(sum / float64(len(coreFields)) * 100)
}

func pricing(details []sink.Row) float64 {
	if len(details) == 0 {
		return 0
	}
	priced := 0
	for _, row := range details {
		if _, ok := number(row.Values["price"]); ok {
			priced++
		}
	}
	return round(float64(priced) / float64(len(details)) * 100)
}

// health is the share of visited pages that produced output cleanly
func health(run *models.CrawlSummary) float64 {
	if run == nil {
		return 100
	}
	pages := run.ListingPages + run.DetailPages + run.FetchErrors
	if pages == 0 {
		return 0
	}
	failed := run.ExtractionGaps + run.FetchErrors + run.SinkErrors
	return round(math.Max(0, 1-float64(failed)/float64(pages)) * 100)
}

// calculateOverallScore computes the weighted average of all scores
func (a *Analyzer) calculateOverallScore(scores models.QualityScores) float64 {
	weights := map[string]float64{
		"completeness": 0.4,
		"pricing":      0.3,
		"health":       0.3,
	}

	return round(scores.Completeness*weights["completeness"] +
		scores.Pricing*weights["pricing"] +
		scores.Health*weights["health"])
}

// generateFindings lists the problems worth a look
func (a *Analyzer) generateFindings(report *models.DatasetReport) []models.Finding {
	findings := []models.Finding{}

	if report.DetailRecords == 0 {
		findings = append(findings, models.Finding{
			Category:    "Dataset",
			Type:        "Empty Dataset",
			Description: "No detail records were produced",
			Severity:    "critical",
		})
		return findings
	}

	var sparse []string
	for _, c := range report.Coverage {
		if coreIndex(c.Field) < len(coreFields) && c.Ratio < a.config.MinCoverage {
			sparse = append(sparse, fmt.Sprintf("%s %.0f%%", c.Field, c.Ratio*100))
		}
	}
	if len(sparse) > 0 {
		findings = append(findings, models.Finding{
			Category:    "Dataset",
			Type:        "Low Field Coverage",
			Description: fmt.Sprintf("%d core fields are filled in less than %.0f%% of records", len(sparse), a.config.MinCoverage*100),
			Severity:    "high",
			Details:     strings.Join(sparse, ", "),
		})
	}

	if unpriced := 1 - report.Scores.Pricing/100; unpriced > a.config.MaxUnpriced {
		findings = append(findings, models.Finding{
			Category:    "Dataset",
			Type:        "Missing Prices",
			Description: fmt.Sprintf("%.0f%% of records have no usable price", unpriced*100),
			Severity:    "medium",
		})
	}

	if run := report.Run; run != nil {
		if run.ExtractionGaps > 0 {
			severity := "low"
			if pages := run.ListingPages + run.DetailPages; pages > 0 && float64(run.ExtractionGaps)/float64(pages) > 0.1 {
				severity = "high"
			}
			findings = append(findings, models.Finding{
				Category:    "Crawl",
				Type:        "Extraction Gaps",
				Description: fmt.Sprintf("%d pages lacked the elements their stage needs", run.ExtractionGaps),
				Severity:    severity,
			})
		}
		if run.FetchErrors > 0 {
			findings = append(findings, models.Finding{
				Category:    "Crawl",
				Type:        "Fetch Errors",
				Description: fmt.Sprintf("%d requests failed to render", run.FetchErrors),
				Severity:    "medium",
			})
		}
		if run.SinkErrors > 0 {
			findings = append(findings, models.Finding{
				Category:    "Output",
				Type:        "Sink Errors",
				Description: fmt.Sprintf("%d records could not be written", run.SinkErrors),
				Severity:    "critical",
			})
		}
	}

	return findings
}

// generateRecommendations creates actionable recommendations based on findings
func (a *Analyzer) generateRecommendations(findings []models.Finding) []models.Recommendation {
	recommendations := []models.Recommendation{}

	// Sort findings by severity
	sort.SliceStable(findings, func(i, j int) bool {
		severityOrder := map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}
		return severityOrder[findings[i].Severity] < severityOrder[findings[j].Severity]
	})

	for _, finding := range findings {
		var rec models.Recommendation

		switch finding.Type {
		case "Empty Dataset":
			rec = models.Recommendation{
				Priority:    "critical",
				Category:    "Crawl",
				Action:      "Check the search filter and listing selectors",
				Description: "A filter matching nothing or a changed listing layout both end the crawl on the first page",
			}
		case "Low Field Coverage":
			rec = models.Recommendation{
				Priority:    "high",
				Category:    "Selectors",
				Action:      "Update the detail selector overrides",
				Description: "Fields that are rarely filled usually mean the page markup moved; override them under selectors in the config file",
			}
		case "Missing Prices":
			rec = models.Recommendation{
				Priority:    "medium",
				Category:    "Selectors",
				Action:      "Review the price selector",
				Description: "Adverts priced on request are expected, a large share is not",
			}
		case "Extraction Gaps":
			rec = models.Recommendation{
				Priority:    finding.Severity,
				Category:    "Crawl",
				Action:      "Inspect pages logged as extraction gaps",
				Description: "Each gap drops a listing branch or a detail record",
			}
		case "Fetch Errors":
			rec = models.Recommendation{
				Priority:    "medium",
				Category:    "Rendering",
				Action:      "Lower splash.requests_per_second or raise splash.retries",
				Description: "Render failures usually come from an overloaded Splash instance",
			}
		case "Sink Errors":
			rec = models.Recommendation{
				Priority:    "critical",
				Category:    "Output",
				Action:      "Check the output destination",
				Description: "Records that could not be written are lost",
			}
		default:
			continue
		}

		recommendations = append(recommendations, rec)
	}

	return recommendations
}

// generateSummary creates a high-level summary
func (a *Analyzer) generateSummary(report *models.DatasetReport) models.ReportSummary {
	summary := models.ReportSummary{
		OverallScore: report.Scores.Overall,
	}

	// Determine grade
	switch {
	case summary.OverallScore >= 90:
		summary.Grade = "A"
	case summary.OverallScore >= 80:
		summary.Grade = "B"
	case summary.OverallScore >= 70:
		summary.Grade = "C"
	case summary.OverallScore >= 60:
		summary.Grade = "D"
	default:
		summary.Grade = "F"
	}

	if report.Scores.Completeness >= 80 {
		summary.Strengths = append(summary.Strengths, "Core fields are well covered")
	}
	if report.Scores.Pricing >= 80 {
		summary.Strengths = append(summary.Strengths, "Most records carry a price")
	}
	if report.Run != nil && report.Scores.Health >= 80 {
		summary.Strengths = append(summary.Strengths, "The crawl ran with few errors")
	}

	if report.Scores.Completeness < 60 {
		summary.Weaknesses = append(summary.Weaknesses, "Core fields are often missing")
	}
	if report.Scores.Pricing < 60 {
		summary.Weaknesses = append(summary.Weaknesses, "Many records have no price")
	}
	if report.Scores.Health < 60 {
		summary.Weaknesses = append(summary.Weaknesses, "Many pages failed during the crawl")
	}

	for i, rec := range report.Recommendations {
		if i >= 3 {
			break
		}
		summary.TopPriorities = append(summary.TopPriorities, rec.Action)
	}

	return summary
}

func hasValue(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	return true
}

// number accepts the numeric forms records and decoded JSON carry
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func valueOr(v, fallback any) any {
	if v == nil {
		return fallback
	}
	return v
}

func ratio(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(part/total*1000) / 1000
}

func round(f float64) float64 {
	return math.Round(f*10) / 10
}
