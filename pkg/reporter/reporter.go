package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

const (
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatTable    = "table"
)

// Formats lists the supported output formats
func Formats() []string {
	return []string{FormatTable, FormatJSON, FormatMarkdown, FormatHTML}
}

// Reporter handles report generation in various formats
type Reporter struct {
	html *template.Template
}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{
		html: template.Must(template.New("report").Funcs(template.FuncMap{
			"percent": func(ratio float64) string { return fmt.Sprintf("%.0f%%", ratio*100) },
		}).Parse(htmlTemplate)),
	}
}

// Render formats the report
func (r *Reporter) Render(report *models.DatasetReport, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return r.generateJSON(report)
	case FormatHTML:
		return r.generateHTML(report)
	case FormatMarkdown, "md":
		return r.generateMarkdown(report), nil
	case FormatTable, "":
		return r.generateTable(report), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// generateJSON creates a JSON formatted report
func (r *Reporter) generateJSON(report *models.DatasetReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// generateHTML creates an HTML formatted report
func (r *Reporter) generateHTML(report *models.DatasetReport) (string, error) {
	var buf bytes.Buffer
	if err := r.html.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// generateMarkdown creates a Markdown formatted report
func (r *Reporter) generateMarkdown(report *models.DatasetReport) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Crawl Report for %s\n\n", report.Source)
	fmt.Fprintf(&buf, "*Generated on %s*\n\n", report.GeneratedAt.Format("January 2, 2006 15:04"))

	fmt.Fprintf(&buf, "## Summary\n\n")
	fmt.Fprintf(&buf, "**Overall Grade:** %s (%.0f/100)\n\n", report.Summary.Grade, report.Summary.OverallScore)
	fmt.Fprintf(&buf, "Detail records: %d, listing records: %d\n\n", report.DetailRecords, report.ListingRecords)

	fmt.Fprintf(&buf, "### Scores\n\n")
	fmt.Fprintf(&buf, "| Metric | Score |\n")
	fmt.Fprintf(&buf, "|--------|-------|\n")
	fmt.Fprintf(&buf, "| Completeness | %.0f |\n", report.Scores.Completeness)
	fmt.Fprintf(&buf, "| Pricing | %.0f |\n", report.Scores.Pricing)
	fmt.Fprintf(&buf, "| Crawl Health | %.0f |\n", report.Scores.Health)
	fmt.Fprintf(&buf, "| **Overall** | **%.0f** |\n\n", report.Scores.Overall)

	if run := report.Run; run != nil {
		fmt.Fprintf(&buf, "### Run\n\n")
		fmt.Fprintf(&buf, "- **Duration:** %s\n", run.Duration().Round(time.Second))
		fmt.Fprintf(&buf, "- **Listing pages:** %d\n", run.ListingPages)
		fmt.Fprintf(&buf, "- **Detail pages:** %d\n", run.DetailPages)
		fmt.Fprintf(&buf, "- **Records emitted:** %d\n", run.RecordsEmitted)
		fmt.Fprintf(&buf, "- **Extraction gaps:** %d\n", run.ExtractionGaps)
		fmt.Fprintf(&buf, "- **Fetch errors:** %d\n", run.FetchErrors)
		fmt.Fprintf(&buf, "- **Sink errors:** %d\n", run.SinkErrors)
		fmt.Fprintf(&buf, "- **Duplicates:** %d\n\n", run.Duplicates)
	}

	if len(report.Summary.Strengths) > 0 {
		fmt.Fprintf(&buf, "### Strengths\n\n")
		for _, strength := range report.Summary.Strengths {
			fmt.Fprintf(&buf, "- %s\n", strength)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(report.Summary.Weaknesses) > 0 {
		fmt.Fprintf(&buf, "### Areas for Improvement\n\n")
		for _, weakness := range report.Summary.Weaknesses {
			fmt.Fprintf(&buf, "- %s\n", weakness)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(report.Coverage) > 0 {
		fmt.Fprintf(&buf, "## Field Coverage\n\n")
		fmt.Fprintf(&buf, "| Field | Filled | Ratio |\n")
		fmt.Fprintf(&buf, "|-------|--------|-------|\n")
		for _, c := range report.Coverage {
			fmt.Fprintf(&buf, "| %s | %d | %.0f%% |\n", c.Field, c.Filled, c.Ratio*100)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(report.Brands) > 0 {
		fmt.Fprintf(&buf, "## Brands\n\n")
		fmt.Fprintf(&buf, "| Brand | Records | Priced | Min | Avg | Max |\n")
		fmt.Fprintf(&buf, "|-------|---------|--------|-----|-----|-----|\n")
		for _, b := range report.Brands {
			fmt.Fprintf(&buf, "| %s | %d | %d | %.0f | %.0f | %.0f |\n", b.Brand, b.Count, b.Priced, b.MinPrice, b.AvgPrice, b.MaxPrice)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(report.KeyFindings) > 0 {
		fmt.Fprintf(&buf, "## Key Findings\n\n")
		for _, finding := range report.KeyFindings {
			fmt.Fprintf(&buf, "### %s\n", finding.Type)
			fmt.Fprintf(&buf, "- **Category:** %s\n", finding.Category)
			fmt.Fprintf(&buf, "- **Severity:** %s\n", finding.Severity)
			fmt.Fprintf(&buf, "- **Description:** %s\n", finding.Description)
			if finding.Details != "" {
				fmt.Fprintf(&buf, "- **Details:** %s\n", finding.Details)
			}
			fmt.Fprintf(&buf, "\n")
		}
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintf(&buf, "## Recommendations\n\n")
		for i, rec := range report.Recommendations {
			fmt.Fprintf(&buf, "### %d. %s\n", i+1, rec.Action)
			fmt.Fprintf(&buf, "- **Priority:** %s\n", rec.Priority)
			fmt.Fprintf(&buf, "- **Category:** %s\n", rec.Category)
			fmt.Fprintf(&buf, "- **Description:** %s\n", rec.Description)
			fmt.Fprintf(&buf, "\n")
		}
	}

	return buf.String()
}

// generateTable renders the terminal summary
func (r *Reporter) generateTable(report *models.DatasetReport) string {
	var b strings.Builder

	scores := table.NewWriter()
	scores.SetTitle("%s  grade %s", report.Source, report.Summary.Grade)
	scores.AppendHeader(table.Row{"Metric", "Value"})
	scores.AppendRow(table.Row{"Detail records", report.DetailRecords})
	scores.AppendRow(table.Row{"Listing records", report.ListingRecords})
	if run := report.Run; run != nil {
		scores.AppendSeparator()
		scores.AppendRow(table.Row{"Listing pages", run.ListingPages})
		scores.AppendRow(table.Row{"Detail pages", run.DetailPages})
		scores.AppendRow(table.Row{"Extraction gaps", run.ExtractionGaps})
		scores.AppendRow(table.Row{"Fetch errors", run.FetchErrors})
		scores.AppendRow(table.Row{"Sink errors", run.SinkErrors})
		scores.AppendRow(table.Row{"Duplicates", run.Duplicates})
	}
	scores.AppendSeparator()
	scores.AppendRow(table.Row{"Completeness", fmt.Sprintf("%.0f", report.Scores.Completeness)})
	scores.AppendRow(table.Row{"Pricing", fmt.Sprintf("%.0f", report.Scores.Pricing)})
	scores.AppendRow(table.Row{"Crawl health", fmt.Sprintf("%.0f", report.Scores.Health)})
	scores.AppendFooter(table.Row{"Overall", fmt.Sprintf("%.0f", report.Scores.Overall)})
	scores.SetStyle(table.StyleRounded)
	b.WriteString(scores.Render())
	b.WriteString("\n")

	if len(report.Brands) > 0 {
		brands := table.NewWriter()
		brands.AppendHeader(table.Row{"Brand", "Records", "Priced", "Min", "Avg", "Max"})
		for _, s := range report.Brands {
			brands.AppendRow(table.Row{s.Brand, s.Count, s.Priced,
				fmt.Sprintf("%.0f", s.MinPrice), fmt.Sprintf("%.0f", s.AvgPrice), fmt.Sprintf("%.0f", s.MaxPrice)})
		}
		brands.SetStyle(table.StyleRounded)
		b.WriteString(brands.Render())
		b.WriteString("\n")
	}

	if len(report.KeyFindings) > 0 {
		findings := table.NewWriter()
		findings.AppendHeader(table.Row{"Severity", "Finding", "Description"})
		for _, f := range report.KeyFindings {
			findings.AppendRow(table.Row{f.Severity, f.Type, f.Description})
		}
		findings.SetStyle(table.StyleRounded)
		b.WriteString(findings.Render())
		b.WriteString("\n")
	}

	return b.String()
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Crawl Report - {{.Source}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #1d5fa8 0%, #3a8dde 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .score-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 1rem;
        }
        .score-item { text-align: center; padding: 1rem; background: #f8f9fa; border-radius: 8px; }
        .score-value { font-size: 2rem; font-weight: bold; color: #1d5fa8; }
        .score-label { color: #666; font-size: 0.9rem; }
        .grade { padding: 0.5rem 1rem; background: #28a745; color: white; border-radius: 5px; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 0.4rem; border-bottom: 1px solid #eee; }
        .finding { border-left: 4px solid #ffc107; padding: 0.5rem 1rem; margin: 1rem 0; }
        .finding.critical, .finding.high { border-left-color: #dc3545; }
        .finding.low { border-left-color: #28a745; }
        .priority-badge { padding: 0.25rem 0.75rem; border-radius: 4px; font-size: 0.85rem; font-weight: bold; }
        .priority-critical { background: #dc3545; color: white; }
        .priority-high { background: #fd7e14; color: white; }
        .priority-medium { background: #ffc107; }
        .priority-low { background: #28a745; color: white; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Crawl Report for {{.Source}}</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006 15:04"}}{{if .RunID}} &middot; run {{.RunID}}{{end}}</p>
    </div>

    <div class="card">
        <h2>Summary</h2>
        <p>Overall Grade: <span class="grade">{{.Summary.Grade}}</span></p>
        <p>{{.DetailRecords}} detail records, {{.ListingRecords}} listing records</p>
        <div class="score-grid">
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Completeness}}</div>
                <div class="score-label">Completeness</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Pricing}}</div>
                <div class="score-label">Pricing</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Health}}</div>
                <div class="score-label">Crawl Health</div>
            </div>
            <div class="score-item">
                <div class="score-value">{{printf "%.0f" .Scores.Overall}}</div>
                <div class="score-label">Overall Score</div>
            </div>
        </div>

        {{if .Summary.Strengths}}
        <h3>Strengths</h3>
        <ul>
            {{range .Summary.Strengths}}<li>{{.}}</li>{{end}}
        </ul>
        {{end}}

        {{if .Summary.Weaknesses}}
        <h3>Areas for Improvement</h3>
        <ul>
            {{range .Summary.Weaknesses}}<li>{{.}}</li>{{end}}
        </ul>
        {{end}}
    </div>

    {{if .Coverage}}
    <div class="card">
        <h2>Field Coverage</h2>
        <table>
            <tr><th>Field</th><th>Filled</th><th>Ratio</th></tr>
            {{range .Coverage}}<tr><td>{{.Field}}</td><td>{{.Filled}}</td><td>{{percent .Ratio}}</td></tr>{{end}}
        </table>
    </div>
    {{end}}

    {{if .Brands}}
    <div class="card">
        <h2>Brands</h2>
        <table>
            <tr><th>Brand</th><th>Records</th><th>Priced</th><th>Min</th><th>Avg</th><th>Max</th></tr>
            {{range .Brands}}<tr><td>{{.Brand}}</td><td>{{.Count}}</td><td>{{.Priced}}</td><td>{{printf "%.0f" .MinPrice}}</td><td>{{printf "%.0f" .AvgPrice}}</td><td>{{printf "%.0f" .MaxPrice}}</td></tr>{{end}}
        </table>
    </div>
    {{end}}

    {{if .KeyFindings}}
    <div class="card">
        <h2>Key Findings</h2>
        {{range .KeyFindings}}
        <div class="finding {{.Severity}}">
            <h4>{{.Type}}</h4>
            <p>{{.Description}}</p>
            {{if .Details}}<p><small>{{.Details}}</small></p>{{end}}
        </div>
        {{end}}
    </div>
    {{end}}

    {{if .Recommendations}}
    <div class="card">
        <h2>Recommendations</h2>
        {{range .Recommendations}}
        <div class="finding">
            <span class="priority-badge priority-{{.Priority}}">{{.Priority}} Priority</span>
            <h4>{{.Action}}</h4>
            <p>{{.Description}}</p>
        </div>
        {{end}}
    </div>
    {{end}}
</body>
</html>
`
