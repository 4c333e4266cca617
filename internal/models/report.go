package models

import "time"

// DatasetReport summarizes a crawl's output and, when the crawl ran in this
// process, the run itself
type DatasetReport struct {
	RunID           string           `json:"run_id,omitempty"`
	Source          string           `json:"source"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Run             *CrawlSummary    `json:"run,omitempty"`
	DetailRecords   int              `json:"detail_records"`
	ListingRecords  int              `json:"listing_records"`
	Summary         ReportSummary    `json:"summary"`
	Scores          QualityScores    `json:"scores"`
	Coverage        []FieldCoverage  `json:"coverage"`
	Flags           []FlagRate       `json:"flags,omitempty"`
	Brands          []BrandStats     `json:"brands"`
	Years           []YearBucket     `json:"years"`
	KeyFindings     []Finding        `json:"key_findings"`
	Recommendations []Recommendation `json:"recommendations"`
}

// ReportSummary provides the high-level verdict
type ReportSummary struct {
	Grade         string   `json:"grade"`
	OverallScore  float64  `json:"overall_score"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	TopPriorities []string `json:"top_priorities"`
}

// QualityScores rates the dataset from 0 to 100
type QualityScores struct {
	Completeness float64 `json:"completeness"`
	Pricing      float64 `json:"pricing"`
	Health       float64 `json:"health"`
	Overall      float64 `json:"overall"`
}

// FieldCoverage counts the detail records carrying a value for a column
type FieldCoverage struct {
	Field  string  `json:"field"`
	Filled int     `json:"filled"`
	Ratio  float64 `json:"ratio"`
}

// FlagRate counts the detail records with a boolean column set
type FlagRate struct {
	Field string  `json:"field"`
	True  int     `json:"true"`
	Ratio float64 `json:"ratio"`
}

// BrandStats aggregates prices per brand
type BrandStats struct {
	Brand    string  `json:"brand"`
	Count    int     `json:"count"`
	Priced   int     `json:"priced"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	AvgPrice float64 `json:"avg_price"`
}

// YearBucket counts detail records per model year
type YearBucket struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// Finding represents a problem found in the dataset or the run
type Finding struct {
	Category    string `json:"category"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Details     string `json:"details,omitempty"`
}

// Recommendation represents an actionable improvement
type Recommendation struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Description string `json:"description"`
}
