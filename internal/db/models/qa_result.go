// Package models - qa_result.go defines the immutable QAResult snapshot written
// after each analyzer run, including test aggregates, security findings, and
// quality metrics.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation is the discrete outcome derived from a QA run.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendReject  Recommendation = "reject"
)

// Severity classifies a security finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SuiteResult aggregates one test category (unit, integration, api, ui).
type SuiteResult struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// PassRatio returns passed/total in [0,1]; an empty suite counts as zero so a
// package with no tests earns no test points.
func (s SuiteResult) PassRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// TestResults is the test probe output stored on a QAResult.
type TestResults struct {
	Unit        SuiteResult `json:"unit"`
	Integration SuiteResult `json:"integration"`
	API         SuiteResult `json:"api"`
	UI          SuiteResult `json:"ui"`
	Coverage    float64     `json:"coverage"`
}

// SecurityFinding is one issue located by the security probe.
type SecurityFinding struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Location string   `json:"location"`
	Detail   string   `json:"detail,omitempty"`
}

// QualityMetrics is the quality probe output stored on a QAResult.
type QualityMetrics struct {
	AvgComplexity   float64 `json:"avg_complexity"`
	DocCoverage     float64 `json:"doc_coverage"`
	Maintainability float64 `json:"maintainability"`
	Duplication     float64 `json:"duplication"`
}

// QAResult is one append-only scoring snapshot for a module. Rows are never
// updated after insert; the module references its latest result implicitly by
// created_at ordering.
type QAResult struct {
	ID             uuid.UUID                `db:"id" json:"id"`
	ModuleID       uuid.UUID                `db:"module_id" json:"module_id"`
	Tests          JSONB[TestResults]       `db:"tests" json:"tests"`
	Findings       JSONB[[]SecurityFinding] `db:"findings" json:"findings"`
	SecurityScore  float64                  `db:"security_score" json:"security_score"`
	Quality        JSONB[QualityMetrics]    `db:"quality" json:"quality"`
	OverallScore   float64                  `db:"overall_score" json:"overall_score"`
	Recommendation Recommendation           `db:"recommendation" json:"recommendation"`
	DegradedProbes JSONB[[]string]          `db:"degraded_probes" json:"degraded_probes,omitempty"`
	CreatedAt      time.Time                `db:"created_at" json:"created_at"`
}

// HasHighSeverityFinding reports whether any finding carries severity high.
// The recommendation policy vetoes approval on any such finding regardless of
// the overall score.
func (r *QAResult) HasHighSeverityFinding() bool {
	for _, f := range r.Findings.Data {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
