// Package scoring turns analyzer output into an overall 0-100 score and a
// discrete recommendation. The function is deterministic: identical probe
// output always yields the identical score and recommendation. All weights
// and thresholds come from configuration.
package scoring

import (
	"github.com/marketplace-registry/marketplace-registry/internal/analysis"
	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// Engine applies the configured weighting and recommendation policy.
type Engine struct {
	cfg config.ScoringConfig
}

// New creates a scoring engine.
func New(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score computes the overall score for a report, clamped to [0,100].
//
// Tests contribute up to unit+integration+api points (default 30) from the
// per-suite pass ratios, security contributes security_score x its weight,
// and quality contributes complexity, documentation, maintainability, and
// duplication terms.
func (e *Engine) Score(report *analysis.Report) float64 {
	score := report.Tests.Unit.PassRatio()*e.cfg.UnitTestPoints +
		report.Tests.Integration.PassRatio()*e.cfg.IntegrationTestPoints +
		report.Tests.API.PassRatio()*e.cfg.APITestPoints

	score += report.SecurityScore * e.cfg.SecurityWeight

	q := report.Quality
	score += (100-q.AvgComplexity)*e.cfg.ComplexityWeight +
		q.DocCoverage*e.cfg.DocWeight +
		q.Maintainability*e.cfg.MaintainabilityWeight +
		(100-q.Duplication)*e.cfg.DuplicationWeight

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Recommend applies the policy in order: any high-severity finding vetoes
// approval outright; then the approve and review threshold pairs; anything
// below the review bar is rejected.
func (e *Engine) Recommend(report *analysis.Report, overall float64) models.Recommendation {
	for _, f := range report.Findings {
		if f.Severity == models.SeverityHigh {
			return models.RecommendReject
		}
	}

	if overall >= e.cfg.ApproveOverallMin && report.SecurityScore >= e.cfg.ApproveSecurityMin {
		return models.RecommendApprove
	}
	if overall >= e.cfg.ReviewOverallMin && report.SecurityScore >= e.cfg.ReviewSecurityMin {
		return models.RecommendReview
	}
	return models.RecommendReject
}

// Evaluate scores a report and derives its recommendation in one step.
func (e *Engine) Evaluate(report *analysis.Report) (float64, models.Recommendation) {
	overall := e.Score(report)
	return overall, e.Recommend(report, overall)
}
