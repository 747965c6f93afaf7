package scoring

import (
	"testing"

	"github.com/marketplace-registry/marketplace-registry/internal/analysis"
	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

func defaultConfig() config.ScoringConfig {
	return config.ScoringConfig{
		UnitTestPoints:        15,
		IntegrationTestPoints: 10,
		APITestPoints:         5,
		SecurityWeight:        0.4,
		ComplexityWeight:      0.1,
		DocWeight:             0.1,
		MaintainabilityWeight: 0.05,
		DuplicationWeight:     0.05,
		ApproveOverallMin:     80,
		ApproveSecurityMin:    80,
		ReviewOverallMin:      60,
		ReviewSecurityMin:     70,
	}
}

func cleanPassingReport() *analysis.Report {
	return &analysis.Report{
		Tests: models.TestResults{
			Unit:        models.SuiteResult{Passed: 10, Total: 10},
			Integration: models.SuiteResult{Passed: 4, Total: 4},
			API:         models.SuiteResult{Passed: 2, Total: 2},
			Coverage:    85,
		},
		SecurityScore: 100,
		Quality: models.QualityMetrics{
			AvgComplexity:   5,
			DocCoverage:     90,
			Maintainability: 88,
			Duplication:     5,
		},
	}
}

func TestScoreCleanModule(t *testing.T) {
	e := New(defaultConfig())
	report := cleanPassingReport()

	overall := e.Score(report)
	// 30 tests + 40 security + 9.5 complexity + 9 doc + 4.4 maintainability
	// + 4.75 duplication = 97.65
	if overall < 97.6 || overall > 97.7 {
		t.Errorf("expected overall near 97.65, got %f", overall)
	}

	if rec := e.Recommend(report, overall); rec != models.RecommendApprove {
		t.Errorf("expected approve, got %s", rec)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := New(defaultConfig())
	report := cleanPassingReport()
	first, firstRec := e.Evaluate(report)
	second, secondRec := e.Evaluate(report)
	if first != second || firstRec != secondRec {
		t.Errorf("evaluation not deterministic: (%f,%s) vs (%f,%s)", first, firstRec, second, secondRec)
	}
}

func TestScoreEmptySuitesEarnNoPoints(t *testing.T) {
	e := New(defaultConfig())
	report := &analysis.Report{SecurityScore: 100}

	overall := e.Score(report)
	// Security 40 + complexity 10 + duplication 5; no tests, no docs, zero
	// maintainability.
	if overall != 55 {
		t.Errorf("expected 55, got %f", overall)
	}
}

func TestHighSeverityFindingVetoesApproval(t *testing.T) {
	e := New(defaultConfig())
	report := cleanPassingReport()
	report.Findings = []models.SecurityFinding{
		{Type: "shell_invocation", Severity: models.SeverityHigh, Location: "install.php:3"},
	}

	overall := e.Score(report)
	if rec := e.Recommend(report, overall); rec != models.RecommendReject {
		t.Errorf("expected reject on high finding, got %s", rec)
	}
}

func TestMediumFindingsDoNotVeto(t *testing.T) {
	e := New(defaultConfig())
	report := cleanPassingReport()
	report.Findings = []models.SecurityFinding{
		{Type: "hardcoded_credential", Severity: models.SeverityMedium, Location: "config.py:8"},
	}

	overall := e.Score(report)
	if rec := e.Recommend(report, overall); rec != models.RecommendApprove {
		t.Errorf("expected approve despite medium finding, got %s", rec)
	}
}

func TestReviewBand(t *testing.T) {
	e := New(defaultConfig())
	report := cleanPassingReport()
	report.SecurityScore = 75
	report.Tests.Unit = models.SuiteResult{Passed: 5, Failed: 5, Total: 10}
	report.Tests.Integration = models.SuiteResult{Passed: 2, Failed: 2, Total: 4}

	overall := e.Score(report)
	if overall < 60 || overall >= 80 {
		t.Fatalf("test setup expects the review band, got %f", overall)
	}
	if rec := e.Recommend(report, overall); rec != models.RecommendReview {
		t.Errorf("expected review, got %s", rec)
	}
}

func TestRejectBelowReviewThresholds(t *testing.T) {
	e := New(defaultConfig())
	report := &analysis.Report{SecurityScore: 50}

	overall := e.Score(report)
	if rec := e.Recommend(report, overall); rec != models.RecommendReject {
		t.Errorf("expected reject, got %s", rec)
	}
}

func TestRecommendationThresholdsAreConfigurable(t *testing.T) {
	cfg := defaultConfig()
	cfg.ApproveOverallMin = 99
	e := New(cfg)
	report := cleanPassingReport()

	overall := e.Score(report)
	if rec := e.Recommend(report, overall); rec != models.RecommendReview {
		t.Errorf("expected review under raised approve bar, got %s", rec)
	}
}

func TestScoreClamped(t *testing.T) {
	cfg := defaultConfig()
	cfg.SecurityWeight = 2
	e := New(cfg)

	if overall := e.Score(cleanPassingReport()); overall != 100 {
		t.Errorf("expected clamp at 100, got %f", overall)
	}
}
