// Package analysis runs the three quality-gating probes over a staged module
// directory: test execution, static security scanning, and quality metrics.
// Each probe is independent; a probe failure degrades its own sub-score to the
// worst value and is recorded on the report, it never aborts the other probes.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// Report is the raw analyzer output consumed by the scoring engine.
type Report struct {
	Tests          models.TestResults
	Findings       []models.SecurityFinding
	SecurityScore  float64
	Quality        models.QualityMetrics
	DegradedProbes []string
}

// Analyzer coordinates the probes.
type Analyzer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an analyzer.
func New(cfg *config.Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, logger: logger}
}

// Analyze runs all three probes over dir and returns the combined report.
// It never returns a probe failure as an error; degraded probes are listed
// on the report instead.
func (a *Analyzer) Analyze(ctx context.Context, dir string) *Report {
	report := &Report{}

	if err := runProbe("tests", func() error {
		tests, err := a.runTestProbe(ctx, dir)
		if err != nil {
			return err
		}
		report.Tests = tests
		return nil
	}); err != nil {
		a.logger.Warn("test probe degraded", "dir", dir, "error", err)
		report.Tests = models.TestResults{}
		report.DegradedProbes = append(report.DegradedProbes, "tests")
	}

	if err := runProbe("security", func() error {
		findings, score, err := a.runSecurityProbe(dir)
		if err != nil {
			return err
		}
		report.Findings = findings
		report.SecurityScore = score
		return nil
	}); err != nil {
		a.logger.Warn("security probe degraded", "dir", dir, "error", err)
		report.Findings = nil
		report.SecurityScore = 0
		report.DegradedProbes = append(report.DegradedProbes, "security")
	}

	if err := runProbe("quality", func() error {
		quality, err := a.runQualityProbe(dir)
		if err != nil {
			return err
		}
		report.Quality = quality
		return nil
	}); err != nil {
		a.logger.Warn("quality probe degraded", "dir", dir, "error", err)
		report.Quality = worstQuality()
		report.DegradedProbes = append(report.DegradedProbes, "quality")
	}

	return report
}

// runProbe converts a probe panic into an ordinary error so one misbehaving
// probe cannot take down the worker.
func runProbe(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s probe panicked: %v", name, r)
		}
	}()
	return fn()
}

// worstQuality yields metrics that contribute zero quality points, so a
// degraded quality probe cannot inflate the overall score.
func worstQuality() models.QualityMetrics {
	return models.QualityMetrics{
		AvgComplexity: 100,
		Duplication:   100,
	}
}
