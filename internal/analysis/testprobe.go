package analysis

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// suiteDirs maps each test category to the directory names modules use for
// it. The first match wins.
var suiteDirs = map[string][]string{
	"unit":        {"tests/unit", "test/unit"},
	"integration": {"tests/integration", "test/integration"},
	"api":         {"tests/api", "test/api"},
	"ui":          {"tests/ui", "test/ui"},
}

// interpreters maps script extensions to the command that runs them. Files
// with other extensions are run directly when they carry an executable bit.
var interpreters = map[string][]string{
	".sh":   {"sh"},
	".bash": {"bash"},
	".py":   {"python3"},
	".js":   {"node"},
	".php":  {"php"},
}

// runTestProbe discovers the per-category suite directories and runs every
// script in them, one script per test case. With test execution disabled all
// suites stay empty and earn no points.
func (a *Analyzer) runTestProbe(ctx context.Context, dir string) (models.TestResults, error) {
	results := models.TestResults{}
	if !a.cfg.Analysis.RunTests {
		return results, nil
	}

	for category, candidates := range suiteDirs {
		suite, err := a.runSuite(ctx, dir, candidates)
		if err != nil {
			return results, err
		}
		switch category {
		case "unit":
			results.Unit = suite
		case "integration":
			results.Integration = suite
		case "api":
			results.API = suite
		case "ui":
			results.UI = suite
		}
	}

	results.Coverage = readCoverage(dir)
	return results, nil
}

func (a *Analyzer) runSuite(ctx context.Context, root string, candidates []string) (models.SuiteResult, error) {
	suite := models.SuiteResult{}

	var suiteDir string
	for _, c := range candidates {
		path := filepath.Join(root, filepath.FromSlash(c))
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			suiteDir = path
			break
		}
	}
	if suiteDir == "" {
		return suite, nil
	}

	entries, err := os.ReadDir(suiteDir)
	if err != nil {
		return suite, err
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(suiteDir, entry.Name())
		argv, ok := runnerFor(path)
		if !ok {
			continue
		}

		suite.Total++
		if a.runScript(ctx, root, argv) {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}

	return suite, nil
}

// runScript executes one test script; a non-zero exit or a timeout counts as
// a failed run.
func (a *Analyzer) runScript(ctx context.Context, workDir string, argv []string) bool {
	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Analysis.TestTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return false
	}
	return err == nil
}

func runnerFor(path string) ([]string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if argv, ok := interpreters[ext]; ok {
		return append(append([]string{}, argv...), path), true
	}
	if info, err := os.Stat(path); err == nil && info.Mode()&0111 != 0 {
		return []string{path}, true
	}
	return nil, false
}

// readCoverage picks up a coverage percentage the suites may have written to
// a well-known file. Missing or unparseable coverage reads as zero.
func readCoverage(dir string) float64 {
	for _, name := range []string{"coverage.txt", "coverage"} {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			token := strings.TrimSuffix(strings.TrimSpace(scanner.Text()), "%")
			if v, err := strconv.ParseFloat(token, 64); err == nil && v >= 0 && v <= 100 {
				return v
			}
		}
	}
	return 0
}
