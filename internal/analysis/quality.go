package analysis

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

var (
	functionPattern = regexp.MustCompile(`^\s*(func\s|def\s|function\s|(public|private|protected|static)\s.*\bfunction\b|.*=>\s*\{?\s*$)`)
	branchPattern   = regexp.MustCompile(`\b(if|else if|elif|for|foreach|while|case|when|catch|except|rescue)\b|&&|\|\|`)
	commentPattern  = regexp.MustCompile(`^\s*(//|#|\*|/\*|--)`)
)

// maintainabilityFloor is the lowest maintainability index reported; the
// comment ratio can only raise the band above it.
const maintainabilityFloor = 70.0

// runQualityProbe computes complexity, documentation, maintainability, and
// duplication metrics across all source files in dir.
func (a *Analyzer) runQualityProbe(dir string) (models.QualityMetrics, error) {
	var (
		totalFunctions int
		documentedFns  int
		totalBranches  int
		totalLines     int
		commentLines   int
		lineCounts     = make(map[string]int)
		duplicateLines int
	)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		prevWasComment := false
		for scanner.Scan() {
			line := scanner.Text()
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			totalLines++

			isComment := commentPattern.MatchString(line)
			if isComment {
				commentLines++
			}

			if !isComment && functionPattern.MatchString(line) {
				totalFunctions++
				if prevWasComment {
					documentedFns++
				}
			}
			if !isComment {
				totalBranches += len(branchPattern.FindAllString(line, -1))
			}

			// Short lines (braces, keywords) duplicate naturally and are not
			// counted toward duplication.
			if !isComment && len(trimmed) > 10 {
				lineCounts[trimmed]++
				if lineCounts[trimmed] > 1 {
					duplicateLines++
				}
			}

			prevWasComment = isComment
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return models.QualityMetrics{}, fmt.Errorf("quality scan failed: %w", err)
	}

	metrics := models.QualityMetrics{
		Maintainability: maintainabilityFloor,
	}

	if totalFunctions > 0 {
		metrics.AvgComplexity = float64(totalBranches) / float64(totalFunctions)
		if metrics.AvgComplexity > 100 {
			metrics.AvgComplexity = 100
		}
		metrics.DocCoverage = float64(documentedFns) / float64(totalFunctions) * 100
	}

	if totalLines > 0 {
		commentRatio := float64(commentLines) / float64(totalLines)
		metrics.Maintainability = maintainabilityFloor + commentRatio*(100-maintainabilityFloor)
		if metrics.Maintainability > 100 {
			metrics.Maintainability = 100
		}

		metrics.Duplication = float64(duplicateLines) / float64(totalLines) * 100
		if metrics.Duplication > 100 {
			metrics.Duplication = 100
		}
	}

	return metrics, nil
}
