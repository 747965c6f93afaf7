package analysis

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// sourceExtensions lists file types the static scan covers. Module packages
// are polyglot; anything else (assets, archives) is skipped.
var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".py": true,
	".php": true, ".rb": true, ".sh": true, ".sql": true,
}

// scriptExtensions may legitimately carry an executable bit.
var scriptExtensions = map[string]bool{
	".sh": true, ".bash": true, "": true,
}

var (
	dynamicExecPattern = regexp.MustCompile(`(?i)\beval\s*\(|\bnew\s+Function\s*\(|\bexec\s*\(\s*compile\b`)
	shellPattern       = regexp.MustCompile(`(?i)\bshell_exec\s*\(|\bsystem\s*\(|\bpassthru\s*\(|\bproc_open\s*\(|\bpopen\s*\(|os\.system\s*\(|shell\s*=\s*True`)
	sqlCallPattern     = regexp.MustCompile(`(?i)\b(query|execute|exec)\s*\(`)
	sqlInterpPattern   = regexp.MustCompile(`["'][^"']*["']\s*[+.]\s*[\w$]|\{\$|\$\{|%s.*%|f["']`)
	credentialPattern  = regexp.MustCompile(`(?i)(password|passwd|secret|api_key|apikey|access_token|auth_token)\s*[:=]\s*["'][^"']{4,}["']`)
)

// checkCategories groups finding types into the five scan checks;
// failed_checks counts checks with at least one finding.
var checkCategories = map[string]string{
	"dynamic_code_execution": "dangerous_constructs",
	"shell_invocation":       "dangerous_constructs",
	"sql_injection":          "sql_injection",
	"hardcoded_credential":   "hardcoded_credentials",
	"vulnerable_dependency":  "vulnerable_dependencies",
	"executable_file":        "executable_files",
}

const securityCheckCount = 5

// runSecurityProbe scans dir for denylisted constructs and known-vulnerable
// dependencies and derives the 0-100 security score.
func (a *Analyzer) runSecurityProbe(dir string) ([]models.SecurityFinding, float64, error) {
	var findings []models.SecurityFinding

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

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ext := strings.ToLower(filepath.Ext(path))

		if info, err := d.Info(); err == nil {
			if info.Mode()&0111 != 0 && !scriptExtensions[ext] {
				findings = append(findings, models.SecurityFinding{
					Type:     "executable_file",
					Severity: models.SeverityLow,
					Location: rel,
					Detail:   "executable permission on a non-script file",
				})
			}
		}

		if !sourceExtensions[ext] {
			return nil
		}

		fileFindings, err := scanSourceFile(path, rel)
		if err != nil {
			return err
		}
		findings = append(findings, fileFindings...)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("security scan failed: %w", err)
	}

	depFindings, err := a.scanDependencies(dir)
	if err != nil {
		return nil, 0, err
	}
	findings = append(findings, depFindings...)

	return findings, a.securityScore(findings), nil
}

func scanSourceFile(path, rel string) ([]models.SecurityFinding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []models.SecurityFinding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		loc := fmt.Sprintf("%s:%d", rel, lineNo)

		if dynamicExecPattern.MatchString(line) {
			findings = append(findings, models.SecurityFinding{
				Type:     "dynamic_code_execution",
				Severity: models.SeverityHigh,
				Location: loc,
			})
		}
		if shellPattern.MatchString(line) {
			findings = append(findings, models.SecurityFinding{
				Type:     "shell_invocation",
				Severity: models.SeverityHigh,
				Location: loc,
			})
		}
		if sqlCallPattern.MatchString(line) && sqlInterpPattern.MatchString(line) {
			findings = append(findings, models.SecurityFinding{
				Type:     "sql_injection",
				Severity: models.SeverityHigh,
				Location: loc,
				Detail:   "query built from interpolated strings",
			})
		}
		if credentialPattern.MatchString(line) {
			findings = append(findings, models.SecurityFinding{
				Type:     "hardcoded_credential",
				Severity: models.SeverityMedium,
				Location: loc,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return findings, nil
}

// scanDependencies flags manifest dependencies on the configured
// known-vulnerable list.
func (a *Analyzer) scanDependencies(dir string) ([]models.SecurityFinding, error) {
	if len(a.cfg.Analysis.VulnerableDependencies) == 0 {
		return nil, nil
	}

	vulnerable := make(map[string]bool, len(a.cfg.Analysis.VulnerableDependencies))
	for _, name := range a.cfg.Analysis.VulnerableDependencies {
		vulnerable[strings.ToLower(name)] = true
	}

	var findings []models.SecurityFinding
	for _, manifest := range []string{"manifest.json", "package.json"} {
		data, err := os.ReadFile(filepath.Join(dir, manifest))
		if err != nil {
			continue
		}

		for _, name := range declaredDependencies(manifest, data) {
			if vulnerable[strings.ToLower(name)] {
				findings = append(findings, models.SecurityFinding{
					Type:     "vulnerable_dependency",
					Severity: models.SeverityHigh,
					Location: manifest,
					Detail:   name,
				})
			}
		}
	}
	return findings, nil
}

// declaredDependencies extracts dependency names from a manifest file.
// manifest.json declares {name, constraint} objects; package.json uses the
// npm name->range map.
func declaredDependencies(manifest string, data []byte) []string {
	if manifest == "manifest.json" {
		var doc struct {
			Dependencies []models.Dependency `json:"dependencies"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil
		}
		names := make([]string, 0, len(doc.Dependencies))
		for _, dep := range doc.Dependencies {
			names = append(names, dep.Name)
		}
		return names
	}

	var doc struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Dependencies))
	for name := range doc.Dependencies {
		names = append(names, name)
	}
	return names
}

// securityScore subtracts per-finding severity weights plus a proportional
// penalty for the number of distinct check categories that produced findings,
// floored at 0.
func (a *Analyzer) securityScore(findings []models.SecurityFinding) float64 {
	sc := a.cfg.Scoring
	score := 100.0

	failedChecks := make(map[string]bool)
	for _, f := range findings {
		failedChecks[checkCategories[f.Type]] = true
		switch f.Severity {
		case models.SeverityHigh:
			score -= sc.SeverityWeightHigh
		case models.SeverityMedium:
			score -= sc.SeverityWeightMedium
		case models.SeverityLow:
			score -= sc.SeverityWeightLow
		}
	}

	score -= math.Round(float64(len(failedChecks)) / securityCheckCount * sc.FailedCheckPenalty)

	if score < 0 {
		return 0
	}
	return score
}
