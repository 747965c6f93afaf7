// Package validation provides input validation for module submissions. Each
// validator checks a specific aspect of the package: manifest structure and
// field types, archive safety (path traversal, size limits), semantic version
// format, and detached signature verification. Validators run before any data
// is persisted so invalid submissions are rejected early without consuming
// storage.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// ManifestFileName is the metadata file every submitted package must carry at
// its root.
const ManifestFileName = "manifest.json"

// Manifest is the declared metadata of a submitted package, parsed from
// manifest.json before normalization into a Module record.
type Manifest struct {
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	Description   string               `json:"description"`
	Author        string               `json:"author"`
	Category      string               `json:"category"`
	Tags          []string             `json:"tags"`
	Compatibility models.Compatibility `json:"compatibility"`
	Dependencies  []models.Dependency  `json:"dependencies"`
	Changelog     string               `json:"changelog"`
}

// ManifestResult carries the outcome of manifest validation. Errors block
// registration; warnings do not.
type ManifestResult struct {
	Manifest *Manifest
	Errors   []string
	Warnings []string
}

// Valid reports whether the manifest passed validation.
func (r *ManifestResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidateManifestDir locates and validates the manifest of a staged package
// directory. A missing or unreadable manifest is a validation error, not an
// I/O failure, because the caller treats every outcome as a client-facing
// verdict.
func ValidateManifestDir(dir string) *ManifestResult {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return &ManifestResult{Errors: []string{fmt.Sprintf("package does not contain a readable %s", ManifestFileName)}}
	}
	return ValidateManifest(data)
}

// ValidateManifest parses and validates raw manifest bytes. All problems are
// collected into one ordered list rather than failing on the first, so the
// submitter can fix everything in one pass.
func ValidateManifest(data []byte) *ManifestResult {
	result := &ManifestResult{}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("manifest is not valid JSON: %v", err))
		return result
	}
	result.Manifest = &m

	if strings.TrimSpace(m.Name) == "" {
		result.Errors = append(result.Errors, "required field 'name' is missing or empty")
	}
	if strings.TrimSpace(m.Version) == "" {
		result.Errors = append(result.Errors, "required field 'version' is missing or empty")
	} else if err := ValidateSemver(m.Version); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("field 'version' is not a valid semantic version: %s", m.Version))
	}
	if strings.TrimSpace(m.Author) == "" {
		result.Errors = append(result.Errors, "required field 'author' is missing or empty")
	}
	if strings.TrimSpace(m.Category) == "" {
		result.Errors = append(result.Errors, "required field 'category' is missing or empty")
	} else if !models.ValidCategories[models.ModuleCategory(m.Category)] {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown category %q (valid: %s)", m.Category, joinCategories()))
	}

	for i, dep := range m.Dependencies {
		if strings.TrimSpace(dep.Name) == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency %d is missing a name", i))
		}
		if strings.TrimSpace(dep.Constraint) == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency %q is missing a version constraint", dep.Name))
		}
	}

	for _, industry := range m.Compatibility.Industries {
		if !models.ValidIndustries[industry] {
			result.Errors = append(result.Errors, fmt.Sprintf("unknown industry %q in compatibility descriptor", industry))
		}
	}
	if m.Compatibility.MinVersion != "" {
		if err := ValidateSemver(m.Compatibility.MinVersion); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("compatibility min_version is not a valid semantic version: %s", m.Compatibility.MinVersion))
		}
	}
	if m.Compatibility.MaxVersion != "" {
		if err := ValidateSemver(m.Compatibility.MaxVersion); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("compatibility max_version is not a valid semantic version: %s", m.Compatibility.MaxVersion))
		}
	}

	if strings.TrimSpace(m.Description) == "" {
		result.Warnings = append(result.Warnings, "field 'description' is empty; modules without descriptions rank poorly in catalog search")
	}
	if len(m.Tags) == 0 {
		result.Warnings = append(result.Warnings, "no tags declared; tags improve catalog discoverability")
	}

	return result
}

// Slug derives the stable module identity from author and name. Identity is
// content-independent so new versions of the same module map to the same slug.
func (m *Manifest) Slug() string {
	return slugify(m.Author) + "-" + slugify(m.Name)
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func joinCategories() string {
	names := make([]string, 0, len(models.ValidCategories))
	for c := range models.ValidCategories {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
