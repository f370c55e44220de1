package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPlanFileNotFound is returned when an explicit plan file path does
// not exist.
var ErrPlanFileNotFound = errors.New("plan file not found")

// ExtractPhasesFromFile reads a plan document from disk and extracts
// its phases.
func ExtractPhasesFromFile(path string) ([]Phase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrPlanFileNotFound)
		}
		return nil, fmt.Errorf("reading plan file %s: %w", path, err)
	}
	return ExtractPlanPhases(string(data)), nil
}

// FindPlanFile locates the plan document for a project. The legacy flat
// location (.drover/plans/<id>.md, or the slugified title) is checked
// first, then the per-project directory. Returns "" when no plan file
// exists; a missing plan is not an error, the caller degrades to the
// synthetic single phase.
func FindPlanFile(root, projectID, titleHint string) string {
	candidates := []string{
		filepath.Join(root, ".drover", "plans", projectID+".md"),
	}
	if slug := Slugify(titleHint); slug != "" && slug != projectID {
		candidates = append(candidates, filepath.Join(root, ".drover", "plans", slug+".md"))
	}
	candidates = append(candidates, filepath.Join(root, ".drover", "projects", projectID, "plan.md"))

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
