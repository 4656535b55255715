package ux

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// FileDiff is one file's unified diff plus its line-change counters.
type FileDiff struct {
	Path        string `json:"path"`
	UnifiedDiff string `json:"unified_diff"`
	Additions   int    `json:"additions"`
	Deletions   int    `json:"deletions"`
}

// PreviewResult is the aggregate output of DiffEngine.GeneratePreview.
type PreviewResult struct {
	Files   []FileDiff `json:"files"`
	Summary string     `json:"summary"`
}

// DiffEngine computes unified diffs between current and proposed file
// contents for the CONFIRMING-state preview.
type DiffEngine struct{}

// NewDiffEngine constructs a stateless DiffEngine.
func NewDiffEngine() *DiffEngine {
	return &DiffEngine{}
}

// FileChange is one proposed edit: replace the content of Path (empty
// Current means a new file; empty Proposed means a deletion).
type FileChange struct {
	Path      string
	Current   string
	Proposed  string
}

// GeneratePreview builds a per-file unified diff and an aggregate
// "N files changed (+A, -D)" summary line.
func (e *DiffEngine) GeneratePreview(changes []FileChange) (*PreviewResult, error) {
	result := &PreviewResult{Files: make([]FileDiff, 0, len(changes))}
	var totalAdd, totalDel int

	for _, c := range changes {
		ud := difflib.UnifiedDiff{
			A:        difflib.SplitLines(c.Current),
			B:        difflib.SplitLines(c.Proposed),
			FromFile: c.Path,
			ToFile:   c.Path,
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return nil, fmt.Errorf("ux: diff %s: %w", c.Path, err)
		}

		add, del := countDiffLines(text)
		result.Files = append(result.Files, FileDiff{
			Path:        c.Path,
			UnifiedDiff: text,
			Additions:   add,
			Deletions:   del,
		})
		totalAdd += add
		totalDel += del
	}

	result.Summary = fmt.Sprintf("%d files changed (+%d, -%d)", len(changes), totalAdd, totalDel)
	return result, nil
}

// countDiffLines counts added/removed content lines in a unified diff,
// skipping the "--- "/"+++ " file headers.
func countDiffLines(diff string) (additions, deletions int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}
