// Package diff compares two revisions of a document line by line.
//
// The comparison is positional: line i of one text is compared with line i of the
// other. An insertion in the middle of a document therefore shows up as a run of
// modified lines followed by one added line, rather than as a single shifted block.
// Identical inputs always produce an empty Comparison.
package diff

import "strings"

// Modification records a line present in both texts with different content.
type Modification struct {
	Line int    `json:"line"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

// Comparison groups line changes from a base text to a target text.
type Comparison struct {
	Added    []string       `json:"added"`
	Removed  []string       `json:"removed"`
	Modified []Modification `json:"modified"`
}

// Empty reports whether the texts compared equal.
func (comparison Comparison) Empty() bool {
	return len(comparison.Added) == 0 && len(comparison.Removed) == 0 && len(comparison.Modified) == 0
}

// Lines compares base with target. Line numbers in Modified are 1-based.
func Lines(base, target string) Comparison {
	comparison := Comparison{
		Added:    []string{},
		Removed:  []string{},
		Modified: []Modification{},
	}
	if base == target {
		return comparison
	}

	baseLines := strings.Split(base, "\n")
	targetLines := strings.Split(target, "\n")
	longest := max(len(baseLines), len(targetLines))
	for index := 0; index < longest; index++ {
		switch {
		case index >= len(baseLines):
			comparison.Added = append(comparison.Added, targetLines[index])
		case index >= len(targetLines):
			comparison.Removed = append(comparison.Removed, baseLines[index])
		case baseLines[index] != targetLines[index]:
			comparison.Modified = append(comparison.Modified, Modification{
				Line: index + 1,
				Old:  baseLines[index],
				New:  targetLines[index],
			})
		}
	}
	return comparison
}
