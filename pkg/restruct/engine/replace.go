package engine

import (
	"fmt"
	"os"
	"strings"
)

// Match is a single located occurrence of a pattern within a file.
type Match struct {
	// Line is the 1-based line number of the occurrence.
	Line int `json:"line"`

	// Column is the 1-based byte column of the occurrence within the line.
	Column int `json:"column"`

	// Context is the trimmed text of the containing line.
	Context string `json:"context"`
}

// FileReplacement describes the effect of a TextReplace on one file.
type FileReplacement struct {
	// File is the absolute path of the rewritten file.
	File string `json:"file"`

	// Count is the number of occurrences replaced (or, in dry-run, that
	// would be replaced). Zero is a success, not an error.
	Count int `json:"count"`

	// Matches locates each occurrence for preview and reporting.
	Matches []Match `json:"matches,omitempty"`
}

// findMatches locates every non-overlapping occurrence of the exact
// literal pattern in content, left to right. The pattern is never treated
// as a regular expression, so there are no accidental catastrophic
// matches; case matters.
func findMatches(content, pattern string) []Match {
	if pattern == "" {
		return nil
	}

	var matches []Match
	line := 1
	lineStart := 0
	offset := 0

	for {
		idx := strings.Index(content[offset:], pattern)
		if idx < 0 {
			break
		}
		abs := offset + idx

		// Advance line accounting up to the match.
		for i := offset; i < abs; i++ {
			if content[i] == '\n' {
				line++
				lineStart = i + 1
			}
		}

		lineEnd := strings.IndexByte(content[abs:], '\n')
		if lineEnd < 0 {
			lineEnd = len(content)
		} else {
			lineEnd += abs
		}

		matches = append(matches, Match{
			Line:    line,
			Column:  abs - lineStart + 1,
			Context: strings.TrimSpace(content[lineStart:lineEnd]),
		})

		// Non-overlapping: resume after the matched text. The pattern may
		// itself span lines, so line accounting covers the matched region
		// too.
		end := abs + len(pattern)
		for i := abs; i < end; i++ {
			if content[i] == '\n' {
				line++
				lineStart = i + 1
			}
		}
		offset = end
	}

	return matches
}

// replaceLiteral applies the exact substitution and reports what changed.
func replaceLiteral(content, pattern, replacement string) (string, []Match) {
	matches := findMatches(content, pattern)
	if len(matches) == 0 {
		return content, nil
	}
	return strings.ReplaceAll(content, pattern, replacement), matches
}

// rewriteFile writes content to path atomically, preserving the file's
// mode, via a temp file in the same directory.
func rewriteFile(path, content string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rewriting %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("rewriting %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rewriting %s: %w", path, err)
	}
	return nil
}
