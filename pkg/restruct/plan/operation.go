// Package plan provides the typed operation model for the refactoring
// engine: a closed set of filesystem mutations and an ordered, validated
// Plan of them.
//
// The operation set is sealed. A structural change (Move, Rename) carries
// no content fields and a content change (TextReplace) carries no
// destination, so a combined rename-and-edit cannot be expressed as a
// single operation. Keeping the two apart preserves the version-control
// layer's ability to detect renames by content similarity.
package plan

import (
	"fmt"
	"strings"
)

// Kind identifies an operation variant.
type Kind string

// Operation kinds.
const (
	KindMove           Kind = "move"
	KindRename         Kind = "rename"
	KindTextReplace    Kind = "text-replace"
	KindDeleteEmptyDir Kind = "delete-empty-dir"
)

// Operation is a single declarative filesystem mutation.
// Implementations are the four concrete types in this package; the
// unexported method seals the set so the engine can type-switch
// exhaustively.
type Operation interface {
	// Kind returns the operation variant.
	Kind() Kind

	// String returns a one-line human-readable description.
	String() string

	// sealed marks the closed variant set.
	sealed()
}

// Move relocates a file or directory to a new path.
type Move struct {
	// Source is the existing file or directory.
	Source string

	// Destination is the target path, which must be free.
	Destination string
}

// Kind returns KindMove.
func (m Move) Kind() Kind { return KindMove }

// String returns "move <source> -> <destination>".
func (m Move) String() string {
	return fmt.Sprintf("move %s -> %s", m.Source, m.Destination)
}

func (m Move) sealed() {}

// Rename changes a single entry's path. It is semantically identical to
// Move but kept as its own variant so plans read as intended: a rename is
// a deliberate identity change, not a relocation.
type Rename struct {
	// Source is the existing entry.
	Source string

	// Destination is the new path, which must be free.
	Destination string
}

// Kind returns KindRename.
func (r Rename) Kind() Kind { return KindRename }

// String returns "rename <source> -> <destination>".
func (r Rename) String() string {
	return fmt.Sprintf("rename %s -> %s", r.Source, r.Destination)
}

func (r Rename) sealed() {}

// TextReplace substitutes an exact literal pattern in a set of files.
// The pattern is never interpreted as a regular expression; substitution
// is case-sensitive, non-overlapping, left to right. Zero matches in a
// file is a success, not an error.
//
// Link-style variants of the same logical reference (with or without a
// trailing separator, wrapped in inline-code delimiters) must each be
// enumerated as their own TextReplace; the replacer performs no variant
// expansion of its own.
type TextReplace struct {
	// Files are the files to rewrite.
	Files []string

	// Pattern is the exact literal text to find.
	Pattern string

	// Replacement is the literal text substituted for each occurrence.
	Replacement string
}

// Kind returns KindTextReplace.
func (t TextReplace) Kind() Kind { return KindTextReplace }

// String returns a description naming the pattern and file count.
func (t TextReplace) String() string {
	return fmt.Sprintf("replace %q -> %q in %d file(s)", t.Pattern, t.Replacement, len(t.Files))
}

func (t TextReplace) sealed() {}

// DeleteEmptyDir removes a directory only if it contains zero entries,
// dotfiles included, at execution time. There is no force or recursive
// variant.
type DeleteEmptyDir struct {
	// Target is the directory to remove.
	Target string
}

// Kind returns KindDeleteEmptyDir.
func (d DeleteEmptyDir) Kind() Kind { return KindDeleteEmptyDir }

// String returns "delete empty dir <target>".
func (d DeleteEmptyDir) String() string {
	return fmt.Sprintf("delete empty dir %s", d.Target)
}

func (d DeleteEmptyDir) sealed() {}

// KindOf parses a kind string as used in plan files.
func KindOf(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMove:
		return KindMove, nil
	case KindRename:
		return KindRename, nil
	case KindTextReplace:
		return KindTextReplace, nil
	case KindDeleteEmptyDir:
		return KindDeleteEmptyDir, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}
