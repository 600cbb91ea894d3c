package validate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/restruct/pkg/restruct/scancache"
)

// DefaultExcludes are glob patterns skipped by scanning checks. Matched
// against root-relative paths with doublestar semantics.
var DefaultExcludes = []string{
	".git",
	".git/**",
	"node_modules",
	"node_modules/**",
	"vendor",
	"vendor/**",
}

// classifyLimit is how many leading bytes are inspected to decide whether
// a file is text. A NUL byte within the window classifies it as binary.
const classifyLimit = 8000

// linkPattern matches markdown inline links and captures the target.
var linkPattern = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// fileEntry is one scanned file.
type fileEntry struct {
	rel    string
	abs    string
	isText bool
	links  []string
}

// treeScan is the shared scan result consumed by reference and link
// checks. Built at most once per suite run.
type treeScan struct {
	files []fileEntry
}

// textFiles returns the text files in scan order.
func (t *treeScan) textFiles() []fileEntry {
	var out []fileEntry
	for _, f := range t.files {
		if f.isText {
			out = append(out, f)
		}
	}
	return out
}

// scanTree walks root with fastwalk, classifies each file, and extracts
// markdown links. Unreadable entries are skipped; scanning is best effort
// in the same way the checks consuming it are advisory.
func scanTree(root string, excludes []string, cache *scancache.Cache) (*treeScan, error) {
	conf := fastwalk.Config{
		Follow: false, // Don't follow symlinks.
	}

	var (
		mu      sync.Mutex
		files   []fileEntry
		updates = make(map[string]*scancache.Entry)
	)

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if excluded(rel, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil //nolint:nilerr
		}

		entry, fresh := inspect(root, rel, path, info.Size(), info.ModTime().UnixNano(), cache)
		if entry == nil {
			return nil
		}

		mu.Lock()
		files = append(files, fileEntry{
			rel:    rel,
			abs:    path,
			isText: entry.IsText,
			links:  entry.Links,
		})
		if fresh {
			updates[rel] = entry
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cache != nil && len(updates) > 0 {
		// Cache write failures only cost a re-read next run.
		_ = cache.RecordBatch(root, updates)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return &treeScan{files: files}, nil
}

// inspect returns the scan entry for one file, reusing a valid cache
// entry when available. fresh reports whether the entry should be written
// back to the cache.
func inspect(root, rel, path string, size, mtime int64, cache *scancache.Cache) (*scancache.Entry, bool) {
	if cache != nil {
		if entry, ok := cache.Lookup(root, rel, size, mtime); ok {
			return entry, false
		}
	}

	isText, content, err := classify(path)
	if err != nil {
		return nil, false
	}

	entry := &scancache.Entry{
		Size:   size,
		Mtime:  mtime,
		IsText: isText,
	}
	if isText && strings.EqualFold(filepath.Ext(rel), ".md") {
		entry.Links = extractLinks(content)
	}
	return entry, true
}

// classify reads path and reports whether it looks like text. The full
// content is returned so link extraction does not re-read the file.
func classify(path string) (bool, []byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, nil, err
	}

	window := content
	if len(window) > classifyLimit {
		window = window[:classifyLimit]
	}
	return !bytes.ContainsRune(window, 0), content, nil
}

// extractLinks returns the relative link targets in markdown content.
// External links, anchors, and mailto targets are not relative and are
// ignored.
func extractLinks(content []byte) []string {
	var links []string
	for _, m := range linkPattern.FindAllSubmatch(content, -1) {
		target := string(m[1])
		if target == "" ||
			strings.Contains(target, "://") ||
			strings.HasPrefix(target, "#") ||
			strings.HasPrefix(target, "mailto:") {
			continue
		}
		// Drop fragment and query before resolution.
		if i := strings.IndexAny(target, "#?"); i >= 0 {
			target = target[:i]
		}
		if target == "" {
			continue
		}
		links = append(links, target)
	}
	return links
}

// excluded reports whether rel matches any exclude glob.
func excluded(rel string, excludes []string) bool {
	rel = filepath.ToSlash(rel)
	for _, glob := range excludes {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// findReferences lists occurrences of the literal pattern in content as
// "line: trimmed context" strings.
func findReferences(content, pattern string) []string {
	if pattern == "" {
		return nil
	}

	var found []string
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, pattern) {
			found = append(found, fmt.Sprintf("line %d: %s", i+1, strings.TrimSpace(line)))
		}
	}
	return found
}
