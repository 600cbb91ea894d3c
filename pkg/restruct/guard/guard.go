// Package guard watches a tree for writes the engine did not make while a
// plan is executing. The engine assumes single-writer access but cannot
// enforce it; the guard narrows the check-then-use gap by surfacing
// concurrent external mutation as warnings instead of letting it pass
// silently. Detection is best effort and advisory only.
package guard

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a filesystem change not attributable to the engine.
type Event struct {
	// Path is the affected path.
	Path string

	// Op describes the change (create, write, remove, rename, chmod).
	Op string

	// Time is when the event was observed.
	Time time.Time
}

// Guard watches a root directory during plan execution.
type Guard struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	allowed []string
	foreign []Event
	closed  bool

	done chan struct{}
}

// Start begins watching root and all its subdirectories. Symlinked
// directories are skipped to avoid loops. Directories created after Start
// are not watched; the guard is advisory, not a consistency mechanism.
func Start(root string) (*Guard, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	g := &Guard{
		watcher: fsw,
		done:    make(chan struct{}),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go g.loop()
	return g, nil
}

// Allow marks paths the engine is about to touch. Events on or under an
// allowed path, or on its temp-file sibling, are attributed to the engine
// and ignored.
func (g *Guard) Allow(paths ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		g.allowed = append(g.allowed, filepath.Clean(p))
	}
}

// Stop shuts the guard down and returns the foreign events observed.
func (g *Guard) Stop() []Event {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		<-g.done
		return g.foreignLocked()
	}
	g.closed = true
	g.mu.Unlock()

	_ = g.watcher.Close()
	<-g.done

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.foreignLocked()
}

// foreignLocked returns a copy of the foreign events. Caller holds mu.
func (g *Guard) foreignLocked() []Event {
	out := make([]Event, len(g.foreign))
	copy(out, g.foreign)
	return out
}

// loop drains watcher events until the watcher closes.
func (g *Guard) loop() {
	defer close(g.done)
	for {
		select {
		case ev, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			g.record(ev)
		case _, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are dropped; the guard stays best effort.
		}
	}
}

// record files an event unless it is attributable to the engine.
func (g *Guard) record(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, allowed := range g.allowed {
		if path == allowed || path == allowed+".tmp" ||
			strings.HasPrefix(path, allowed+string(os.PathSeparator)) {
			return
		}
	}

	g.foreign = append(g.foreign, Event{
		Path: path,
		Op:   strings.ToLower(ev.Op.String()),
		Time: time.Now(),
	})
}
