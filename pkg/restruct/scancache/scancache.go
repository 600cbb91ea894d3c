// Package scancache persists per-file scan results between validation
// runs. Repeated verifies over a large tree mostly see unchanged files;
// caching each file's text classification and extracted links keyed by
// size and mtime skips re-reading them.
package scancache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a cache entry doesn't exist.
var ErrNotFound = errors.New("scan cache entry not found")

// keySeparator separates root from relative path in cache keys.
const keySeparator = '\x00'

// Entry is the cached scan result for one file. It is valid only while
// the file's size and mtime both still match.
type Entry struct {
	// Size is the file size in bytes at scan time.
	Size int64

	// Mtime is the modification time as UnixNano at scan time.
	Mtime int64

	// IsText reports whether the file was classified as text.
	IsText bool

	// Links are the relative link targets extracted from the file.
	// Only populated for markdown files; nil otherwise.
	Links []string
}

// encode serializes the entry using gob.
func (e *Entry) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes bytes into the entry using gob.
func (e *Entry) decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// makeKey creates a cache key from root and relative path.
// Format: <root>\x00<relative_path>
func makeKey(root, relPath string) []byte {
	return []byte(root + string(keySeparator) + relPath)
}

// makeKeyPrefix returns the prefix for all keys under a root.
func makeKeyPrefix(root string) []byte {
	return []byte(root + string(keySeparator))
}

// Cache is a badger-backed scan result cache.
type Cache struct {
	db *badger.DB
}

// DefaultPath returns the default cache location,
// $XDG_CACHE_HOME/restruct/scancache.
func DefaultPath() string {
	return filepath.Join(xdg.CacheHome, "restruct", "scancache")
}

// Open opens or creates a cache at the given path.
func Open(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached entry for root/relPath if it is still valid
// for a file with the given size and mtime. A stale or missing entry
// returns ok=false.
func (c *Cache) Lookup(root, relPath string, size, mtime int64) (*Entry, bool) {
	entry, err := c.get(root, relPath)
	if err != nil {
		return nil, false
	}
	if entry.Size != size || entry.Mtime != mtime {
		return nil, false
	}
	return entry, true
}

// get retrieves an entry regardless of validity.
func (c *Cache) get(root, relPath string) (*Entry, error) {
	key := makeKey(root, relPath)
	var entry Entry

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Record stores a scan result.
func (c *Cache) Record(root, relPath string, entry *Entry) error {
	value, err := entry.encode()
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(root, relPath), value)
	})
}

// RecordBatch stores multiple scan results in one write batch.
func (c *Cache) RecordBatch(root string, entries map[string]*Entry) error {
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for relPath, entry := range entries {
		value, err := entry.encode()
		if err != nil {
			return err
		}
		if err := wb.Set(makeKey(root, relPath), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Clear removes all cached entries for a root.
func (c *Cache) Clear(root string) error {
	prefix := makeKeyPrefix(root)

	return c.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}
