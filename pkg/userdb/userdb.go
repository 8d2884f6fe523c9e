// Package userdb is the ordered key/value store UserDictionary is built
// on: forward seek with prefix matching, a reserved monotonic tick
// counter, and periodic snapshotting, as spec.md §4.5/§6 describe. It
// is backed by github.com/dgraph-io/badger/v4 (already one of the
// teacher's own dependencies, unused until this package), which gives
// byte-sorted keys and MVCC reads for free instead of hand-rolling a
// tree-structured store.
package userdb

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/Leon0824/rimeime/internal/logger"
)

var log = logger.New("userdb")

// tickKey is the reserved key holding the monotonic global tick,
// chosen (per spec.md §3) to byte-sort strictly before any phrase key
// ("\x01" is below any printable syllable/tab byte). legacyTickKey is
// the pre-rimeime format's empty-string key, read as a fallback only.
const (
	tickKey       = "\x01/tick"
	legacyTickKey = ""
	snapshotEvery = 50
)

// UserDb wraps a badger store, serializing writes with an internal
// lock (spec.md §5: "implementations must serialize writes"; badger's
// own MVCC already lets reads proceed concurrently).
type UserDb struct {
	db   *badger.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if absent) the badger store at path and
// ensures the tick key is initialized.
func Open(path string) (*UserDb, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("userdb: open %s: %w", path, err)
	}
	u := &UserDb{db: db, path: path}
	if _, ok := u.Get(tickKey); !ok {
		if _, ok := u.Get(legacyTickKey); !ok {
			if err := u.Set(tickKey, "0"); err != nil {
				db.Close()
				return nil, fmt.Errorf("userdb: initialize tick: %w", err)
			}
		}
	}
	return u, nil
}

// Close releases the underlying badger store.
func (u *UserDb) Close() error {
	return u.db.Close()
}

// Get reads key's value, reporting ok=false if absent.
func (u *UserDb) Get(key string) (string, bool) {
	var value string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = string(v)
			return nil
		})
	})
	if err != nil {
		return "", false
	}
	return value, true
}

// Set writes key=value, under the write lock.
func (u *UserDb) Set(key, value string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Tick returns the current global tick, falling back to the legacy
// empty-string key for forward compatibility (spec.md §4.5).
func (u *UserDb) Tick() uint64 {
	raw, ok := u.Get(tickKey)
	if !ok {
		raw, ok = u.Get(legacyTickKey)
		if !ok {
			return 0
		}
	}
	t, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.Warnf("userdb: unparsable tick %q, treating as 0", raw)
		return 0
	}
	return t
}

// IncrementTick bumps the global tick by one and, every snapshotEvery
// ticks, writes a snapshot alongside the store (spec.md §4.5: "every
// update bumps the global tick; every 50 ticks triggers a
// snapshot/backup").
func (u *UserDb) IncrementTick() (uint64, error) {
	next := u.Tick() + 1
	if err := u.Set(tickKey, strconv.FormatUint(next, 10)); err != nil {
		return 0, fmt.Errorf("userdb: bump tick: %w", err)
	}
	if next%snapshotEvery == 0 {
		if err := u.Snapshot(u.path + ".snapshot"); err != nil {
			log.Warnf("userdb: snapshot at tick %d failed: %v", next, err)
		}
	}
	return next, nil
}

// Snapshot writes every key/value pair to path as one "key\tvalue"
// line per row. Rows are emitted in byte-sorted key order rather than
// true commit-count order (spec.md §6 names commit-count order for the
// importer) since badger only exposes sorted iteration; a separate
// commit log would be needed to recover insertion order, which nothing
// downstream of this snapshot currently needs.
func (u *UserDb) Snapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("userdb: create snapshot %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	err = u.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			var value string
			if err := item.Value(func(v []byte) error { value = string(v); return nil }); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\n", key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("userdb: write snapshot %s: %w", path, err)
	}
	return w.Flush()
}

// Restore replays a Snapshot file, Set-ing each row back into the
// store. Malformed lines are logged and skipped (spec.md §7: user-db
// value parse errors never abort).
func (u *UserDb) Restore(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("userdb: open snapshot %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "\t")
		if !ok {
			log.Warnf("userdb: skipping malformed snapshot line %d", lineNo)
			continue
		}
		if err := u.Set(key, value); err != nil {
			return fmt.Errorf("userdb: restore line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// Accessor is a forward cursor over the store's byte-sorted keyspace,
// matching the Forward/Backward/Key operations UserDictionary.DfsLookup
// drives (spec.md §4.5). "Backward" re-seeks rather than truly
// iterating in reverse — the DFS only ever needs to rewind to the
// start of a prefix before trying the next sibling edge.
type Accessor struct {
	txn *badger.Txn
	it  *badger.Iterator
	key string
}

// NewAccessor opens a read-only iterator over the store.
func (u *UserDb) NewAccessor() *Accessor {
	txn := u.db.NewTransaction(false)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	a := &Accessor{txn: txn, it: it}
	it.Rewind()
	a.refresh()
	return a
}

// Close releases the accessor's transaction and iterator.
func (a *Accessor) Close() {
	a.it.Close()
	a.txn.Discard()
}

// Key returns the key currently under the cursor, or "" past the end.
func (a *Accessor) Key() string { return a.key }

// Value returns the value currently under the cursor.
func (a *Accessor) Value() (string, bool) {
	if !a.it.Valid() {
		return "", false
	}
	var value string
	if err := a.it.Item().Value(func(v []byte) error { value = string(v); return nil }); err != nil {
		return "", false
	}
	return value, true
}

// Forward seeks the cursor to the first key >= prefix.
func (a *Accessor) Forward(prefix string) {
	a.it.Seek([]byte(prefix))
	a.refresh()
}

// Backward re-seeks the cursor to prefix, for resuming sibling
// iteration after a recursive descent consumed keys ahead of it.
func (a *Accessor) Backward(prefix string) {
	a.it.Seek([]byte(prefix))
	a.refresh()
}

// Advance moves the cursor to the next key.
func (a *Accessor) Advance() {
	a.it.Next()
	a.refresh()
}

func (a *Accessor) refresh() {
	if a.it.Valid() {
		a.key = string(a.it.Item().Key())
	} else {
		a.key = ""
	}
}
