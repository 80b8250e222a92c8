package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// Store is the full keyspace: an ordered array of logical databases
// (spec.md §3). It carries no locking of its own — only the engine
// goroutine that owns a Store ever touches it.
type Store struct {
	databases []*Database
	runID     string
}

// NewStore builds a Store with the given number of empty databases
// and a freshly generated 32-hex-character run id.
func NewStore(numDatabases int) *Store {
	if numDatabases <= 0 {
		numDatabases = 16
	}
	dbs := make([]*Database, numDatabases)
	for i := range dbs {
		dbs[i] = NewDatabase(i)
	}
	return &Store{
		databases: dbs,
		runID:     generateRunID(),
	}
}

func generateRunID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// RunID returns this store's run id, used in replication handshakes
// and Sentinel bookkeeping to distinguish instance restarts.
func (s *Store) RunID() string { return s.runID }

// NumDatabases returns the database count.
func (s *Store) NumDatabases() int { return len(s.databases) }

// DB returns the database at index, or nil if out of range.
func (s *Store) DB(index int) *Database {
	if index < 0 || index >= len(s.databases) {
		return nil
	}
	return s.databases[index]
}

// FlushAll empties every database (FLUSHALL, spec.md §4.2).
func (s *Store) FlushAll() {
	for _, db := range s.databases {
		db.Flush()
	}
}

// Move transfers key from src to dst database. Returns false if the
// key is absent in src, already present in dst, or the indices are
// invalid.
func (s *Store) Move(srcIdx, dstIdx int, key string) (bool, error) {
	src, dst := s.DB(srcIdx), s.DB(dstIdx)
	if src == nil || dst == nil {
		return false, fmt.Errorf("storage: invalid database index")
	}
	if srcIdx == dstIdx {
		return false, nil
	}
	v, ok := src.Lookup(key)
	if !ok {
		return false, nil
	}
	if dst.Exists(key) {
		return false, nil
	}
	deadline, hasExp := src.expires[key]
	dst.data[key] = v
	dst.touch(key)
	if hasExp {
		dst.expires[key] = deadline
	}
	src.rawDelete(key)
	return true, nil
}

// Snapshot captures a copy-on-write view of the whole store for
// SAVE/BGSAVE and BGREWRITEAOF. Every Value it captures is marked
// shared: the engine goroutine keeps running after Snapshot returns,
// and the first write that would mutate a shared container in place
// instead clones it via Database.cloneForWrite and installs the clone,
// leaving the snapshot's copy untouched for the persistence goroutine
// to serialize at its own pace (spec.md §9 — "a naive thread sharing
// the live store will observe torn state").
func (s *Store) Snapshot() *Snapshot {
	dbs := make([]*DatabaseSnapshot, len(s.databases))
	for i, db := range s.databases {
		dbs[i] = db.snapshot()
	}
	return &Snapshot{RunID: s.runID, Databases: dbs}
}

// Snapshot is a point-in-time, read-only view of a Store suitable for
// streaming to an RDB-style writer or an AOF rewrite without blocking
// the live keyspace.
type Snapshot struct {
	RunID     string
	Databases []*DatabaseSnapshot
}

// DatabaseSnapshot pairs a database index with the key/value/expiry
// triples live in it at snapshot time.
type DatabaseSnapshot struct {
	Index   int
	Entries []SnapshotEntry
}

// SnapshotEntry is one key's value and optional absolute expiry
// deadline (milliseconds), as captured by Store.Snapshot.
type SnapshotEntry struct {
	Key        string
	Value      *Value
	ExpireAtMS int64 // 0 means no expiry
}

func (d *Database) snapshot() *DatabaseSnapshot {
	entries := make([]SnapshotEntry, 0, len(d.data))
	for k, v := range d.data {
		if d.ExpireIfNeeded(k) {
			continue
		}
		v.shared = true
		entries = append(entries, SnapshotEntry{
			Key:        k,
			Value:      v,
			ExpireAtMS: d.expires[k],
		})
	}
	return &DatabaseSnapshot{Index: d.index, Entries: entries}
}

// LoadSnapshot replaces the store's contents with snap, used when an
// RDB-style file finishes loading at startup.
func (s *Store) LoadSnapshot(snap *Snapshot) {
	for _, dbSnap := range snap.Databases {
		if dbSnap.Index < 0 || dbSnap.Index >= len(s.databases) {
			continue
		}
		db := NewDatabase(dbSnap.Index)
		for _, e := range dbSnap.Entries {
			db.data[e.Key] = e.Value
			if e.ExpireAtMS > 0 {
				db.expires[e.Key] = e.ExpireAtMS
			}
		}
		s.databases[dbSnap.Index] = db
	}
	if snap.RunID != "" {
		s.runID = snap.RunID
	}
}

// DBSize returns the number of live keys across every database.
func (s *Store) DBSize() int {
	total := 0
	for _, db := range s.databases {
		total += db.Size()
	}
	return total
}
