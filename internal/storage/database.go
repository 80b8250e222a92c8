package storage

import (
	"math/rand"
	"time"
)

// connID identifies a client connection. Connections are referenced by
// this stable numeric handle rather than by pointer so that a
// disconnecting client can be scrubbed from watch/blocking bookkeeping
// without dangling references (spec.md §9).
type connID = int64

// BlockedWaiter is one connection parked on a key inside a database's
// blocking map (spec.md §4.4). The engine package owns the response
// channel type; storage only needs to track FIFO order and identity,
// so the payload is an opaque interface{} supplied by the engine.
type BlockedWaiter struct {
	ConnID  connID
	Payload interface{}
}

// Database is one logical keyspace: the key→Value map, its expiry
// index, the set of connections watching each key (C3), and the
// FIFO wait-queues backing blocking list pops (C4). It is mutated
// exclusively by the single engine goroutine, so no internal locking
// is required (spec.md §5).
type Database struct {
	index   int
	data    map[string]*Value
	expires map[string]int64 // key -> absolute ms deadline; present only if data holds the key
	watched map[string]map[connID]struct{}
	blocked map[string][]*BlockedWaiter
	access  map[string]int64 // last-access unix-nano, for LRU eviction sampling (C8)
}

// NewDatabase creates an empty logical database.
func NewDatabase(index int) *Database {
	return &Database{
		index:   index,
		data:    make(map[string]*Value),
		expires: make(map[string]int64),
		watched: make(map[string]map[connID]struct{}),
		blocked: make(map[string][]*BlockedWaiter),
		access:  make(map[string]int64),
	}
}

func nowMS() int64 { return time.Now().UnixMilli() }

// ExpireIfNeeded deletes key if its deadline has passed. It returns
// true if the key was deleted by this call, which the caller (the
// engine's dispatch loop) uses to append a synthetic DEL to write
// propagation before the real command runs (spec.md §3, invariant 1).
func (d *Database) ExpireIfNeeded(key string) bool {
	deadline, ok := d.expires[key]
	if !ok {
		return false
	}
	if nowMS() < deadline {
		return false
	}
	d.rawDelete(key)
	return true
}

func (d *Database) rawDelete(key string) {
	delete(d.data, key)
	delete(d.expires, key)
	delete(d.access, key)
}

func (d *Database) touch(key string) {
	d.access[key] = time.Now().UnixNano()
}

// Lookup returns the live value for key, applying lazy expiry first.
func (d *Database) Lookup(key string) (*Value, bool) {
	d.ExpireIfNeeded(key)
	v, ok := d.data[key]
	if ok {
		d.touch(key)
	}
	return v, ok
}

// Peek is like Lookup but does not refresh the LRU access stamp, so a
// read through it does not influence eviction ordering.
func (d *Database) Peek(key string) (*Value, bool) {
	d.ExpireIfNeeded(key)
	v, ok := d.data[key]
	return v, ok
}

// setRaw installs v at key, clearing any expiry unless the caller
// re-applies one via SetExpireAt. Empty containers are never stored;
// callers of the typed ops (list/hash/set/zset) route through
// storeOrDelete instead.
func (d *Database) setRaw(key string, v *Value) {
	d.data[key] = v
	delete(d.expires, key)
	d.touch(key)
}

// storeOrDelete installs v at key unless it represents an empty
// container, in which case key (and its expiry) is removed — the
// "empty container is removed" invariant (spec.md §3, invariant 2).
func (d *Database) storeOrDelete(key string, v *Value, empty bool) {
	if empty {
		d.rawDelete(key)
		return
	}
	d.data[key] = v
	d.touch(key)
}

// cloneForWrite returns a Value safe for in-place mutation, cloning
// its container first if v was captured by a still-live
// Store.Snapshot. The clone replaces the live entry at key so later
// writers see the already-unshared copy (spec.md §9's copy-on-write
// requirement for background persistence). Every typed get*(key,
// true|false) accessor routes through this before returning a
// container to a write path.
func (d *Database) cloneForWrite(key string, v *Value) *Value {
	if !v.shared {
		return v
	}
	var clone *Value
	switch data := v.Data.(type) {
	case *List:
		clone = &Value{Type: ListType, Data: data.Clone()}
	case *Set:
		clone = &Value{Type: SetType, Data: data.Clone()}
	case *Hash:
		clone = &Value{Type: HashType, Data: data.Clone()}
	case *ZSet:
		clone = &Value{Type: ZSetType, Data: data.Clone()}
	default:
		return v
	}
	d.data[key] = clone
	return clone
}

// Delete removes key unconditionally. Returns true if it existed.
func (d *Database) Delete(key string) bool {
	if d.ExpireIfNeeded(key) {
		return false
	}
	_, exists := d.data[key]
	if exists {
		d.rawDelete(key)
	}
	return exists
}

// Exists reports whether key is present and unexpired.
func (d *Database) Exists(key string) bool {
	d.ExpireIfNeeded(key)
	_, ok := d.data[key]
	return ok
}

// TypeOf returns the ValueType of key, or false if absent.
func (d *Database) TypeOf(key string) (ValueType, bool) {
	v, ok := d.Lookup(key)
	if !ok {
		return 0, false
	}
	return v.Type, true
}

// SetExpireAt installs an absolute millisecond deadline on key.
// Returns false if the key does not exist.
func (d *Database) SetExpireAt(key string, deadlineMS int64) bool {
	if d.ExpireIfNeeded(key) {
		return false
	}
	if _, ok := d.data[key]; !ok {
		return false
	}
	d.expires[key] = deadlineMS
	return true
}

// Persist removes any expiry on key. Returns true if an expiry was removed.
func (d *Database) Persist(key string) bool {
	if d.ExpireIfNeeded(key) {
		return false
	}
	if _, ok := d.expires[key]; !ok {
		return false
	}
	delete(d.expires, key)
	return true
}

// TTLMillis returns the remaining lifetime of key in milliseconds, -1
// if it exists with no expiry, or -2 if it does not exist.
func (d *Database) TTLMillis(key string) int64 {
	if d.ExpireIfNeeded(key) {
		return -2
	}
	if _, ok := d.data[key]; !ok {
		return -2
	}
	deadline, ok := d.expires[key]
	if !ok {
		return -1
	}
	remaining := deadline - nowMS()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Keys returns every live (unexpired) key matching a glob pattern.
// Only the minimal "*" pattern is required by spec.md §4.2; other
// glob metacharacters ('?', '[...]', '\\' escapes) are matched by the
// redis-style matcher in match.go, not by filepath.Match.
func (d *Database) Keys(pattern string) []string {
	out := make([]string, 0, len(d.data))
	for k := range d.data {
		if d.ExpireIfNeeded(k) {
			continue
		}
		if globMatch(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

// Size returns the number of live keys (expired keys are swept lazily,
// so this may overcount until the next access or sweep tick).
func (d *Database) Size() int { return len(d.data) }

// Flush empties the database.
func (d *Database) Flush() {
	d.data = make(map[string]*Value)
	d.expires = make(map[string]int64)
	d.access = make(map[string]int64)
}

// Rename moves src to dst unconditionally, preserving expiry.
func (d *Database) Rename(src, dst string) bool {
	if d.ExpireIfNeeded(src) {
		return false
	}
	v, ok := d.data[src]
	if !ok {
		return false
	}
	deadline, hasExp := d.expires[src]
	d.rawDelete(src)
	d.data[dst] = v
	d.touch(dst)
	if hasExp {
		d.expires[dst] = deadline
	} else {
		delete(d.expires, dst)
	}
	return true
}

// RenameNX is Rename but only if dst does not already exist.
func (d *Database) RenameNX(src, dst string) (bool, bool) {
	if !d.Exists(src) {
		return false, false
	}
	if d.Exists(dst) {
		return false, true
	}
	return d.Rename(src, dst), true
}

// ExpiringKeys returns up to n keys that currently carry an expiry,
// sampled in map iteration order (Go's randomized map order gives
// this the same statistical sampling property spec.md §4.8 wants for
// VOLATILE_* eviction policies without needing an explicit PRNG pass).
func (d *Database) ExpiringKeys(n int) []string {
	out := make([]string, 0, n)
	for k := range d.expires {
		out = append(out, k)
		if len(out) >= n {
			break
		}
	}
	return out
}

// SampleKeys returns up to n keys chosen at random from the whole
// keyspace, for ALLKEYS_RANDOM/ALLKEYS_LRU sampling (spec.md §4.8).
func (d *Database) SampleKeys(n int) []string {
	if n >= len(d.data) {
		out := make([]string, 0, len(d.data))
		for k := range d.data {
			out = append(out, k)
		}
		return out
	}
	all := make([]string, 0, len(d.data))
	for k := range d.data {
		all = append(all, k)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:n]
}

// LastAccess returns the LRU stamp for key, or 0 if unknown.
func (d *Database) LastAccess(key string) int64 { return d.access[key] }

// ---- watch map (C3) ----

// Watch associates connID with key. The watch map only ever holds
// keys with at least one watcher (spec.md §3, invariant).
func (d *Database) Watch(key string, id connID) {
	set, ok := d.watched[key]
	if !ok {
		set = make(map[connID]struct{})
		d.watched[key] = set
	}
	set[id] = struct{}{}
}

// UnwatchAll removes id from every key it was watching.
func (d *Database) UnwatchAll(id connID, keys []string) {
	for _, key := range keys {
		set, ok := d.watched[key]
		if !ok {
			continue
		}
		delete(set, id)
		if len(set) == 0 {
			delete(d.watched, key)
		}
	}
}

// Watchers returns the connIDs currently watching key.
func (d *Database) Watchers(key string) []connID {
	set, ok := d.watched[key]
	if !ok {
		return nil
	}
	out := make([]connID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// ---- blocking map (C4) ----

// AddWaiter appends a waiter to key's FIFO blocking queue.
func (d *Database) AddWaiter(key string, w *BlockedWaiter) {
	d.blocked[key] = append(d.blocked[key], w)
}

// PopWaiter removes and returns the head waiter on key, if any.
func (d *Database) PopWaiter(key string) *BlockedWaiter {
	q := d.blocked[key]
	if len(q) == 0 {
		return nil
	}
	w := q[0]
	q = q[1:]
	if len(q) == 0 {
		delete(d.blocked, key)
	} else {
		d.blocked[key] = q
	}
	return w
}

// RemoveWaiter scrubs a specific connID from every key's wait-queue,
// used on client disconnect or timeout (spec.md §4.4, §5).
func (d *Database) RemoveWaiter(id connID, keys []string) {
	for _, key := range keys {
		q := d.blocked[key]
		if len(q) == 0 {
			continue
		}
		filtered := q[:0]
		for _, w := range q {
			if w.ConnID != id {
				filtered = append(filtered, w)
			}
		}
		if len(filtered) == 0 {
			delete(d.blocked, key)
		} else {
			d.blocked[key] = filtered
		}
	}
}

// HasWaiters reports whether any connection is blocked on key.
func (d *Database) HasWaiters(key string) bool { return len(d.blocked[key]) > 0 }
