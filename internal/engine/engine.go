package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alicekv/alicedb/internal/storage"
)

// aofFeeder is the durability sink a write command is re-serialized
// into (C6). Kept as a narrow interface so engine never imports the
// aof package directly, avoiding an import cycle with the rewrite
// path, which needs a storage.Snapshot from the engine's store.
type aofFeeder interface {
	Feed(argv []string)
	FeedRaw(wire []byte)
}

// replPropagator is the replication sink a write's wire bytes are
// appended to (C7): backlog plus streaming slave fanout.
type replPropagator interface {
	Propagate(wire []byte)
}

// MemoryProbe samples resident memory for the eviction policy (C8/C13).
type MemoryProbe interface {
	ResidentBytes() (uint64, error)
}

// persister is the snapshot sink behind SAVE/BGSAVE (C5). BGSave saves
// in the background and reports completion through done, mirroring
// the teacher's fork-a-child-and-reap-in-the-tick shape without an
// actual fork (spec.md §9's substitution note).
type persister interface {
	Save() error
	BGSave(done func(error))
}

// replControl is the master/slave control plane behind SLAVEOF, PSYNC
// and REPLCONF (C7), kept narrow so engine never imports the
// replication package directly.
type replControl interface {
	SlaveOf(host, port string) error
	PSync(c *Conn, wantRunID string, wantOffset int64) (header string, snapshot []byte, fullResync bool)
	ReplConfAck(c *Conn, offset int64)
	Role() (role, masterHost, masterPort, linkStatus string)
	ConnectedSlaves() int
	MasterReplOffset() int64
}

// EvictionPolicy names one of the five policies from spec.md §4.8.
type EvictionPolicy int

const (
	EvictionNone EvictionPolicy = iota
	EvictionAllKeysLRU
	EvictionVolatileLRU
	EvictionAllKeysRandom
	EvictionVolatileRandom
	EvictionVolatileTTL
)

// Engine is the command execution core: one instance serializes every
// command for its Store, whether invoked directly or (in the real
// server binary) fed from a single dispatch goroutine reading off a
// channel shared by all connection goroutines.
type Engine struct {
	store *storage.Store
	log   *logrus.Logger

	conns    map[ConnID]*Conn
	streamDB int

	aof     aofFeeder
	repl    replPropagator
	persist persister
	replCtl replControl

	configMu sync.RWMutex
	config   map[string]string

	maxMemory      uint64
	evictionPolicy EvictionPolicy
	evictionSample int
	memProbe       MemoryProbe

	dirty        int64 // write count since the last SAVE, for auto-BGSAVE triggers
	lastSaveUnix int64
}

// Config bundles the construction-time options an Engine needs.
type Config struct {
	NumDatabases   int
	MaxMemory      uint64
	EvictionPolicy EvictionPolicy
	EvictionSample int
	MemProbe       MemoryProbe
	Logger         *logrus.Logger
}

// New builds an Engine with a fresh Store.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.EvictionSample <= 0 {
		cfg.EvictionSample = 5
	}
	return &Engine{
		store:          storage.NewStore(cfg.NumDatabases),
		log:            cfg.Logger,
		conns:          make(map[ConnID]*Conn),
		streamDB:       -1,
		maxMemory:      cfg.MaxMemory,
		evictionPolicy: cfg.EvictionPolicy,
		evictionSample: cfg.EvictionSample,
		memProbe:       cfg.MemProbe,
		config:         make(map[string]string),
	}
}

// Store exposes the underlying keyspace for persistence and
// replication wiring (snapshotting, full-resync transfer).
func (e *Engine) Store() *storage.Store { return e.store }

// SetAOF wires the durability sink; nil disables AOF propagation.
func (e *Engine) SetAOF(a aofFeeder) { e.aof = a }

// SetReplication wires the replication sink.
func (e *Engine) SetReplication(r replPropagator) { e.repl = r }

// SetPersister wires the SAVE/BGSAVE sink.
func (e *Engine) SetPersister(p persister) { e.persist = p }

// SetReplControl wires the master/slave control plane behind SLAVEOF,
// PSYNC and REPLCONF.
func (e *Engine) SetReplControl(r replControl) { e.replCtl = r }

// ConfigGet/ConfigSet back CONFIG GET/SET. Values are plain strings,
// matching the wire representation; callers seed defaults at startup
// from the parsed Config (C10).
func (e *Engine) ConfigGet(key string) (string, bool) {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	v, ok := e.config[key]
	return v, ok
}

func (e *Engine) ConfigSet(key, value string) {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	e.config[key] = value
}

// ConfigSnapshot returns every configured key/value pair, used by
// CONFIG GET with a glob pattern.
func (e *Engine) ConfigSnapshot() map[string]string {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	out := make(map[string]string, len(e.config))
	for k, v := range e.config {
		out[k] = v
	}
	return out
}

// Register adds a connection to the engine's registry so watch/block
// bookkeeping can resolve it by id.
func (e *Engine) Register(c *Conn) { e.conns[c.ID] = c }

// Unregister removes a connection, clearing its watches and any
// blocking wait-queue membership across every database (spec.md §5,
// "client disconnect cancels any pending block").
func (e *Engine) Unregister(c *Conn) {
	for dbIdx, keys := range c.WatchedKeys {
		if db := e.store.DB(dbIdx); db != nil {
			db.UnwatchAll(c.ID, keys)
		}
	}
	if db := e.store.DB(c.BlockDBIndex); db != nil && len(c.BlockKeys) > 0 {
		db.RemoveWaiter(c.ID, c.BlockKeys)
	}
	delete(e.conns, c.ID)
}

func nowMS() int64 { return time.Now().UnixMilli() }

// Tick drives the periodic maintenance spec.md §2 assigns to the
// event loop: expiry sweep, blocking timeouts, and eviction. The
// server binary calls this on a timer (e.g. 100ms) from the same
// goroutine that calls Execute.
func (e *Engine) Tick() {
	e.sweepExpired()
	e.sweepBlockTimeouts()
	e.maybeEvict()
}

func (e *Engine) sweepExpired() {
	for i := 0; i < e.store.NumDatabases(); i++ {
		db := e.store.DB(i)
		for _, k := range db.ExpiringKeys(256) {
			if db.ExpireIfNeeded(k) {
				e.propagate(i, []string{"DEL", k})
				e.touchWatchers(i, k)
			}
		}
	}
}

func (e *Engine) markDirty() { atomic.AddInt64(&e.dirty, 1) }

// DirtyCount returns the number of writes since the last SAVE, used by
// the server loop to evaluate the `save <sec> <changes>` triggers.
func (e *Engine) DirtyCount() int64 { return atomic.LoadInt64(&e.dirty) }

// ClearDirty resets the dirty counter and records the save time,
// called after a successful SAVE/BGSAVE.
func (e *Engine) ClearDirty() {
	atomic.StoreInt64(&e.dirty, 0)
	atomic.StoreInt64(&e.lastSaveUnix, time.Now().Unix())
}

// LastSave returns the unix timestamp of the last successful save.
func (e *Engine) LastSave() int64 { return atomic.LoadInt64(&e.lastSaveUnix) }

// Logger exposes the structured logger for callers that need to log
// with the same fields/format (C12).
func (e *Engine) Logger() *logrus.Logger { return e.log }
