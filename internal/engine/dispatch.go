package engine

import (
	"strings"

	"github.com/alicekv/alicedb/internal/protocol"
)

// cmdFlag bits classify a command for the dispatch steps in
// spec.md §4.2.
type cmdFlag int

const (
	flagWrite cmdFlag = 1 << iota
	flagReadOnly
	flagAdmin    // server/administrative command; dispatch gives this bit no special handling
	flagBlocking // degrades to a non-blocking equivalent inside a transaction
)

// descriptor is {arity, perms, handler} from spec.md §4.2 step 1.
// Arity follows the spec's own convention: positive means argc must
// be >= arity (variadic), negative means argc must equal -arity
// exactly.
type descriptor struct {
	name    string
	arity   int
	flags   cmdFlag
	handler func(e *Engine, c *Conn, argv []string) []byte
}

func (d *descriptor) arityOK(argc int) bool {
	if d.arity >= 0 {
		return argc >= d.arity
	}
	return argc == -d.arity
}

func (d *descriptor) isWrite() bool { return d.flags&flagWrite != 0 }

var commandTable map[string]*descriptor

func register(name string, arity int, flags cmdFlag, h func(e *Engine, c *Conn, argv []string) []byte) {
	if commandTable == nil {
		commandTable = make(map[string]*descriptor)
	}
	commandTable[name] = &descriptor{name: name, arity: arity, flags: flags, handler: h}
}

func lookupCommand(name string) *descriptor {
	return commandTable[strings.ToUpper(name)]
}

// isQueueableDataCommand reports whether cmd should be buffered by
// MULTI rather than executed inline (everything except the
// transaction-control commands themselves, per spec.md §4.2 step 2).
func isQueueableDataCommand(name string) bool {
	switch strings.ToUpper(name) {
	case "MULTI", "EXEC", "DISCARD", "WATCH", "UNWATCH":
		return false
	default:
		return true
	}
}

// Execute is the single dispatch entry point: upper-case argv[0],
// resolve a descriptor, check arity, route through the transaction
// queue or run inline, and drive write propagation. It must only ever
// be called from the engine's single serializing goroutine.
func (e *Engine) Execute(c *Conn, argv []string) []byte {
	if len(argv) == 0 {
		return protocol.EncodeError("ERR empty command")
	}
	name := strings.ToUpper(argv[0])
	desc := lookupCommand(name)
	if desc == nil {
		return protocol.EncodeError(errUnknownCommand(argv[0]).Error())
	}
	if !desc.arityOK(len(argv)) {
		return protocol.EncodeError(errWrongArity(argv[0]).Error())
	}

	if c.InTransaction && isQueueableDataCommand(name) {
		return e.queueInTransaction(c, desc, argv)
	}

	if c.ReadOnly && desc.isWrite() {
		return protocol.EncodeError(errReadOnlyReplica.Error())
	}

	if desc.isWrite() {
		if err := e.checkOOM(); err != nil {
			return protocol.EncodeError(err.Error())
		}
	}

	return e.runInline(c, desc, argv)
}

// runInline executes desc.handler directly (not via the transaction
// queue), applying the per-key expiry check first and driving write
// propagation afterward (spec.md §4.2 steps 3-5).
func (e *Engine) runInline(c *Conn, desc *descriptor, argv []string) []byte {
	e.expireCheck(c.DB, keysOf(argv[0], argv))

	reply := desc.handler(e, c, argv)

	// A blocking command that registered a wait returns nil instead of
	// a reply; the caller must wait on c.Wake instead of writing
	// anything, and no write has actually happened yet to propagate.
	if reply == nil && desc.flags&flagBlocking != 0 && c.Blocked {
		return nil
	}

	if desc.isWrite() {
		e.afterWrite(c, argv)
	}
	return reply
}

// expireCheck runs the lazy-expiry read path on every declared key
// argument before a handler observes the store (spec.md §4.2 step 3,
// §3 invariant 1). Synthetic DELs for anything it expires are
// propagated to the log/backlog ahead of the real command.
func (e *Engine) expireCheck(dbIndex int, keys []string) {
	db := e.store.DB(dbIndex)
	if db == nil {
		return
	}
	for _, k := range keys {
		if db.ExpireIfNeeded(k) {
			e.propagate(dbIndex, []string{"DEL", k})
		}
	}
}

// afterWrite implements spec.md §4.2 step 5: append to the durability
// log, append to the replication backlog, fan out to slaves, and
// poison watchers of every key the command touched.
func (e *Engine) afterWrite(c *Conn, argv []string) {
	propagated := argv
	if c.PropOverride != nil {
		propagated = c.PropOverride
		c.PropOverride = nil
	}
	e.propagate(c.DB, propagated)
	e.markDirty()
	for _, key := range keysOf(argv[0], argv) {
		e.touchWatchers(c.DB, key)
	}
}

// propagate appends argv to the AOF buffer and replication backlog,
// streaming it to any connected slaves (C6/C7 wiring point).
func (e *Engine) propagate(dbIndex int, argv []string) {
	e.ensureSelectedDB(dbIndex)
	wire := protocol.EncodeCommand(argv)
	if e.aof != nil {
		e.aof.Feed(argv)
	}
	if e.repl != nil {
		e.repl.Propagate(wire)
	}
}

// ensureSelectedDB emits a SELECT into the log/backlog stream the
// first time a write happens against a different database than the
// stream last recorded, mirroring how the teacher's AOF/backlog track
// the "current" database for replay.
func (e *Engine) ensureSelectedDB(dbIndex int) {
	if e.streamDB == dbIndex {
		return
	}
	e.streamDB = dbIndex
	sel := []string{"SELECT", itoa(dbIndex)}
	wire := protocol.EncodeCommand(sel)
	if e.aof != nil {
		e.aof.FeedRaw(wire)
	}
	if e.repl != nil {
		e.repl.Propagate(wire)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
