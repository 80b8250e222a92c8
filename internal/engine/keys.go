package engine

import (
	"strconv"
	"strings"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

// keysOf returns the key-position arguments of a command, used both
// for the per-key expiry check (step 3) and for deciding which
// watchers to poison after a write (step 5). Most commands name their
// key at argv[1]; the exceptions are enumerated explicitly.
func keysOf(cmd string, argv []string) []string {
	switch strings.ToUpper(cmd) {
	case "MSET", "MSETNX":
		keys := make([]string, 0, len(argv)/2)
		for i := 1; i < len(argv); i += 2 {
			keys = append(keys, argv[i])
		}
		return keys
	case "MGET", "DEL", "EXISTS", "SUNION", "SINTER", "SDIFF", "WATCH":
		if len(argv) < 2 {
			return nil
		}
		return argv[1:]
	case "SUNIONSTORE", "SINTERSTORE", "SDIFFSTORE":
		if len(argv) < 2 {
			return nil
		}
		keys := []string{argv[1]}
		return append(keys, argv[2:]...)
	case "RENAME", "RENAMENX", "SMOVE", "RPOPLPUSH":
		if len(argv) < 3 {
			return nil
		}
		return []string{argv[1], argv[2]}
	case "MOVE":
		if len(argv) < 2 {
			return nil
		}
		return []string{argv[1]}
	case "BLPOP", "BRPOP":
		if len(argv) < 2 {
			return nil
		}
		return argv[1 : len(argv)-1]
	case "BRPOPLPUSH":
		if len(argv) < 3 {
			return nil
		}
		return []string{argv[1], argv[2]}
	case "PING", "INFO", "CONFIG", "DBSIZE", "SELECT", "FLUSHDB", "FLUSHALL",
		"MULTI", "EXEC", "DISCARD", "SAVE", "BGSAVE", "BGREWRITEAOF",
		"LASTSAVE", "SLAVEOF", "PSYNC", "REPLCONF", "UNWATCH", "KEYS":
		return nil
	default:
		if len(argv) < 2 {
			return nil
		}
		return []string{argv[1]}
	}
}

// touchWatchers poisons the transaction of every connection watching
// key in dbIndex (spec.md §3 invariant 3, §4.3).
func (e *Engine) touchWatchers(dbIndex int, key string) {
	db := e.store.DB(dbIndex)
	if db == nil {
		return
	}
	for _, id := range db.Watchers(key) {
		if c := e.conns[id]; c != nil {
			c.Poisoned = true
		}
	}
}

func init() {
	register("EXISTS", 2, flagReadOnly, cmdExists)
	register("TYPE", 2, flagReadOnly, cmdType)
	register("TTL", 2, flagReadOnly, cmdTTL)
	register("PTTL", 2, flagReadOnly, cmdPTTL)
	register("EXPIRE", 3, flagWrite, cmdExpire)
	register("PEXPIRE", 3, flagWrite, cmdPExpire)
	register("PERSIST", 2, flagWrite, cmdPersist)
	register("DEL", 2, flagWrite, cmdDel)
	register("KEYS", 2, flagReadOnly, cmdKeys)
	register("RENAME", 3, flagWrite, cmdRename)
	register("RENAMENX", 3, flagWrite, cmdRenameNX)
	register("MOVE", 3, flagWrite, cmdMove)
	register("DBSIZE", 1, flagReadOnly|flagAdmin, cmdDBSize)
	register("SELECT", 2, flagAdmin, cmdSelect)
	register("FLUSHDB", 1, flagWrite|flagAdmin, cmdFlushDB)
	register("FLUSHALL", 1, flagWrite|flagAdmin, cmdFlushAll)
	register("SORT", 2, flagWrite, cmdSort)
}

func cmdExists(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	count := int64(0)
	for _, k := range argv[1:] {
		if db.Exists(k) {
			count++
		}
	}
	return protocol.EncodeInteger(count)
}

func cmdType(e *Engine, c *Conn, argv []string) []byte {
	t, ok := e.store.DB(c.DB).TypeOf(argv[1])
	if !ok {
		return protocol.EncodeSimpleString("none")
	}
	return protocol.EncodeSimpleString(t.String())
}

func cmdTTL(e *Engine, c *Conn, argv []string) []byte {
	ms := e.store.DB(c.DB).TTLMillis(argv[1])
	if ms < 0 {
		return protocol.EncodeInteger(ms)
	}
	return protocol.EncodeInteger((ms + 999) / 1000)
}

func cmdPTTL(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeInteger(e.store.DB(c.DB).TTLMillis(argv[1]))
}

func cmdExpire(e *Engine, c *Conn, argv []string) []byte {
	secs, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	deadline := secs * 1000
	if !c.replayAbsolute() {
		deadline += nowMS()
	}
	return expireAt(e, c, argv[1], deadline)
}

func cmdPExpire(e *Engine, c *Conn, argv []string) []byte {
	ms, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	deadline := ms
	if !c.replayAbsolute() {
		deadline += nowMS()
	}
	return expireAt(e, c, argv[1], deadline)
}

// expireAt installs deadline (already an absolute millisecond
// timestamp) on key and, unless this connection is itself replaying,
// rewrites propagation to PEXPIRE with that absolute value so AOF
// replay and replication streaming apply the same deadline regardless
// of when replay happens (spec.md §4.6). A replay that discovers the
// deadline has already passed deletes the key instead of reinstalling
// an expiry on it.
func expireAt(e *Engine, c *Conn, key string, deadline int64) []byte {
	db := e.store.DB(c.DB)
	if c.replayAbsolute() && deadline <= nowMS() {
		existed := db.Delete(key)
		return protocol.EncodeInteger(boolInt(existed))
	}
	ok := db.SetExpireAt(key, deadline)
	if ok && !c.replayAbsolute() {
		c.PropOverride = []string{"PEXPIRE", key, strconv.FormatInt(deadline, 10)}
	}
	return protocol.EncodeInteger(boolInt(ok))
}

func cmdPersist(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeInteger(boolInt(e.store.DB(c.DB).Persist(argv[1])))
}

func cmdDel(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	count := int64(0)
	for _, k := range argv[1:] {
		if db.Delete(k) {
			count++
		}
	}
	return protocol.EncodeInteger(count)
}

func cmdKeys(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeArray(e.store.DB(c.DB).Keys(argv[1]))
}

func cmdRename(e *Engine, c *Conn, argv []string) []byte {
	if !e.store.DB(c.DB).Rename(argv[1], argv[2]) {
		return protocol.EncodeError(storage.ErrNoSuchKey.Error())
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdRenameNX(e *Engine, c *Conn, argv []string) []byte {
	renamed, srcExisted := e.store.DB(c.DB).RenameNX(argv[1], argv[2])
	if !srcExisted {
		return protocol.EncodeError(storage.ErrNoSuchKey.Error())
	}
	return protocol.EncodeInteger(boolInt(renamed))
}

func cmdMove(e *Engine, c *Conn, argv []string) []byte {
	dstIdx, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	moved, err := e.store.Move(c.DB, dstIdx, argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(boolInt(moved))
}

func cmdDBSize(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeInteger(int64(e.store.DB(c.DB).Size()))
}

func cmdSelect(e *Engine, c *Conn, argv []string) []byte {
	idx, err := strconv.Atoi(argv[1])
	if err != nil || e.store.DB(idx) == nil {
		return protocol.EncodeError("ERR DB index is out of range")
	}
	c.DB = idx
	return protocol.EncodeSimpleString("OK")
}

func cmdFlushDB(e *Engine, c *Conn, argv []string) []byte {
	e.store.DB(c.DB).Flush()
	return protocol.EncodeSimpleString("OK")
}

func cmdFlushAll(e *Engine, c *Conn, argv []string) []byte {
	e.store.FlushAll()
	return protocol.EncodeSimpleString("OK")
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
