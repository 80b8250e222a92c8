package engine

import (
	"strconv"
	"strings"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

func init() {
	register("SET", 3, flagWrite, cmdSet)
	register("SETNX", 3, flagWrite, cmdSetNX)
	register("GET", 2, flagReadOnly, cmdGet)
	register("GETSET", 3, flagWrite, cmdGetSet)
	register("STRLEN", 2, flagReadOnly, cmdStrLen)
	register("APPEND", 3, flagWrite, cmdAppend)
	register("MSET", 3, flagWrite, cmdMSet)
	register("MGET", 2, flagReadOnly, cmdMGet)
	register("INCR", 2, flagWrite, cmdIncr)
	register("INCRBY", 3, flagWrite, cmdIncrBy)
	register("DECR", 2, flagWrite, cmdDecr)
	register("DECRBY", 3, flagWrite, cmdDecrBy)
	register("SETRANGE", 4, flagWrite, cmdSetRange)
	register("GETRANGE", 4, flagReadOnly, cmdGetRange)
}

// cmdSet implements SET with the optional NX|XX and EX|PX modifiers
// (spec.md §4.2). A TTL modifier is always rewritten to an absolute
// PX deadline before propagation (spec.md §4.6, §8 scenario 1), so AOF
// replay and replication streaming never re-derive "seconds from now"
// against a clock that has since moved. Replaying a connection
// (AOF/master-link) interprets an EX/PX argument as already-absolute
// instead of relative.
func cmdSet(e *Engine, c *Conn, argv []string) []byte {
	key, value := argv[1], argv[2]
	var nx, xx, keepTTL bool
	var hasTTL bool
	var expireAtMS int64
	var rawFlags []string

	i := 3
	for i < len(argv) {
		switch strings.ToUpper(argv[i]) {
		case "NX":
			nx = true
			rawFlags = append(rawFlags, "NX")
			i++
		case "XX":
			xx = true
			rawFlags = append(rawFlags, "XX")
			i++
		case "KEEPTTL":
			keepTTL = true
			rawFlags = append(rawFlags, "KEEPTTL")
			i++
		case "EX", "PX":
			if i+1 >= len(argv) {
				return protocol.EncodeError(errSyntax.Error())
			}
			n, err := strconv.ParseInt(argv[i+1], 10, 64)
			if err != nil {
				return protocol.EncodeError(storage.ErrNotInteger.Error())
			}
			hasTTL = true
			switch {
			case c.replayAbsolute():
				expireAtMS = n
			case strings.ToUpper(argv[i]) == "EX":
				expireAtMS = nowMS() + n*1000
			default:
				expireAtMS = nowMS() + n
			}
			i += 2
		default:
			return protocol.EncodeError(errSyntax.Error())
		}
	}
	if nx && xx {
		return protocol.EncodeError(errSyntax.Error())
	}

	db := e.store.DB(c.DB)
	exists := db.Exists(key)
	if nx && exists {
		return protocol.EncodeNullBulkString()
	}
	if xx && !exists {
		return protocol.EncodeNullBulkString()
	}

	if hasTTL && c.replayAbsolute() && expireAtMS <= nowMS() {
		// The deadline already passed between the original write and
		// this replay; applying it would install a key that must be
		// immediately expired, so just make sure it's gone.
		db.Delete(key)
		return protocol.EncodeSimpleString("OK")
	}

	db.Set(key, value, keepTTL)
	if hasTTL {
		db.SetExpireAt(key, expireAtMS)
	}

	if hasTTL && !c.replayAbsolute() {
		override := append([]string{"SET", key, value}, rawFlags...)
		override = append(override, "PX", strconv.FormatInt(expireAtMS, 10))
		c.PropOverride = override
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdSetNX(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeInteger(boolInt(e.store.DB(c.DB).SetNX(argv[1], argv[2])))
}

func cmdGet(e *Engine, c *Conn, argv []string) []byte {
	v, ok, err := e.store.DB(c.DB).Get(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(v)
}

func cmdGetSet(e *Engine, c *Conn, argv []string) []byte {
	old, existed, err := e.store.DB(c.DB).GetSet(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !existed {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(old)
}

func cmdStrLen(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).StrLen(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdAppend(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).Append(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdMSet(e *Engine, c *Conn, argv []string) []byte {
	if (len(argv)-1)%2 != 0 {
		return protocol.EncodeError(errWrongArity("MSET").Error())
	}
	db := e.store.DB(c.DB)
	for i := 1; i < len(argv); i += 2 {
		db.Set(argv[i], argv[i+1], false)
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdMGet(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeArrayPtr(e.store.DB(c.DB).MGet(argv[1:]))
}

func cmdIncr(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).IncrBy(argv[1], 1)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(n)
}

func cmdIncrBy(e *Engine, c *Conn, argv []string) []byte {
	delta, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	n, err := e.store.DB(c.DB).IncrBy(argv[1], delta)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(n)
}

func cmdDecr(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).IncrBy(argv[1], -1)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(n)
}

func cmdDecrBy(e *Engine, c *Conn, argv []string) []byte {
	delta, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	n, err := e.store.DB(c.DB).IncrBy(argv[1], -delta)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(n)
}

// cmdSetRange zero-pads up to offset before writing value in place
// (spec.md §4.2).
func cmdSetRange(e *Engine, c *Conn, argv []string) []byte {
	offset, err := strconv.Atoi(argv[2])
	if err != nil || offset < 0 {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	db := e.store.DB(c.DB)
	cur, _, err := db.Get(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	patch := argv[3]
	needed := offset + len(patch)
	buf := make([]byte, maxInt(needed, len(cur)))
	copy(buf, cur)
	for i := len(cur); i < offset; i++ {
		buf[i] = 0
	}
	copy(buf[offset:], patch)
	db.Set(argv[1], string(buf), true)
	return protocol.EncodeInteger(int64(len(buf)))
}

// cmdGetRange applies the same inclusive negative-index clamping as
// LRANGE (spec.md §4.2 "Range clamping").
func cmdGetRange(e *Engine, c *Conn, argv []string) []byte {
	start, err1 := strconv.Atoi(argv[2])
	stop, err2 := strconv.Atoi(argv[3])
	if err1 != nil || err2 != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	s, ok, err := e.store.DB(c.DB).Get(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeBulkString("")
	}
	a, b, empty := clampRange(start, stop, len(s))
	if empty {
		return protocol.EncodeBulkString("")
	}
	return protocol.EncodeBulkString(s[a : b+1])
}

// clampRange implements spec.md §4.2's range-clamping rule shared by
// GETRANGE and LRANGE: upper=L-1, lower=-L; start>upper or stop<lower
// is empty, else adjust negatives by +L and clamp.
func clampRange(start, stop, length int) (a, b int, empty bool) {
	upper := length - 1
	lower := -length
	if length == 0 || start > upper || stop < lower {
		return 0, 0, true
	}
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop > upper {
		stop = upper
	}
	if start > stop {
		return 0, 0, true
	}
	return start, stop, false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
