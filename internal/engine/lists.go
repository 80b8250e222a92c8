package engine

import (
	"strconv"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

func init() {
	register("LPUSH", 3, flagWrite, cmdLPush)
	register("LPUSHX", 3, flagWrite, cmdLPushX)
	register("RPUSH", 3, flagWrite, cmdRPush)
	register("RPUSHX", 3, flagWrite, cmdRPushX)
	register("LPOP", 2, flagWrite, cmdLPop)
	register("RPOP", 2, flagWrite, cmdRPop)
	register("RPOPLPUSH", 3, flagWrite, cmdRPopLPush)
	register("LREM", 4, flagWrite, cmdLRem)
	register("LLEN", 2, flagReadOnly, cmdLLen)
	register("LINDEX", 3, flagReadOnly, cmdLIndex)
	register("LSET", 4, flagWrite, cmdLSet)
	register("LRANGE", 4, flagReadOnly, cmdLRange)
	register("LTRIM", 4, flagWrite, cmdLTrim)
	register("LINSERT", 5, flagWrite, cmdLInsert)
	register("BLPOP", 3, flagWrite|flagBlocking, cmdBLPop)
	register("BRPOP", 3, flagWrite|flagBlocking, cmdBRPop)
	register("BRPOPLPUSH", 4, flagWrite|flagBlocking, cmdBRPopLPush)
}

func cmdLPush(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).LPush(argv[1], argv[2:]...)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	e.serveListWaiters(c.DB, argv[1])
	return protocol.EncodeInteger(int64(n))
}

func cmdLPushX(e *Engine, c *Conn, argv []string) []byte {
	if !e.store.DB(c.DB).Exists(argv[1]) {
		return protocol.EncodeInteger(0)
	}
	return cmdLPush(e, c, argv)
}

func cmdRPush(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).RPush(argv[1], argv[2:]...)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	e.serveListWaiters(c.DB, argv[1])
	return protocol.EncodeInteger(int64(n))
}

func cmdRPushX(e *Engine, c *Conn, argv []string) []byte {
	if !e.store.DB(c.DB).Exists(argv[1]) {
		return protocol.EncodeInteger(0)
	}
	return cmdRPush(e, c, argv)
}

func popCount(argv []string) (int, error) {
	if len(argv) < 3 {
		return 1, nil
	}
	n, err := strconv.Atoi(argv[2])
	if err != nil || n < 0 {
		return 0, storage.ErrNotInteger
	}
	return n, nil
}

func cmdLPop(e *Engine, c *Conn, argv []string) []byte {
	count, err := popCount(argv)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	vals, err := e.store.DB(c.DB).LPop(argv[1], count)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return encodePopResult(vals, len(argv) >= 3)
}

func cmdRPop(e *Engine, c *Conn, argv []string) []byte {
	count, err := popCount(argv)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	vals, err := e.store.DB(c.DB).RPop(argv[1], count)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return encodePopResult(vals, len(argv) >= 3)
}

// encodePopResult replies with a bulk string (single-pop form) or an
// array (explicit COUNT form), nil in either shape when nothing popped.
func encodePopResult(vals []string, hadCountArg bool) []byte {
	if len(vals) == 0 {
		if hadCountArg {
			return protocol.EncodeNilArray()
		}
		return protocol.EncodeNullBulkString()
	}
	if !hadCountArg {
		return protocol.EncodeBulkString(vals[0])
	}
	return protocol.EncodeArray(vals)
}

func cmdRPopLPush(e *Engine, c *Conn, argv []string) []byte {
	v, ok, err := e.store.DB(c.DB).RPopLPush(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeNullBulkString()
	}
	e.serveListWaiters(c.DB, argv[2])
	return protocol.EncodeBulkString(v)
}

func cmdLRem(e *Engine, c *Conn, argv []string) []byte {
	count, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	n, err := e.store.DB(c.DB).LRem(argv[1], count, argv[3])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdLLen(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).LLen(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdLIndex(e *Engine, c *Conn, argv []string) []byte {
	idx, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	v, ok, err := e.store.DB(c.DB).LIndex(argv[1], idx)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(v)
}

func cmdLSet(e *Engine, c *Conn, argv []string) []byte {
	idx, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	if err := e.store.DB(c.DB).LSet(argv[1], idx, argv[3]); err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdLRange(e *Engine, c *Conn, argv []string) []byte {
	start, err1 := strconv.Atoi(argv[2])
	stop, err2 := strconv.Atoi(argv[3])
	if err1 != nil || err2 != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	vals, err := e.store.DB(c.DB).LRange(argv[1], start, stop)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdLTrim(e *Engine, c *Conn, argv []string) []byte {
	start, err1 := strconv.Atoi(argv[2])
	stop, err2 := strconv.Atoi(argv[3])
	if err1 != nil || err2 != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	if err := e.store.DB(c.DB).LTrim(argv[1], start, stop); err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdLInsert(e *Engine, c *Conn, argv []string) []byte {
	var before bool
	switch argv[2] {
	case "BEFORE":
		before = true
	case "AFTER":
		before = false
	default:
		return protocol.EncodeError(errSyntax.Error())
	}
	n, err := e.store.DB(c.DB).LInsert(argv[1], before, argv[3], argv[4])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}
