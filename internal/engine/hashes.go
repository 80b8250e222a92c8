package engine

import (
	"strconv"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

func init() {
	register("HSET", 4, flagWrite, cmdHSet)
	register("HSETNX", 4, flagWrite, cmdHSetNX)
	register("HGET", 3, flagReadOnly, cmdHGet)
	register("HEXISTS", 3, flagReadOnly, cmdHExists)
	register("HDEL", 3, flagWrite, cmdHDel)
	register("HLEN", 2, flagReadOnly, cmdHLen)
	register("HSTRLEN", 3, flagReadOnly, cmdHStrLen)
	register("HINCRBY", 4, flagWrite, cmdHIncrBy)
	register("HMSET", 4, flagWrite, cmdHMSet)
	register("HMGET", 3, flagReadOnly, cmdHMGet)
	register("HKEYS", 2, flagReadOnly, cmdHKeys)
	register("HVALS", 2, flagReadOnly, cmdHVals)
	register("HGETALL", 2, flagReadOnly, cmdHGetAll)
}

func pairsFrom(argv []string) (map[string]string, error) {
	if (len(argv))%2 != 0 {
		return nil, errSyntax
	}
	pairs := make(map[string]string, len(argv)/2)
	for i := 0; i < len(argv); i += 2 {
		pairs[argv[i]] = argv[i+1]
	}
	return pairs, nil
}

func cmdHSet(e *Engine, c *Conn, argv []string) []byte {
	pairs, err := pairsFrom(argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	n, err := e.store.DB(c.DB).HSet(argv[1], pairs)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdHMSet(e *Engine, c *Conn, argv []string) []byte {
	pairs, err := pairsFrom(argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if _, err := e.store.DB(c.DB).HSet(argv[1], pairs); err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdHSetNX(e *Engine, c *Conn, argv []string) []byte {
	set, err := e.store.DB(c.DB).HSetNX(argv[1], argv[2], argv[3])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(boolInt(set))
}

func cmdHGet(e *Engine, c *Conn, argv []string) []byte {
	v, ok, err := e.store.DB(c.DB).HGet(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(v)
}

func cmdHExists(e *Engine, c *Conn, argv []string) []byte {
	ok, err := e.store.DB(c.DB).HExists(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(boolInt(ok))
}

func cmdHDel(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).HDel(argv[1], argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdHLen(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).HLen(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdHStrLen(e *Engine, c *Conn, argv []string) []byte {
	v, ok, err := e.store.DB(c.DB).HGet(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if !ok {
		return protocol.EncodeInteger(0)
	}
	return protocol.EncodeInteger(int64(len(v)))
}

func cmdHIncrBy(e *Engine, c *Conn, argv []string) []byte {
	delta, err := strconv.ParseInt(argv[3], 10, 64)
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	n, err := e.store.DB(c.DB).HIncrBy(argv[1], argv[2], delta)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(n)
}

func cmdHMGet(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).HMGet(argv[1], argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArrayPtr(vals)
}

func cmdHKeys(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).HKeys(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdHVals(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).HVals(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdHGetAll(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).HGetAll(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}
