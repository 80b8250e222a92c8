package engine

import (
	"strconv"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

func init() {
	register("SADD", 3, flagWrite, cmdSAdd)
	register("SISMEMBER", 3, flagReadOnly, cmdSIsMember)
	register("SPOP", 2, flagWrite, cmdSPop)
	register("SRANDMEMBER", 2, flagReadOnly, cmdSRandMember)
	register("SREM", 3, flagWrite, cmdSRem)
	register("SMOVE", 4, flagWrite, cmdSMove)
	register("SCARD", 2, flagReadOnly, cmdSCard)
	register("SMEMBERS", 2, flagReadOnly, cmdSMembers)
	register("SINTER", 2, flagReadOnly, cmdSInter)
	register("SINTERSTORE", 3, flagWrite, cmdSInterStore)
	register("SUNION", 2, flagReadOnly, cmdSUnion)
	register("SUNIONSTORE", 3, flagWrite, cmdSUnionStore)
	register("SDIFF", 2, flagReadOnly, cmdSDiff)
	register("SDIFFSTORE", 3, flagWrite, cmdSDiffStore)
}

func cmdSAdd(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).SAdd(argv[1], argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdSIsMember(e *Engine, c *Conn, argv []string) []byte {
	ok, err := e.store.DB(c.DB).SIsMember(argv[1], argv[2])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(boolInt(ok))
}

func cmdSPop(e *Engine, c *Conn, argv []string) []byte {
	count := 1
	hadCount := len(argv) >= 3
	if hadCount {
		n, err := strconv.Atoi(argv[2])
		if err != nil || n < 0 {
			return protocol.EncodeError(storage.ErrNotInteger.Error())
		}
		count = n
	}
	vals, err := e.store.DB(c.DB).SPop(argv[1], count)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if len(vals) == 0 {
		if hadCount {
			return protocol.EncodeArray(nil)
		}
		return protocol.EncodeNullBulkString()
	}
	if !hadCount {
		return protocol.EncodeBulkString(vals[0])
	}
	return protocol.EncodeArray(vals)
}

// cmdSRandMember implements the count semantics from spec.md §4.2:
// positive = unique sample, negative = with repetition, magnitude
// >= set size = the whole set.
func cmdSRandMember(e *Engine, c *Conn, argv []string) []byte {
	if len(argv) == 2 {
		members, err := e.store.DB(c.DB).SMembers(argv[1])
		if err != nil {
			return protocol.EncodeError(err.Error())
		}
		if len(members) == 0 {
			return protocol.EncodeNullBulkString()
		}
		return protocol.EncodeBulkString(members[0])
	}
	count, err := strconv.Atoi(argv[2])
	if err != nil {
		return protocol.EncodeError(storage.ErrNotInteger.Error())
	}
	vals, err := e.store.DB(c.DB).SRandMember(argv[1], count)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdSRem(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).SRem(argv[1], argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdSMove(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	removed, err := db.SRem(argv[1], []string{argv[3]})
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if removed == 0 {
		return protocol.EncodeInteger(0)
	}
	if _, err := db.SAdd(argv[2], []string{argv[3]}); err != nil {
		db.SAdd(argv[1], []string{argv[3]})
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(1)
}

func cmdSCard(e *Engine, c *Conn, argv []string) []byte {
	n, err := e.store.DB(c.DB).SCard(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(n))
}

func cmdSMembers(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).SMembers(argv[1])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdSInter(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).SInter(argv[1:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdSInterStore(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	vals, err := db.SInter(argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(db.StoreSetResult(argv[1], vals)))
}

func cmdSUnion(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).SUnion(argv[1:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdSUnionStore(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	vals, err := db.SUnion(argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(db.StoreSetResult(argv[1], vals)))
}

func cmdSDiff(e *Engine, c *Conn, argv []string) []byte {
	vals, err := e.store.DB(c.DB).SDiff(argv[1:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeArray(vals)
}

func cmdSDiffStore(e *Engine, c *Conn, argv []string) []byte {
	db := e.store.DB(c.DB)
	vals, err := db.SDiff(argv[2:])
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeInteger(int64(db.StoreSetResult(argv[1], vals)))
}
