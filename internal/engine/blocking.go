package engine

import (
	"strconv"
	"time"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

// waitSide records which end of the list a blocked waiter asked to
// pop from, carried in BlockedWaiter.Payload so a writer serving the
// waiter later knows whether to call LPop or RPop (spec.md §4.4).
type waitSide int

const (
	waitHead waitSide = iota // BLPOP
	waitTail                 // BRPOP, BRPOPLPUSH's source key
)

// blockOrWait implements the shared BLPOP/BRPOP non-blocking fast
// path and blocking registration (spec.md §4.4). pop is LPop or RPop
// bound to the calling command; side records the same choice for the
// waiter registered if no key has data yet. Returns the reply to send
// immediately, or nil if the connection has been registered to block
// (the caller must then wait on c.Wake).
func (e *Engine) blockOrWait(c *Conn, keys []string, timeoutSecs float64, side waitSide, pop func(db *storage.Database, key string) (string, bool, error)) []byte {
	db := e.store.DB(c.DB)
	for _, key := range keys {
		v, ok, err := pop(db, key)
		if err != nil {
			return protocol.EncodeError(err.Error())
		}
		if ok {
			return protocol.EncodeArray([]string{key, v})
		}
	}

	if c.InExec {
		return protocol.EncodeNilArray()
	}

	c.Blocked = true
	c.BlockKeys = keys
	c.BlockStart = time.Now()
	c.BlockTimeout = time.Duration(timeoutSecs * float64(time.Second))
	c.BlockDBIndex = c.DB
	for _, key := range keys {
		db.AddWaiter(key, &storage.BlockedWaiter{ConnID: c.ID, Payload: side})
	}
	return nil
}

func cmdBLPop(e *Engine, c *Conn, argv []string) []byte {
	keys := argv[1 : len(argv)-1]
	timeout, err := strconv.ParseFloat(argv[len(argv)-1], 64)
	if err != nil || timeout < 0 {
		return protocol.EncodeError(errSyntax.Error())
	}
	return e.blockOrWait(c, keys, timeout, waitHead, func(db *storage.Database, key string) (string, bool, error) {
		vals, err := db.LPop(key, 1)
		if err != nil || len(vals) == 0 {
			return "", false, err
		}
		return vals[0], true, nil
	})
}

func cmdBRPop(e *Engine, c *Conn, argv []string) []byte {
	keys := argv[1 : len(argv)-1]
	timeout, err := strconv.ParseFloat(argv[len(argv)-1], 64)
	if err != nil || timeout < 0 {
		return protocol.EncodeError(errSyntax.Error())
	}
	return e.blockOrWait(c, keys, timeout, waitTail, func(db *storage.Database, key string) (string, bool, error) {
		vals, err := db.RPop(key, 1)
		if err != nil || len(vals) == 0 {
			return "", false, err
		}
		return vals[0], true, nil
	})
}

func cmdBRPopLPush(e *Engine, c *Conn, argv []string) []byte {
	src, dst := argv[1], argv[2]
	timeout, err := strconv.ParseFloat(argv[3], 64)
	if err != nil || timeout < 0 {
		return protocol.EncodeError(errSyntax.Error())
	}

	db := e.store.DB(c.DB)
	v, ok, err := db.RPopLPush(src, dst)
	if err != nil {
		return protocol.EncodeError(err.Error())
	}
	if ok {
		e.serveListWaiters(c.DB, dst)
		return protocol.EncodeBulkString(v)
	}

	if c.InExec {
		return protocol.EncodeNullBulkString()
	}

	c.Blocked = true
	c.BlockKeys = []string{src}
	c.BlockStart = time.Now()
	c.BlockTimeout = time.Duration(timeout * float64(time.Second))
	c.BlockDBIndex = c.DB
	c.BlockDest = dst
	db.AddWaiter(src, &storage.BlockedWaiter{ConnID: c.ID, Payload: waitTail})
	return nil
}

// serveListWaiters implements the synchronous hand-off in spec.md
// §4.4: a write that adds elements to a list-typed key inspects the
// blocking map for that key in the same execution step and serves the
// head waiter directly, with no implicit yield.
func (e *Engine) serveListWaiters(dbIndex int, key string) {
	db := e.store.DB(dbIndex)
	for db.HasWaiters(key) {
		w := db.PopWaiter(key)
		if w == nil {
			return
		}
		c := e.conns[w.ConnID]
		if c == nil || !c.Blocked {
			continue
		}
		side, _ := w.Payload.(waitSide)
		popFn := db.LPop
		if side == waitTail {
			popFn = db.RPop
		}
		vals, err := popFn(key, 1)
		if err != nil || len(vals) == 0 {
			// Another waiter or writer already drained it; re-register
			// this waiter (at the back of the queue) and stop.
			db.AddWaiter(key, w)
			return
		}
		value := vals[0]
		if c.BlockDest != "" {
			if _, err := db.LPush(c.BlockDest, value); err != nil {
				// destination holds the wrong type; restore and drop the wake
				if side == waitTail {
					db.RPush(key, value)
				} else {
					db.LPush(key, value)
				}
				e.clearBlockState(c)
				continue
			}
		}
		e.clearBlockState(c)
		reply := protocol.EncodeArray([]string{key, value})
		select {
		case c.Wake <- BlockResult{Reply: reply, Unblocked: true}:
		default:
		}
	}
}

func (e *Engine) clearBlockState(c *Conn) {
	db := e.store.DB(c.BlockDBIndex)
	if db != nil {
		db.RemoveWaiter(c.ID, c.BlockKeys)
	}
	c.Blocked = false
	c.BlockKeys = nil
	c.BlockDest = ""
}

// sweepBlockTimeouts cancels waiters whose deadline has passed
// (spec.md §4.4's periodic tick). Zero timeout means wait forever.
func (e *Engine) sweepBlockTimeouts() {
	now := time.Now()
	for _, c := range e.conns {
		if !c.Blocked || c.BlockTimeout <= 0 {
			continue
		}
		if now.Sub(c.BlockStart) < c.BlockTimeout {
			continue
		}
		e.clearBlockState(c)
		select {
		case c.Wake <- BlockResult{Reply: protocol.EncodeNilArray(), TimedOut: true}:
		default:
		}
	}
}
