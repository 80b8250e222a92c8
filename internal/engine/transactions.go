package engine

import "github.com/alicekv/alicedb/internal/protocol"

func init() {
	register("MULTI", 1, flagAdmin, cmdMulti)
	register("EXEC", 1, flagAdmin, cmdExec)
	register("DISCARD", 1, flagAdmin, cmdDiscard)
	register("WATCH", 2, flagAdmin, cmdWatch)
	register("UNWATCH", 1, flagAdmin, cmdUnwatch)
}

func cmdMulti(e *Engine, c *Conn, argv []string) []byte {
	if c.InTransaction {
		return protocol.EncodeError(errNestedTx.Error())
	}
	c.InTransaction = true
	c.Queue = nil
	return protocol.EncodeSimpleString("OK")
}

// queueInTransaction buffers a command instead of running it, the
// path Execute takes for every data command once MULTI is open. A
// write issued against a read-only replica link poisons the
// transaction immediately rather than waiting for EXEC to discover it.
func (e *Engine) queueInTransaction(c *Conn, desc *descriptor, argv []string) []byte {
	if c.ReadOnly && desc.isWrite() {
		c.Poisoned = true
		return protocol.EncodeError(errReadOnlyReplica.Error())
	}
	c.Queue = append(c.Queue, QueuedCommand{
		Argv:      argv,
		IsWrite:   desc.isWrite(),
		WriteKeys: keysOf(argv[0], argv),
	})
	return protocol.EncodeSimpleString("QUEUED")
}

// cmdExec replays the queue built up since MULTI. A poisoned
// transaction (a watched key changed, or a write got queued against a
// read-only link) aborts with a nil array and runs nothing.
func cmdExec(e *Engine, c *Conn, argv []string) []byte {
	if !c.InTransaction {
		return protocol.EncodeError(errNotInTx.Error())
	}
	queue := c.Queue
	poisoned := c.Poisoned
	e.unwatchAll(c)
	c.ResetTransaction()
	if poisoned {
		return protocol.EncodeNilArray()
	}

	c.InExec = true
	defer func() { c.InExec = false }()

	hasWrites := false
	for _, qc := range queue {
		if qc.IsWrite {
			hasWrites = true
			break
		}
	}
	// Bracket the replayed queue with MULTI/EXEC in the write log so a
	// later AOF replay or replicated stream applies it as one atomic
	// unit instead of as independently-propagated commands (spec.md
	// §4.3). Skip it entirely when replaying ourselves: nesting MULTI
	// while already inside one is a protocol error, and this
	// connection's own incoming MULTI/EXEC already bracketed the
	// original write.
	bracket := hasWrites && !c.replayAbsolute()
	if bracket {
		e.propagate(c.DB, []string{"MULTI"})
	}

	replies := make([][]byte, 0, len(queue))
	for _, qc := range queue {
		desc := lookupCommand(qc.Argv[0])
		if desc == nil {
			replies = append(replies, protocol.EncodeError(errUnknownCommand(qc.Argv[0]).Error()))
			continue
		}
		if c.ReadOnly && desc.isWrite() {
			replies = append(replies, protocol.EncodeError(errReadOnlyReplica.Error()))
			continue
		}
		replies = append(replies, e.runInline(c, desc, qc.Argv))
	}

	if bracket {
		e.propagate(c.DB, []string{"EXEC"})
	}
	return protocol.EncodeRawArray(replies)
}

func cmdDiscard(e *Engine, c *Conn, argv []string) []byte {
	if !c.InTransaction {
		return protocol.EncodeError(errNoTxToDiscard.Error())
	}
	e.unwatchAll(c)
	c.ResetTransaction()
	return protocol.EncodeSimpleString("OK")
}

func cmdWatch(e *Engine, c *Conn, argv []string) []byte {
	if c.InTransaction {
		return protocol.EncodeError("ERR WATCH inside MULTI is not allowed")
	}
	db := e.store.DB(c.DB)
	for _, key := range argv[1:] {
		db.Watch(key, c.ID)
		c.WatchedKeys[c.DB] = append(c.WatchedKeys[c.DB], key)
	}
	return protocol.EncodeSimpleString("OK")
}

func cmdUnwatch(e *Engine, c *Conn, argv []string) []byte {
	e.unwatchAll(c)
	if !c.InTransaction {
		c.Poisoned = false
	}
	return protocol.EncodeSimpleString("OK")
}

// unwatchAll clears every key a connection is watching across all
// databases, called implicitly at EXEC/DISCARD and explicitly by
// UNWATCH.
func (e *Engine) unwatchAll(c *Conn) {
	for dbIdx, keys := range c.WatchedKeys {
		if db := e.store.DB(dbIdx); db != nil {
			db.UnwatchAll(c.ID, keys)
		}
	}
	c.WatchedKeys = make(map[int][]string)
}
