package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/storage"
)

func init() {
	register("PING", 1, flagAdmin, cmdPing)
	register("ECHO", 2, flagAdmin, cmdEcho)
	register("INFO", 1, flagAdmin, cmdInfo)
	register("CONFIG", 2, flagAdmin, cmdConfig)
	register("SAVE", 1, flagAdmin, cmdSave)
	register("BGSAVE", 1, flagAdmin, cmdBGSave)
	register("BGREWRITEAOF", 1, flagAdmin, cmdBGRewriteAOF)
	register("LASTSAVE", 1, flagAdmin, cmdLastSave)
	register("SLAVEOF", 3, flagAdmin, cmdSlaveOf)
	register("REPLICAOF", 3, flagAdmin, cmdSlaveOf)
	register("PSYNC", 3, flagAdmin, cmdPSync)
	register("REPLCONF", 2, flagAdmin, cmdReplConf)
}

func cmdPing(e *Engine, c *Conn, argv []string) []byte {
	if len(argv) > 1 {
		return protocol.EncodeBulkString(argv[1])
	}
	return protocol.EncodeSimpleString("PONG")
}

func cmdEcho(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeBulkString(argv[1])
}

// cmdInfo renders the subset of sections this server actually tracks:
// server identity, persistence counters and the replication role
// (spec.md §6's INFO fields: role, connected_slaves, master_host,
// master_port, master_link_status, master_repl_offset, run_id).
func cmdInfo(e *Engine, c *Conn, argv []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\nrun_id:%s\r\ntcp_port:%s\r\n", e.store.RunID(), configOr(e, "port", "6379"))

	fmt.Fprintf(&b, "# Persistence\r\nrdb_last_save_time:%d\r\naof_enabled:%s\r\n", e.LastSave(), configOr(e, "appendonly", "no"))

	b.WriteString("# Replication\r\n")
	if e.replCtl != nil {
		role, masterHost, masterPort, linkStatus := e.replCtl.Role()
		fmt.Fprintf(&b, "role:%s\r\n", role)
		if role == "master" {
			fmt.Fprintf(&b, "connected_slaves:%d\r\n", e.replCtl.ConnectedSlaves())
		} else {
			fmt.Fprintf(&b, "master_host:%s\r\nmaster_port:%s\r\nmaster_link_status:%s\r\n", masterHost, masterPort, linkStatus)
		}
		fmt.Fprintf(&b, "master_repl_offset:%d\r\n", e.replCtl.MasterReplOffset())
	} else {
		b.WriteString("role:master\r\nconnected_slaves:0\r\nmaster_repl_offset:0\r\n")
	}
	return protocol.EncodeBulkString(b.String())
}

func configOr(e *Engine, key, fallback string) string {
	if v, ok := e.ConfigGet(key); ok {
		return v
	}
	return fallback
}

func cmdConfig(e *Engine, c *Conn, argv []string) []byte {
	if len(argv) < 2 {
		return protocol.EncodeError(errSyntax.Error())
	}
	switch strings.ToUpper(argv[1]) {
	case "GET":
		if len(argv) != 3 {
			return protocol.EncodeError(errSyntax.Error())
		}
		out := []string{}
		for k, v := range e.ConfigSnapshot() {
			if ok, _ := storage.GlobMatch(argv[2], k); ok {
				out = append(out, k, v)
			}
		}
		return protocol.EncodeArray(out)
	case "SET":
		if len(argv) != 4 {
			return protocol.EncodeError(errSyntax.Error())
		}
		e.ConfigSet(strings.ToLower(argv[2]), argv[3])
		return protocol.EncodeSimpleString("OK")
	default:
		return protocol.EncodeError(fmt.Sprintf("ERR unknown CONFIG subcommand '%s'", argv[1]))
	}
}

func cmdSave(e *Engine, c *Conn, argv []string) []byte {
	if e.persist == nil {
		return protocol.EncodeError("ERR persistence is not configured")
	}
	if err := e.persist.Save(); err != nil {
		return protocol.EncodeError(err.Error())
	}
	e.ClearDirty()
	return protocol.EncodeSimpleString("OK")
}

func cmdBGSave(e *Engine, c *Conn, argv []string) []byte {
	if e.persist == nil {
		return protocol.EncodeError("ERR persistence is not configured")
	}
	e.persist.BGSave(func(err error) {
		if err == nil {
			e.ClearDirty()
		}
	})
	return protocol.EncodeSimpleString("Background saving started")
}

func cmdBGRewriteAOF(e *Engine, c *Conn, argv []string) []byte {
	if e.aof == nil {
		return protocol.EncodeError("ERR AOF is not enabled")
	}
	if rewriter, ok := e.aof.(interface{ Rewrite([][]string) error }); ok {
		go rewriter.Rewrite(e.snapshotCommands())
	}
	return protocol.EncodeSimpleString("Background append only file rewriting started")
}

// snapshotCommands flattens the current keyspace into the minimal
// command set that reconstructs it, the input BGREWRITEAOF's
// compaction needs.
func (e *Engine) snapshotCommands() [][]string {
	snap := e.store.Snapshot()
	var cmds [][]string
	for _, db := range snap.Databases {
		if len(db.Entries) == 0 {
			continue
		}
		cmds = append(cmds, []string{"SELECT", itoa(db.Index)})
		for _, entry := range db.Entries {
			cmds = append(cmds, commandsFor(entry)...)
		}
	}
	return cmds
}

func commandsFor(e storage.SnapshotEntry) [][]string {
	var out [][]string
	switch e.Value.Type {
	case storage.StringType:
		out = append(out, []string{"SET", e.Key, e.Value.Data.(string)})
	case storage.ListType:
		items := e.Value.Data.(*storage.List).ToSlice()
		out = append(out, append([]string{"RPUSH", e.Key}, items...))
	case storage.SetType:
		members := e.Value.Data.(*storage.Set).GetMembers()
		out = append(out, append([]string{"SADD", e.Key}, members...))
	case storage.HashType:
		h := e.Value.Data.(*storage.Hash)
		args := []string{"HSET", e.Key}
		for _, f := range h.Keys() {
			v, _ := h.Get(f)
			args = append(args, f, v)
		}
		out = append(out, args)
	case storage.ZSetType:
		args := []string{"ZADD", e.Key}
		for _, m := range e.Value.Data.(*storage.ZSet).GetAll() {
			args = append(args, storage.FormatScore(m.Score), m.Member)
		}
		out = append(out, args)
	}
	if e.ExpireAtMS > 0 {
		out = append(out, []string{"PEXPIRE", e.Key, strconv.FormatInt(e.ExpireAtMS, 10)})
	}
	return out
}

func cmdLastSave(e *Engine, c *Conn, argv []string) []byte {
	return protocol.EncodeInteger(e.LastSave())
}

func cmdSlaveOf(e *Engine, c *Conn, argv []string) []byte {
	if e.replCtl == nil {
		return protocol.EncodeError("ERR replication is not configured")
	}
	host, port := argv[1], argv[2]
	if strings.EqualFold(host, "NO") && strings.EqualFold(port, "ONE") {
		if err := e.replCtl.SlaveOf("", ""); err != nil {
			return protocol.EncodeError(err.Error())
		}
		return protocol.EncodeSimpleString("OK")
	}
	if err := e.replCtl.SlaveOf(host, port); err != nil {
		return protocol.EncodeError(err.Error())
	}
	return protocol.EncodeSimpleString("OK")
}

// cmdPSync returns the FULLRESYNC/CONTINUE header as its reply; the
// network layer is responsible for noticing c.ReplState flipped to
// ReplStreaming afterward and streaming the returned snapshot body
// followed by the live command stream (spec.md §4.7's handshake).
func cmdPSync(e *Engine, c *Conn, argv []string) []byte {
	if e.replCtl == nil {
		return protocol.EncodeError("ERR replication is not configured")
	}
	offset, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil {
		offset = -1
	}
	header, snapshot, full := e.replCtl.PSync(c, argv[1], offset)
	c.IsSlaveLink = true
	c.ReplState = ReplStreaming
	if full {
		c.PendingSnapshot = snapshot
	}
	return []byte(header)
}

func cmdReplConf(e *Engine, c *Conn, argv []string) []byte {
	if len(argv) < 2 {
		return protocol.EncodeError(errSyntax.Error())
	}
	switch strings.ToUpper(argv[1]) {
	case "LISTENING-PORT":
		if len(argv) >= 3 {
			c.SlaveAddr = argv[2]
		}
		return protocol.EncodeSimpleString("OK")
	case "CAPA":
		return protocol.EncodeSimpleString("OK")
	case "GETACK":
		return protocol.EncodeRawArray([][]byte{
			protocol.EncodeBulkString("REPLCONF"),
			protocol.EncodeBulkString("ACK"),
			protocol.EncodeBulkString(strconv.FormatInt(c.SlaveOffset, 10)),
		})
	case "ACK":
		if len(argv) >= 3 {
			if off, err := strconv.ParseInt(argv[2], 10, 64); err == nil {
				c.SlaveOffset = off
				if e.replCtl != nil {
					e.replCtl.ReplConfAck(c, off)
				}
			}
		}
		return nil
	default:
		return protocol.EncodeError(fmt.Sprintf("ERR unknown REPLCONF option '%s'", argv[1]))
	}
}
