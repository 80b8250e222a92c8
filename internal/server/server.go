// Package server wires the command engine (C2-C4, C8), the durability
// log (C6), the snapshot writer (C5), and replication (C7) behind a
// single TCP listener. Grounded on the teacher's internal/server
// accept-loop shape, rewritten around spec.md §5's explicit mandate:
// one goroutine per connection does I/O only, and every command is
// submitted onto a single channel drained by one serializing goroutine
// that alone calls engine.Execute — never a mutex shared across
// per-connection goroutines.
package server

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alicekv/alicedb/internal/aof"
	"github.com/alicekv/alicedb/internal/config"
	"github.com/alicekv/alicedb/internal/engine"
	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/rdb"
	"github.com/alicekv/alicedb/internal/replication"
	"github.com/alicekv/alicedb/internal/sysprobe"
)

// job is one parsed command handed from a connection goroutine to the
// single dispatch goroutine.
type job struct {
	conn   *engine.Conn
	argv   []string
	respCh chan []byte
}

// Server owns the listener, the engine, and every wired-in subsystem.
type Server struct {
	cfg *config.Config
	log *logrus.Logger

	eng  *engine.Engine
	repl *replication.Manager
	aofW *aof.Writer

	jobs     chan job
	nextConn int64

	mu    sync.Mutex
	conns map[engine.ConnID]*connHandle

	// replConn is the single connection used to submit every command
	// streamed from our master, reused across the whole link so that
	// MULTI/EXEC and SELECT state threads through it the same way a
	// real client connection would (spec.md §4.3, §4.6).
	replConn *engine.Conn
}

type connHandle struct {
	conn   net.Conn
	writer *syncWriter
}

// syncWriter serializes writes onto a socket shared between the
// connection's own reply path and the replication manager's
// slave-fanout writes once a PSYNC upgrades this connection to a
// streaming replica link.
type syncWriter struct {
	mu sync.Mutex
	w  net.Conn
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// New builds a fully wired Server: engine, AOF, RDB persister,
// replication manager, and memory probe, ready for Start.
func New(cfg *config.Config, log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.New()
	}

	var probe engine.MemoryProbe
	if gp, err := sysprobe.NewGopsutilProbe(); err == nil {
		probe = gp
	} else {
		log.WithError(err).Warn("memory probe unavailable, eviction by key count only")
	}

	eng := engine.New(engine.Config{
		NumDatabases:   cfg.Databases,
		MaxMemory:      uint64(cfg.Maxmemory),
		EvictionPolicy: evictionPolicyFromString(cfg.MaxmemoryPolicy),
		EvictionSample: cfg.MaxmemorySamples,
		MemProbe:       probe,
		Logger:         log,
	})
	seedConfig(eng, cfg)

	replConn := engine.NewConn(-2)
	replConn.IsMasterLink = true

	s := &Server{
		cfg:      cfg,
		log:      log,
		eng:      eng,
		jobs:     make(chan job, 256),
		conns:    make(map[engine.ConnID]*connHandle),
		replConn: replConn,
	}

	if cfg.AppendOnly {
		w, err := aof.NewWriter(aof.Config{
			Enabled:    true,
			Filepath:   cfg.AOFPath,
			SyncPolicy: syncPolicyFromString(cfg.AppendFsync),
			BufferSize: 4096,
		})
		if err != nil {
			return nil, fmt.Errorf("server: open AOF: %w", err)
		}
		s.aofW = w
		eng.SetAOF(w)
	}

	persist := newFilePersister(cfg.RDBPath, eng.Store().Snapshot)
	eng.SetPersister(persist)

	replCfg := replication.Config{
		BacklogSize: cfg.ReplBacklogSize,
		PingPeriod:  time.Duration(cfg.ReplPingPeriod),
		ReplTimeout: time.Duration(cfg.ReplTimeout),
	}
	mgr := replication.NewManager(replCfg, log)
	mgr.SetStoreAccessors(eng.Store().Snapshot, eng.Store().LoadSnapshot)
	mgr.SetListeningPort(strconv.Itoa(cfg.Port))
	mgr.SetExecutor(func(argv []string) {
		s.submitFromReplication(argv)
	})
	s.repl = mgr
	eng.SetReplication(mgr)
	eng.SetReplControl(mgr)

	return s, nil
}

func seedConfig(eng *engine.Engine, cfg *config.Config) {
	eng.ConfigSet("maxmemory", strconv.FormatInt(cfg.Maxmemory, 10))
	eng.ConfigSet("maxmemory-policy", cfg.MaxmemoryPolicy)
	eng.ConfigSet("maxmemory-samples", strconv.Itoa(cfg.MaxmemorySamples))
	eng.ConfigSet("appendonly", boolStr(cfg.AppendOnly))
	eng.ConfigSet("appendfsync", cfg.AppendFsync)
	eng.ConfigSet("slowlog-log-slower-than", cfg.SlowlogLogSlowerThan.String())
	eng.ConfigSet("slowlog-max-len", strconv.Itoa(cfg.SlowlogMaxLen))
	eng.ConfigSet("port", strconv.Itoa(cfg.Port))
}

func boolStr(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func evictionPolicyFromString(s string) engine.EvictionPolicy {
	switch s {
	case "allkeys-lru":
		return engine.EvictionAllKeysLRU
	case "volatile-lru":
		return engine.EvictionVolatileLRU
	case "allkeys-random":
		return engine.EvictionAllKeysRandom
	case "volatile-random":
		return engine.EvictionVolatileRandom
	case "volatile-ttl":
		return engine.EvictionVolatileTTL
	default:
		return engine.EvictionNone
	}
}

func syncPolicyFromString(s string) aof.SyncPolicy {
	switch s {
	case "always":
		return aof.SyncAlways
	case "no":
		return aof.SyncNo
	default:
		return aof.SyncEverySecond
	}
}

// LoadOnStartup replays the AOF if enabled, else loads the RDB file if
// one exists, mirroring the teacher's boot sequence preference for AOF
// over RDB when both are present (spec.md §4.6's "replayed in full on
// startup").
func (s *Server) LoadOnStartup() error {
	if s.cfg.AppendOnly {
		cmds, err := aof.LoadAll(s.cfg.AOFPath)
		if err != nil {
			return fmt.Errorf("server: load AOF: %w", err)
		}
		// Replaying must not re-append into the very file being read,
		// and every EX/PX/EXPIRE argument in the log is already an
		// absolute deadline (spec.md §4.6) rather than one to rebase
		// against the current clock.
		s.eng.SetAOF(nil)
		s.eng.SetReplication(nil)
		defer func() {
			s.eng.SetAOF(s.aofW)
			s.eng.SetReplication(s.repl)
		}()
		conn := engine.NewConn(-1)
		conn.ReplaySource = true
		for _, argv := range cmds {
			s.eng.Execute(conn, argv)
		}
		return nil
	}
	snap, err := rdb.Load(s.cfg.RDBPath)
	if err != nil {
		return nil // nolint:nilerr -- absent dump file is not an error on first boot
	}
	s.eng.Store().LoadSnapshot(snap)
	return nil
}

// submitFromReplication runs a command received from our master. It
// goes through the same single job channel as client commands so it
// never races the dispatch goroutine (spec.md §5).
func (s *Server) submitFromReplication(argv []string) {
	resp := make(chan []byte, 1)
	s.jobs <- job{conn: s.replConn, argv: argv, respCh: resp}
	<-resp
}

// Start runs the dispatch goroutine and blocks accepting connections
// on cfg.IP:cfg.Port until the listener errors.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.IP, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.log.WithFields(logrus.Fields{"component": "server", "addr": addr}).Info("listening")

	go s.dispatchLoop()

	if s.cfg.SlaveOf != "" {
		host, port, splitErr := net.SplitHostPort(s.cfg.SlaveOf)
		if splitErr == nil {
			s.repl.SlaveOf(host, port)
		}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// dispatchLoop is the single serializing goroutine spec.md §5
// requires: it alone calls engine.Execute and engine.Tick, so every
// handler in internal/engine can assume exclusive access to the store
// without locking.
func (s *Server) dispatchLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.eng.Tick()
			s.maybeAutoSave()
		case j, ok := <-s.jobs:
			if !ok {
				return
			}
			reply := s.eng.Execute(j.conn, j.argv)
			j.respCh <- reply
		}
	}
}

func (s *Server) maybeAutoSave() {
	dirty := s.eng.DirtyCount()
	if dirty == 0 {
		return
	}
	for _, sp := range s.cfg.Save {
		if dirty >= int64(sp.Changes) && time.Now().Unix()-s.eng.LastSave() >= int64(sp.Seconds) {
			snap := s.eng.Store().Snapshot()
			go func() {
				if err := rdb.Save(s.cfg.RDBPath, snap); err != nil {
					s.log.WithError(err).Error("auto-save failed")
					return
				}
				s.eng.ClearDirty()
			}()
			return
		}
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	id := atomic.AddInt64(&s.nextConn, 1)
	conn := engine.NewConn(id)
	writer := &syncWriter{w: netConn}

	s.mu.Lock()
	s.conns[id] = &connHandle{conn: netConn, writer: writer}
	s.mu.Unlock()

	s.eng.Register(conn)
	logger := s.log.WithFields(logrus.Fields{"component": "server", "conn_id": id})

	defer func() {
		netConn.Close()
		s.eng.Unregister(conn)
		if conn.IsSlaveLink {
			s.repl.DetachSlave(conn.ID)
		}
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	var pending bytes.Buffer
	reader := bufio.NewReader(netConn)
	buf := make([]byte, 4096)

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			for {
				consumed, argv, perr := protocol.ParseRequest(pending.Bytes())
				if perr != nil {
					if protocol.IsProtocolError(perr) {
						writer.Write(protocol.EncodeError(perr.Error()))
						return
					}
					break // ErrNeedMore: wait for more bytes
				}
				if consumed == 0 {
					break
				}
				rest := append([]byte(nil), pending.Bytes()[consumed:]...)
				pending.Reset()
				pending.Write(rest)

				if len(argv) == 0 {
					continue
				}

				resp := make(chan []byte, 1)
				s.jobs <- job{conn: conn, argv: argv, respCh: resp}
				reply := <-resp

				if reply == nil && conn.Blocked {
					result := <-conn.Wake
					reply = result.Reply
				}
				if reply != nil {
					if _, err := writer.Write(reply); err != nil {
						return
					}
				}

				if conn.IsSlaveLink && conn.ReplState == engine.ReplStreaming && conn.PendingSnapshot != nil {
					s.streamFullResync(conn, writer)
				}
			}
		}
		if readErr != nil {
			logger.WithError(readErr).Debug("connection closed")
			return
		}
	}
}

// streamFullResync writes the RDB body PSync queued onto the slave
// socket as a bulk string, then attaches the connection's writer to
// the replication manager so future Propagate calls reach it (spec.md
// §4.7's "full-resync transfer" step).
func (s *Server) streamFullResync(conn *engine.Conn, writer *syncWriter) {
	body := conn.PendingSnapshot
	conn.PendingSnapshot = nil
	header := []byte("$" + strconv.Itoa(len(body)) + "\r\n")
	writer.Write(header)
	writer.Write(body)
	s.repl.AttachSlaveWriter(conn.ID, writer)
}

// Shutdown flushes the AOF and writes a final snapshot before the
// process exits (spec.md §6's implied clean-shutdown contract).
func (s *Server) Shutdown() {
	if s.aofW != nil {
		s.aofW.Sync()
		s.aofW.Close()
	}
	snap := s.eng.Store().Snapshot()
	if err := rdb.Save(s.cfg.RDBPath, snap); err != nil {
		s.log.WithError(err).Error("shutdown save failed")
	}
}
