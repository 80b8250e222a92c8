package replication

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alicekv/alicedb/internal/engine"
	"github.com/alicekv/alicedb/internal/rdb"
	"github.com/alicekv/alicedb/internal/storage"
)

// Role mirrors the teacher's replication.Role: a server is MASTER
// until SLAVEOF switches it, spec.md §4.7.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// SlaveLink is what the master keeps per connected slave: its write
// sink (the network layer's socket, handed over by AttachSlaveWriter),
// its acked offset, and its handshake state.
type SlaveLink struct {
	ID       engine.ConnID
	Addr     string
	Writer   io.Writer
	State    string // "syncing" | "online"
	Offset   int64
	LastACK  time.Time
	Priority int
}

// Config bundles the construction-time options (spec.md §6
// repl-backlog-size, repl-timeout, repl-ping-period).
type Config struct {
	BacklogSize int
	PingPeriod  time.Duration
	ReplTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BacklogSize: 1 << 20,
		PingPeriod:  10 * time.Second,
		ReplTimeout: 60 * time.Second,
	}
}

// Manager is the replication control plane wired into engine.Engine
// behind its narrow replPropagator/replControl interfaces (spec.md
// §4.7, §9's "naive thread sharing the live store" warning: Manager
// itself never touches the store directly, only through snapshotFn/
// loadFn/executor callbacks the server wiring supplies, all of which
// resolve onto the engine's single serializing goroutine).
type Manager struct {
	mu  sync.Mutex
	log *logrus.Logger
	cfg Config

	role   Role
	replID string

	backlog *Backlog
	slaves  map[engine.ConnID]*SlaveLink

	listeningPort string

	snapshotFn func() *storage.Snapshot
	loadFn     func(*storage.Snapshot)
	executor   func(argv []string)

	master *masterLink // non-nil once we are a slave
}

// NewManager builds a Manager starting out as MASTER with a fresh
// 40-hex-character replication id (spec.md GLOSSARY "Run-id", reused
// here as the replication id the teacher's generateReplID produces).
func NewManager(cfg Config, log *logrus.Logger) *Manager {
	if cfg.BacklogSize <= 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		log:     log,
		cfg:     cfg,
		role:    RoleMaster,
		replID:  generateReplID(),
		backlog: NewBacklog(cfg.BacklogSize),
		slaves:  make(map[engine.ConnID]*SlaveLink),
	}
}

func generateReplID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%040x", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", b)
}

// SetStoreAccessors wires the snapshot/load callbacks the server binds
// to engine.Engine.Store() (full resync body + slave-side load).
func (m *Manager) SetStoreAccessors(snapshot func() *storage.Snapshot, load func(*storage.Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotFn = snapshot
	m.loadFn = load
}

// SetExecutor wires the callback that runs a command received from
// our master against the local engine (spec.md §4.7 "executed with
// CONNECT_WITH_MASTER flag set").
func (m *Manager) SetExecutor(executor func(argv []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = executor
}

// SetListeningPort records this server's own port, sent to a master
// via REPLCONF listening-port during the handshake.
func (m *Manager) SetListeningPort(port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeningPort = port
}

// ReplID returns this instance's replication id.
func (m *Manager) ReplID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replID
}

// Propagate implements engine's replPropagator: append wire bytes to
// the backlog and fan them out to every online slave (spec.md §4.7
// "Master to slave propagation").
func (m *Manager) Propagate(wire []byte) {
	m.mu.Lock()
	m.backlog.Append(wire)
	slaves := make([]*SlaveLink, 0, len(m.slaves))
	for _, s := range m.slaves {
		if s.State == "online" {
			slaves = append(slaves, s)
		}
	}
	m.mu.Unlock()

	for _, s := range slaves {
		if _, err := s.Writer.Write(wire); err != nil {
			m.log.WithFields(logrus.Fields{"component": "replication", "slave": s.Addr}).WithError(err).Warn("propagate write failed")
			m.DetachSlave(s.ID)
		}
	}
}

// PSync implements engine's replControl: decide full vs. partial
// resync for an incoming PSYNC (spec.md §4.7). The network layer
// streams `snapshot` right after writing `header`, then calls
// AttachSlaveWriter once that transfer completes so Propagate starts
// reaching this slave.
func (m *Manager) PSync(c *engine.Conn, wantRunID string, wantOffset int64) (header string, snapshot []byte, fullResync bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if wantRunID == m.replID && wantOffset >= 0 && m.backlog.InWindow(wantOffset) {
		if data, ok := m.backlog.GetRange(wantOffset); ok {
			m.slaves[c.ID] = &SlaveLink{ID: c.ID, Addr: c.SlaveAddr, State: "syncing", Offset: wantOffset}
			m.log.WithFields(logrus.Fields{"component": "replication", "slave": c.SlaveAddr, "offset": wantOffset}).Info("partial resync accepted")
			return "+CONTINUE\r\n", data, false
		}
	}

	var buf bytes.Buffer
	if m.snapshotFn != nil {
		if err := rdb.EncodeSnapshot(&buf, m.snapshotFn()); err != nil {
			m.log.WithError(err).Error("failed to encode full-resync snapshot")
		}
	}
	offset := m.backlog.Offset()
	m.slaves[c.ID] = &SlaveLink{ID: c.ID, Addr: c.SlaveAddr, State: "syncing", Offset: offset}
	m.log.WithFields(logrus.Fields{"component": "replication", "slave": c.SlaveAddr, "offset": offset}).Info("full resync starting")
	return fmt.Sprintf("+FULLRESYNC %s %d\r\n", m.replID, offset), buf.Bytes(), true
}

// AttachSlaveWriter is called by the network layer once it has
// streamed the FULLRESYNC/CONTINUE body onto the wire for connection
// id, handing Manager the socket it should fan future writes into.
func (m *Manager) AttachSlaveWriter(id engine.ConnID, w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slaves[id]; ok {
		s.Writer = w
		s.State = "online"
		s.LastACK = time.Now()
	}
}

// DetachSlave removes a slave on disconnect or write failure.
func (m *Manager) DetachSlave(id engine.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slaves, id)
}

// ReplConfAck implements engine's replControl: record a slave's
// acknowledged offset (spec.md §4.7 "Heartbeats"). A gap within the
// backlog is simply closed on the next Propagate call since slaves
// receive every byte written after they go online; a gap beyond the
// backlog means the slave must reconnect and request a full resync,
// which it will do on its own once its read loop notices the missing
// bytes (mirrored here by leaving State alone: PSync decides next time).
func (m *Manager) ReplConfAck(c *engine.Conn, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slaves[c.ID]; ok {
		s.Offset = offset
		s.LastACK = time.Now()
	}
}

// Role implements engine's replControl INFO hook.
func (m *Manager) Role() (role, masterHost, masterPort, linkStatus string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role == RoleMaster {
		return "master", "", "", ""
	}
	if m.master == nil {
		return "slave", "", "", "down"
	}
	return "slave", m.master.host, m.master.port, string(m.master.state)
}

// ConnectedSlaves implements engine's replControl INFO hook.
func (m *Manager) ConnectedSlaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slaves {
		if s.State == "online" {
			n++
		}
	}
	return n
}

// MasterReplOffset implements engine's replControl INFO hook: our own
// backlog offset when we are a master, or the offset we have applied
// from our master when we are a slave.
func (m *Manager) MasterReplOffset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role == RoleMaster {
		return m.backlog.Offset()
	}
	if m.master != nil {
		return m.master.offset
	}
	return 0
}

// Slaves returns a snapshot of connected slave state, used by INFO and
// by Sentinel's INFO-scrape of a monitored master (spec.md §4.9).
func (m *Manager) Slaves() []SlaveLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SlaveLink, 0, len(m.slaves))
	for _, s := range m.slaves {
		out = append(out, *s)
	}
	return out
}
