package replication

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alicekv/alicedb/internal/protocol"
	"github.com/alicekv/alicedb/internal/rdb"
)

// masterState tracks where we are in the SYNC_PING -> SYNC_CONF ->
// SYNC_WAIT -> SYNC_FULL -> streaming handshake of spec.md §4.7.
type masterState string

const (
	masterConnecting masterState = "connecting"
	masterSyncing    masterState = "sync"
	masterConnected  masterState = "connected"
	masterDown       masterState = "down"
)

// masterLink is the client-side connection to our master, held by
// Manager once SLAVEOF switches this instance to RoleSlave.
type masterLink struct {
	host, port string
	conn       net.Conn
	reader     *bufio.Reader
	writer     *bufio.Writer
	state      masterState
	offset     int64
	replID     string
	stopCh     chan struct{}
}

// SlaveOf implements engine's replControl: switch to slave mode and
// connect to the named master, or (host=="") revert to master mode
// (spec.md §4.7 "SLAVEOF <ip> <port>" / "SLAVEOF NO ONE").
func (m *Manager) SlaveOf(host, port string) error {
	m.mu.Lock()
	if host == "" {
		if m.master != nil {
			close(m.master.stopCh)
			if m.master.conn != nil {
				m.master.conn.Close()
			}
			m.master = nil
		}
		m.role = RoleMaster
		m.mu.Unlock()
		m.log.WithField("component", "replication").Info("promoted to master")
		return nil
	}

	if m.master != nil {
		close(m.master.stopCh)
		if m.master.conn != nil {
			m.master.conn.Close()
		}
	}
	link := &masterLink{host: host, port: port, state: masterConnecting, stopCh: make(chan struct{})}
	m.master = link
	m.role = RoleSlave
	m.mu.Unlock()

	go m.connectToMaster(link)
	return nil
}

// connectToMaster dials addr and runs the PING/REPLCONF/PSYNC
// handshake, then hands off to the streaming reader. Reconnects itself
// on failure unless SlaveOf has since replaced m.master.
func (m *Manager) connectToMaster(link *masterLink) {
	logger := m.log.WithFields(logrus.Fields{"component": "replication", "master": net.JoinHostPort(link.host, link.port)})

	addr := net.JoinHostPort(link.host, link.port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		logger.WithError(err).Warn("dial master failed, retrying")
		m.scheduleReconnect(link)
		return
	}

	link.conn = conn
	link.reader = bufio.NewReader(conn)
	link.writer = bufio.NewWriter(conn)

	if err := m.handshake(link); err != nil {
		logger.WithError(err).Warn("handshake failed")
		conn.Close()
		m.scheduleReconnect(link)
		return
	}

	logger.Info("handshake complete, streaming")
	m.streamFromMaster(link)

	m.mu.Lock()
	stillCurrent := m.master == link
	m.mu.Unlock()
	if stillCurrent {
		m.scheduleReconnect(link)
	}
}

func (m *Manager) scheduleReconnect(link *masterLink) {
	select {
	case <-link.stopCh:
		return
	default:
	}
	time.AfterFunc(5*time.Second, func() {
		select {
		case <-link.stopCh:
			return
		default:
		}
		m.mu.Lock()
		current := m.master == link
		m.mu.Unlock()
		if current {
			m.connectToMaster(link)
		}
	})
}

func (m *Manager) handshake(link *masterLink) error {
	send := func(argv ...string) error {
		_, err := link.writer.Write(protocol.EncodeCommand(argv))
		if err != nil {
			return err
		}
		return link.writer.Flush()
	}
	readLine := func() (string, error) {
		line, err := link.reader.ReadString('\n')
		return strings.TrimSpace(line), err
	}

	// SYNC_PING
	if err := send("PING"); err != nil {
		return fmt.Errorf("send PING: %w", err)
	}
	if resp, err := readLine(); err != nil || !strings.Contains(resp, "PONG") {
		return fmt.Errorf("PING reply %q: %w", resp, err)
	}

	// SYNC_CONF
	port := m.listeningPortOrDefault()
	if err := send("REPLCONF", "listening-port", port); err != nil {
		return fmt.Errorf("send REPLCONF listening-port: %w", err)
	}
	if _, err := readLine(); err != nil {
		return fmt.Errorf("REPLCONF listening-port reply: %w", err)
	}
	if err := send("REPLCONF", "capa", "psync2"); err != nil {
		return fmt.Errorf("send REPLCONF capa: %w", err)
	}
	if _, err := readLine(); err != nil {
		return fmt.Errorf("REPLCONF capa reply: %w", err)
	}

	// SYNC_WAIT
	link.state = masterSyncing
	var psyncErr error
	if link.replID == "" {
		psyncErr = send("PSYNC", "?", "-1")
	} else {
		psyncErr = send("PSYNC", link.replID, strconv.FormatInt(link.offset, 10))
	}
	if psyncErr != nil {
		return fmt.Errorf("send PSYNC: %w", psyncErr)
	}

	resp, err := readLine()
	if err != nil {
		return fmt.Errorf("PSYNC reply: %w", err)
	}

	switch {
	case strings.HasPrefix(resp, "+FULLRESYNC"):
		parts := strings.Fields(resp)
		if len(parts) < 3 {
			return fmt.Errorf("malformed FULLRESYNC reply %q", resp)
		}
		link.replID = parts[1]
		if off, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			link.offset = off
		}
		if err := m.receiveFullResync(link); err != nil {
			return fmt.Errorf("full resync body: %w", err)
		}
	case strings.HasPrefix(resp, "+CONTINUE"):
		// backlog bytes from wantOffset follow immediately as plain
		// command stream; nothing extra to consume here.
	default:
		return fmt.Errorf("unexpected PSYNC reply %q", resp)
	}

	link.state = masterConnected
	return nil
}

func (m *Manager) listeningPortOrDefault() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeningPort == "" {
		return "6379"
	}
	return m.listeningPort
}

// receiveFullResync reads the "$<len>\r\n<bytes>" bulk body PSync
// streams after +FULLRESYNC and loads it as a whole-store replacement
// (spec.md §4.7 "Slave replication data path").
func (m *Manager) receiveFullResync(link *masterLink) error {
	lenLine, err := link.reader.ReadString('\n')
	if err != nil {
		return err
	}
	lenLine = strings.TrimSpace(lenLine)
	if !strings.HasPrefix(lenLine, "$") {
		return fmt.Errorf("expected bulk length, got %q", lenLine)
	}
	n, err := strconv.Atoi(lenLine[1:])
	if err != nil {
		return fmt.Errorf("bad bulk length %q: %w", lenLine, err)
	}
	body := make([]byte, n)
	if _, err := readFull(link.reader, body); err != nil {
		return fmt.Errorf("read snapshot body: %w", err)
	}

	snap, err := rdb.DecodeSnapshot(bytes.NewReader(body))
	if err != nil {
		return err
	}
	m.mu.Lock()
	loadFn := m.loadFn
	m.mu.Unlock()
	if loadFn != nil {
		loadFn(snap)
	}
	return nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// streamFromMaster parses the live command stream exactly as ordinary
// client requests, routing each to the executor instead of replying
// (spec.md §4.7 "executed with CONNECT_WITH_MASTER flag set"). Every
// consumed byte advances link.offset so ACKs and partial resync stay
// accurate.
func (m *Manager) streamFromMaster(link *masterLink) {
	var pending bytes.Buffer
	chunk := make([]byte, 4096)
	ackTicker := time.NewTicker(1 * time.Second)
	defer ackTicker.Stop()

	go func() {
		for range ackTicker.C {
			m.mu.Lock()
			off := link.offset
			alive := m.master == link
			m.mu.Unlock()
			if !alive {
				return
			}
			ack := protocol.EncodeCommand([]string{"REPLCONF", "ACK", strconv.FormatInt(off, 10)})
			link.writer.Write(ack)
			link.writer.Flush()
		}
	}()

	for {
		select {
		case <-link.stopCh:
			return
		default:
		}
		link.conn.SetReadDeadline(time.Now().Add(m.cfg.ReplTimeout))
		n, err := link.conn.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])
			for {
				consumed, argv, perr := protocol.ParseRequest(pending.Bytes())
				if perr != nil || consumed == 0 {
					break
				}
				rest := append([]byte(nil), pending.Bytes()[consumed:]...)
				pending.Reset()
				pending.Write(rest)

				m.mu.Lock()
				link.offset += int64(consumed)
				m.mu.Unlock()

				m.handleMasterCommand(link, argv)
			}
		}
		if err != nil {
			m.log.WithFields(logrus.Fields{"component": "replication"}).WithError(err).Warn("master stream closed")
			return
		}
	}
}

func (m *Manager) handleMasterCommand(link *masterLink, argv []string) {
	if len(argv) == 0 {
		return
	}
	name := strings.ToUpper(argv[0])
	switch name {
	case "PING":
		return
	case "REPLCONF":
		if len(argv) >= 2 && strings.ToUpper(argv[1]) == "GETACK" {
			ack := protocol.EncodeCommand([]string{"REPLCONF", "ACK", strconv.FormatInt(link.offset, 10)})
			link.writer.Write(ack)
			link.writer.Flush()
		}
		return
	case "SELECT":
		// falls through to executor so the engine's own SELECT handler
		// moves its replication-stream database pointer.
	}
	m.mu.Lock()
	executor := m.executor
	m.mu.Unlock()
	if executor != nil {
		executor(argv)
	}
}
