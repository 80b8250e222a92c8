package sentinel

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/alicekv/alicedb/internal/protocol"
)

// TCPDialer is the real wire client Sentinel uses to PING/INFO a
// monitored instance and to exchange SENTINEL subcommands with peer
// sentinels, a thin RESP request/reply helper grounded on the
// handshake style already used in internal/replication/replica.go.
type TCPDialer struct {
	Timeout time.Duration
}

func NewTCPDialer() *TCPDialer {
	return &TCPDialer{Timeout: 2 * time.Second}
}

func (d *TCPDialer) roundTrip(addr string, argv ...string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, d.Timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(d.Timeout))

	if _, err := conn.Write(protocol.EncodeCommand(argv)); err != nil {
		return "", err
	}
	r := bufio.NewReader(conn)
	return readReply(r)
}

// readReply reads one RESP reply and flattens it to a single string
// for the simple PING/INFO/SENTINEL exchanges this package needs; it
// does not need the full recursive array decoder the client library
// would since every reply here is a simple string, bulk string, error,
// or a flat array of bulk strings joined with spaces.
func readReply(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return "", fmt.Errorf("empty reply")
	}
	switch line[0] {
	case '+', '-', ':':
		return line[1:], nil
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", err
		}
		if n < 0 {
			return "", nil
		}
		buf := make([]byte, n+2)
		if _, err := readFullN(r, buf); err != nil {
			return "", err
		}
		return string(buf[:n]), nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil || n <= 0 {
			return "", nil
		}
		var parts []string
		for i := 0; i < n; i++ {
			p, err := readReply(r)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return strings.Join(parts, " "), nil
	default:
		return line, nil
	}
}

func readFullN(r *bufio.Reader, buf []byte) (int, error) {
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

// Ping implements Dialer.
func (d *TCPDialer) Ping(addr string) bool {
	reply, err := d.roundTrip(addr, "PING")
	return err == nil && strings.Contains(strings.ToUpper(reply), "PONG")
}

// Info implements Dialer, returning the flattened "key:value" lines of
// an INFO reply (spec.md §6 INFO fields) as a map.
func (d *TCPDialer) Info(addr string) (map[string]string, error) {
	reply, err := d.roundTrip(addr, "INFO")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.FieldsFunc(reply, func(r rune) bool { return r == ' ' || r == '\n' }) {
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			out[line[:idx]] = line[idx+1:]
		}
	}
	return out, nil
}

// SlaveOf implements Dialer: tell a monitored instance to change
// replication target (spec.md §4.9 step 6, "reconfigureReplicas").
func (d *TCPDialer) SlaveOf(addr, host, port string) error {
	reply, err := d.roundTrip(addr, "SLAVEOF", host, port)
	if err != nil {
		return err
	}
	if !strings.EqualFold(reply, "OK") {
		return fmt.Errorf("unexpected SLAVEOF reply %q", reply)
	}
	return nil
}

// AskIsMasterDownByAddr implements Dialer: the peer-to-peer quorum
// query of spec.md §4.9 step 3 ("SENTINEL is-master-down-by-addr").
// The reply is a 3-element array: down-state (0/1), the replying
// sentinel's current elected leader run-id (or "*"), and its epoch.
func (d *TCPDialer) AskIsMasterDownByAddr(peerAddr, masterHost string, masterPort int, epoch int64, runID string) (down bool, leaderRunID string, leaderEpoch int64, err error) {
	reply, err := d.roundTrip(peerAddr, "SENTINEL", "is-master-down-by-addr",
		masterHost, strconv.Itoa(masterPort), strconv.FormatInt(epoch, 10), runID)
	if err != nil {
		return false, "", 0, err
	}
	fields := strings.Fields(reply)
	if len(fields) < 3 {
		return false, "", 0, fmt.Errorf("malformed is-master-down-by-addr reply %q", reply)
	}
	down = fields[0] == "1"
	leaderRunID = fields[1]
	leaderEpoch, _ = strconv.ParseInt(fields[2], 10, 64)
	return down, leaderRunID, leaderEpoch, nil
}
