package sentinel

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alicekv/alicedb/internal/protocol"
)

// Serve accepts connections on addr and answers the minimal command
// subset peer sentinels and operators need: PING, INFO, and the
// SENTINEL subcommands used for quorum voting and client discovery
// (spec.md §4.9's "also dialed (command only)"). Blocks until the
// listener errors or addr can't be bound; callers run it in its own
// goroutine alongside Start().
func (s *Sentinel) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sentinel listen %s: %w", addr, err)
	}
	s.log.WithFields(logrus.Fields{"component": "sentinel", "addr": addr}).Info("sentinel command port listening")

	go func() {
		<-s.stopCh
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return err
			}
		}
		go s.serveConn(conn)
	}
}

func (s *Sentinel) serveConn(conn net.Conn) {
	defer conn.Close()
	var pending bytes.Buffer
	reader := bufio.NewReader(conn)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			for {
				consumed, argv, perr := protocol.ParseRequest(pending.Bytes())
				if perr != nil {
					if protocol.IsProtocolError(perr) {
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
				reply := s.dispatch(argv)
				if reply != nil {
					conn.Write(reply)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Sentinel) dispatch(argv []string) []byte {
	if len(argv) == 0 {
		return protocol.EncodeError("ERR empty command")
	}
	switch strings.ToUpper(argv[0]) {
	case "PING":
		return protocol.EncodeSimpleString("PONG")
	case "INFO":
		return protocol.EncodeBulkString(s.renderInfo())
	case "SENTINEL":
		return s.dispatchSentinel(argv[1:])
	default:
		return protocol.EncodeError(fmt.Sprintf("ERR unknown command '%s'", argv[0]))
	}
}

func (s *Sentinel) renderInfo() string {
	st := s.GetStatus()
	var b strings.Builder
	fmt.Fprintf(&b, "# Sentinel\r\nrun_id:%s\r\nmaster_addr:%s\r\nmaster_down:%v\r\nslaves:%d\r\ncurrent_epoch:%d\r\n",
		s.runID, st.MasterAddr, st.MasterDown, st.Slaves, st.CurrentEpoch)
	return b.String()
}

// dispatchSentinel implements the SENTINEL subcommand family the
// failover protocol and clients need: is-master-down-by-addr (the
// quorum/vote request), get-master-addr-by-name (client discovery),
// and masters/replicas (status introspection).
func (s *Sentinel) dispatchSentinel(argv []string) []byte {
	if len(argv) == 0 {
		return protocol.EncodeError("ERR wrong number of arguments for 'sentinel' command")
	}
	switch strings.ToLower(argv[0]) {
	case "is-master-down-by-addr":
		return s.cmdIsMasterDownByAddr(argv[1:])
	case "get-master-addr-by-name":
		host, port := s.MasterAddr()
		return protocol.EncodeArray([]string{host, strconv.Itoa(port)})
	case "masters":
		st := s.GetStatus()
		return protocol.EncodeArray([]string{"name", s.cfg.MasterName, "ip", st.MasterAddr, "down", fmt.Sprintf("%v", st.MasterDown)})
	case "replicas", "slaves":
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]string, 0, len(s.slaves)*2)
		for addr := range s.slaves {
			out = append(out, "addr", addr)
		}
		return protocol.EncodeArray(out)
	default:
		return protocol.EncodeError(fmt.Sprintf("ERR unknown SENTINEL subcommand '%s'", argv[0]))
	}
}

// cmdIsMasterDownByAddr answers a peer sentinel's down-state/vote
// request (spec.md §4.9 step 3). A vote is granted to the first
// candidate run-id seen for a given epoch; subsequent askers in the
// same epoch are told who already holds it, exactly like real Redis
// Sentinel's "leader" field piggybacked on this same command.
func (s *Sentinel) cmdIsMasterDownByAddr(args []string) []byte {
	if len(args) < 4 {
		return protocol.EncodeError("ERR wrong number of arguments")
	}
	reqEpoch, _ := strconv.ParseInt(args[2], 10, 64)
	reqRunID := args[3]

	down := s.master.isDown(s.downAfter())

	s.election.mu.Lock()
	if reqEpoch > s.election.currentEpoch {
		s.election.currentEpoch = reqEpoch
	}
	// Grant the vote to the first candidate seen for a new epoch; a
	// second distinct candidate asking about the same epoch is simply
	// told who already holds it.
	if reqEpoch > s.election.votedEpoch {
		s.election.votedEpoch = reqEpoch
		s.election.leaderRunID = reqRunID
		s.election.leaderEpoch = reqEpoch
	}
	leaderRunID := s.election.leaderRunID
	leaderEpoch := s.election.leaderEpoch
	s.election.mu.Unlock()
	if leaderRunID == "" {
		leaderRunID = "*"
	}

	downFlag := "0"
	if down {
		downFlag = "1"
	}
	return protocol.EncodeArray([]string{downFlag, leaderRunID, strconv.FormatInt(leaderEpoch, 10)})
}
