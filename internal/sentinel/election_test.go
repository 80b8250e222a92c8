package sentinel

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDialer lets election/failover tests script peer responses
// without opening real sockets.
type fakeDialer struct {
	mu          sync.Mutex
	pingOK      map[string]bool
	agreeDown   map[string]bool
	slaveOfCall []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{pingOK: make(map[string]bool), agreeDown: make(map[string]bool)}
}

func (f *fakeDialer) Ping(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingOK[addr]
}

func (f *fakeDialer) Info(addr string) (map[string]string, error) {
	return map[string]string{"role": "master", "connected_slaves": "0"}, nil
}

func (f *fakeDialer) SlaveOf(addr, host, port string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slaveOfCall = append(f.slaveOfCall, addr+"->"+host+":"+port)
	return nil
}

func (f *fakeDialer) AskIsMasterDownByAddr(peerAddr, masterHost string, masterPort int, epoch int64, runID string) (bool, string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agreeDown[peerAddr], runID, epoch, nil
}

func newTestSentinel(quorum int, peers []string) (*Sentinel, *fakeDialer) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	cfg := Config{
		MasterName:      "mymaster",
		MasterHost:      "10.0.0.1",
		MasterPort:      6379,
		Quorum:          quorum,
		DownAfterMillis: 100,
		PeerAddrs:       peers,
	}
	s := NewSentinel(cfg, log)
	fd := newFakeDialer()
	s.dialer = fd
	return s, fd
}

func TestHandleSubjectiveMasterDownReachesQuorumAndFailsOver(t *testing.T) {
	s, fd := newTestSentinel(2, []string{"peer1:26379", "peer2:26379"})
	fd.agreeDown["peer1:26379"] = true
	fd.agreeDown["peer2:26379"] = true

	s.AddReplica("10.0.0.2", 6379)
	s.slaves["10.0.0.2:6379"].Priority = 100
	s.master.Down = true
	s.master.DownSince = time.Now().Add(-time.Second)

	s.handleSubjectiveMasterDown()

	require.Eventually(t, func() bool {
		fd.mu.Lock()
		defer fd.mu.Unlock()
		return len(fd.slaveOfCall) > 0
	}, time.Second, 10*time.Millisecond)

	host, port := s.MasterAddr()
	assert.Equal(t, "10.0.0.2", host)
	assert.Equal(t, 6379, port)
}

func TestHandleSubjectiveMasterDownBelowQuorumDoesNothing(t *testing.T) {
	s, fd := newTestSentinel(3, []string{"peer1:26379"})
	fd.agreeDown["peer1:26379"] = false // peer disagrees

	s.master.Down = true
	s.master.DownSince = time.Now().Add(-time.Second)

	s.handleSubjectiveMasterDown()

	host, _ := s.MasterAddr()
	assert.Equal(t, "10.0.0.1", host, "master should not change without quorum")
	assert.Empty(t, fd.slaveOfCall)
}

func TestSelectBestReplicaPrefersPriorityThenOffset(t *testing.T) {
	s, _ := newTestSentinel(1, nil)
	low := &MonitoredInstance{Host: "a", Port: 1, Priority: 50, ReplOffset: 1000}
	high := &MonitoredInstance{Host: "b", Port: 2, Priority: 100, ReplOffset: 1}
	tie1 := &MonitoredInstance{Host: "c", Port: 3, Priority: 100, ReplOffset: 500}

	best := s.selectBestReplica([]*MonitoredInstance{low, high, tie1})
	assert.Equal(t, "c", best.Host, "equal top priority should break ties by highest offset")
}

func TestSelectBestReplicaSkipsDownInstances(t *testing.T) {
	s, _ := newTestSentinel(1, nil)
	down := &MonitoredInstance{Host: "a", Port: 1, Priority: 100, Down: true, DownSince: time.Now().Add(-time.Hour)}
	up := &MonitoredInstance{Host: "b", Port: 2, Priority: 1}

	best := s.selectBestReplica([]*MonitoredInstance{down, up})
	require.NotNil(t, best)
	assert.Equal(t, "b", best.Host)
}

func TestCmdIsMasterDownByAddrGrantsFirstVoteOnly(t *testing.T) {
	s, _ := newTestSentinel(2, nil)

	reply1 := s.cmdIsMasterDownByAddr([]string{"10.0.0.1", "6379", "5", "run-a"})
	reply2 := s.cmdIsMasterDownByAddr([]string{"10.0.0.1", "6379", "5", "run-b"})

	assert.Contains(t, string(reply1), "run-a")
	assert.Contains(t, string(reply2), "run-a", "second candidate in the same epoch should see the first vote, not its own")
}
