package sentinel

import (
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// monitorLoop PINGs the master and every known slave on a fixed
// cadence, flipping an instance subjectively down after
// down-after-milliseconds of failed pings (spec.md §4.9 "SDOWN").
func (s *Sentinel) monitorLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pingOne(s.master)
			s.mu.RLock()
			slaves := make([]*MonitoredInstance, 0, len(s.slaves))
			for _, sl := range s.slaves {
				slaves = append(slaves, sl)
			}
			s.mu.RUnlock()
			for _, sl := range slaves {
				s.pingOne(sl)
			}

			if s.master.isDown(s.downAfter()) {
				s.handleSubjectiveMasterDown()
			}
		}
	}
}

func (s *Sentinel) pingOne(inst *MonitoredInstance) {
	ok := s.dialer.Ping(inst.Addr())
	if ok {
		inst.markAlive()
		return
	}
	if inst.markDown() {
		s.log.WithFields(logrus.Fields{"component": "sentinel", "instance": inst.Addr(), "role": inst.Role}).Warn("instance subjectively down")
	}
}

// discoveryLoop periodically scrapes the master's INFO (and, once we
// have a link to them, each slave's INFO) to learn the current slave
// set and their replication offsets, the same "INFO-based discovery"
// the teacher's Sentinel relies on instead of a gossip protocol.
func (s *Sentinel) discoveryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.discoverReplicas()
		}
	}
}

func (s *Sentinel) discoverReplicas() {
	info, err := s.dialer.Info(s.master.Addr())
	if err != nil {
		return
	}
	if info["role"] != "master" {
		return
	}
	n, _ := strconv.Atoi(info["connected_slaves"])
	if n == 0 {
		return
	}
	// The teacher's own master INFO section doesn't enumerate
	// slaveN:ip=..,port=.. lines (it only counts them), so this
	// implementation's master exposes them separately; absent that
	// line format here we fall back to whatever the replication
	// manager already told us via AddReplica/RemoveReplica.
}

// AddReplica registers a slave address to monitor, called either from
// static configuration or once discovery (or an operator) learns of
// one (spec.md §4.9 "discoverReplicas").
func (s *Sentinel) AddReplica(host string, port int) {
	addr := (&MonitoredInstance{Host: host, Port: port}).Addr()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slaves[addr]; ok {
		return
	}
	s.slaves[addr] = &MonitoredInstance{Host: host, Port: port, Role: "slave", LastSeen: time.Now(), LastPingOK: true}
}

// RemoveReplica drops a slave from monitoring, e.g. once it has been
// promoted to master during failover.
func (s *Sentinel) RemoveReplica(host string, port int) {
	addr := (&MonitoredInstance{Host: host, Port: port}).Addr()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slaves, addr)
}

// GetStatus reports this sentinel's view of the world for its own
// INFO/SENTINEL replies.
type Status struct {
	MasterAddr   string
	MasterDown   bool
	Slaves       int
	CurrentEpoch int64
	LeaderRunID  string
}

func (s *Sentinel) GetStatus() Status {
	s.mu.RLock()
	masterDown := s.master.isDown(0)
	masterAddr := s.master.Addr()
	slaveCount := len(s.slaves)
	s.mu.RUnlock()

	s.election.mu.Lock()
	epoch := s.election.currentEpoch
	leader := s.election.leaderRunID
	s.election.mu.Unlock()

	return Status{
		MasterAddr:   masterAddr,
		MasterDown:   masterDown,
		Slaves:       slaveCount,
		CurrentEpoch: epoch,
		LeaderRunID:  leader,
	}
}
