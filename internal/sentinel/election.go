package sentinel

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// electionTick drives the periodic check that turns a long-standing
// SDOWN into an ODOWN vote round and, once this sentinel believes
// itself the elected leader, performs the failover (spec.md §4.9
// steps 3-6). Separate from monitorLoop so the election cadence
// (jittered, ~1s) can differ from the simple ping cadence.
func (s *Sentinel) electionTick() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(900+rand.Intn(200)) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.master.isDown(s.downAfter()) {
				s.handleSubjectiveMasterDown()
			}
		}
	}
}

// handleSubjectiveMasterDown asks every peer sentinel whether they
// also see the master down (spec.md §4.9 step 2 "asks other Sentinels
// if they agree") and promotes SDOWN to ODOWN once a quorum of voices,
// including itself, agree.
func (s *Sentinel) handleSubjectiveMasterDown() {
	s.election.mu.Lock()
	if s.election.failoverActive {
		s.election.mu.Unlock()
		return
	}
	s.election.mu.Unlock()

	s.mu.RLock()
	peers := make([]*MonitoredInstance, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	masterHost, masterPort := s.master.Host, s.master.Port
	s.mu.RUnlock()

	s.election.mu.Lock()
	candidateEpoch := s.election.currentEpoch + 1
	s.election.mu.Unlock()

	agree := 1 // we ourselves see it down
	var electedLeader string
	var electedEpoch int64
	for _, p := range peers {
		down, leaderRunID, leaderEpoch, err := s.dialer.AskIsMasterDownByAddr(p.Addr(), masterHost, masterPort, candidateEpoch, s.runID)
		if err != nil {
			continue
		}
		if down {
			agree++
		}
		if leaderEpoch > electedEpoch {
			electedEpoch = leaderEpoch
			electedLeader = leaderRunID
		}
	}

	if agree < s.cfg.Quorum {
		return
	}

	s.log.WithFields(logrus.Fields{"component": "sentinel", "agree": agree, "quorum": s.cfg.Quorum}).Warn("master objectively down")

	s.election.mu.Lock()
	if electedEpoch >= candidateEpoch && electedLeader != "" {
		// a peer already gathered enough votes for this epoch; adopt its
		// leadership instead of starting a competing round.
		s.election.currentEpoch = electedEpoch
		s.election.leaderEpoch = electedEpoch
		s.election.leaderRunID = electedLeader
		iAmLeader := electedLeader == s.runID
		s.election.mu.Unlock()
		if iAmLeader {
			s.runFailover(electedEpoch)
		}
		return
	}
	s.election.currentEpoch = candidateEpoch
	s.election.votedEpoch = candidateEpoch
	s.election.leaderRunID = s.runID
	s.election.leaderEpoch = candidateEpoch
	s.election.mu.Unlock()

	s.requestVotes(candidateEpoch, peers)
}

// requestVotes re-polls every peer at the bumped epoch; each peer
// grants its vote to the first candidate it hears from in that epoch
// (enforced by cmdIsMasterDownByAddr's votedEpoch check in
// server.go), mirroring Redis Sentinel's piggybacked leader election.
func (s *Sentinel) requestVotes(epoch int64, peers []*MonitoredInstance) {
	votes := 1 // vote for ourselves
	for _, p := range peers {
		_, leaderRunID, leaderEpoch, err := s.dialer.AskIsMasterDownByAddr(p.Addr(), s.master.Host, s.master.Port, epoch, s.runID)
		if err != nil {
			continue
		}
		if leaderEpoch == epoch && leaderRunID == s.runID {
			votes++
		}
	}

	if votes < s.cfg.Quorum {
		s.log.WithFields(logrus.Fields{"component": "sentinel", "epoch": epoch, "votes": votes}).Info("election did not reach quorum this round")
		return
	}

	s.log.WithFields(logrus.Fields{"component": "sentinel", "epoch": epoch, "votes": votes}).Info("won leader election")
	s.runFailover(epoch)
}

// runFailover performs the promotion sequence once this sentinel
// believes it holds the leader epoch: pick the best slave, promote it,
// repoint the rest, and update our own view of the master (spec.md
// §4.9 steps 4-6).
func (s *Sentinel) runFailover(epoch int64) {
	s.election.mu.Lock()
	if s.election.failoverActive {
		s.election.mu.Unlock()
		return
	}
	s.election.failoverActive = true
	s.election.failoverEpoch = epoch
	s.election.mu.Unlock()
	defer func() {
		s.election.mu.Lock()
		s.election.failoverActive = false
		s.election.mu.Unlock()
	}()

	s.mu.RLock()
	slaves := make([]*MonitoredInstance, 0, len(s.slaves))
	for _, sl := range s.slaves {
		slaves = append(slaves, sl)
	}
	s.mu.RUnlock()

	chosen := s.selectBestReplica(slaves)
	if chosen == nil {
		s.log.WithField("component", "sentinel").Error("failover aborted: no eligible replica")
		return
	}

	logger := s.log.WithFields(logrus.Fields{"component": "sentinel", "epoch": epoch, "new_master": chosen.Addr()})
	logger.Warn("starting failover")

	if err := s.dialer.SlaveOf(chosen.Addr(), "NO", "ONE"); err != nil {
		logger.WithError(err).Error("failed to promote replica")
		return
	}

	newHost, newPortStr := chosen.Host, strconv.Itoa(chosen.Port)
	for _, sl := range slaves {
		if sl.Addr() == chosen.Addr() {
			continue
		}
		if err := s.dialer.SlaveOf(sl.Addr(), newHost, newPortStr); err != nil {
			logger.WithError(err).WithField("slave", sl.Addr()).Warn("failed to reconfigure replica")
		}
	}

	s.mu.Lock()
	oldMaster := s.master
	s.master = chosen
	s.master.Role = "master"
	delete(s.slaves, chosen.Addr())
	oldMaster.Role = "slave"
	oldMaster.Down = false
	s.slaves[oldMaster.Addr()] = oldMaster
	s.mu.Unlock()

	logger.Warn("failover complete")
}

// selectBestReplica picks the slave with the highest declared
// priority, breaking ties by replication offset (spec.md §9's Open
// Question on slave-selection ranking — resolved here the same way as
// the teacher's promoteReplicaToMaster: priority first, freshest data
// second; see DESIGN.md).
func (s *Sentinel) selectBestReplica(slaves []*MonitoredInstance) *MonitoredInstance {
	var best *MonitoredInstance
	for _, sl := range slaves {
		if sl.isDown(s.downAfter()) {
			continue
		}
		if best == nil {
			best = sl
			continue
		}
		if sl.Priority != best.Priority {
			if sl.Priority > best.Priority {
				best = sl
			}
			continue
		}
		if sl.ReplOffset > best.ReplOffset {
			best = sl
		}
	}
	return best
}
