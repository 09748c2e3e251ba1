package consensus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
)

// marshalCommand encodes a Command the same way FSM.Apply decodes it.
func marshalCommand(cmd types.Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "encode_command_failed", "marshal command for replication", err)
	}
	return data, nil
}

// Snapshot is a point-in-time, lock-free-readable view of a Node's Raft
// status, published via atomic.Pointer after every observed state change
// so callers never dereference a raft.Raft instance directly.
type Snapshot struct {
	IsLeader     bool
	Leader       string
	Term         types.Term
	LastIndex    types.LogIndex
	AppliedIndex types.LogIndex
	Peers        int
}

// Node wraps a hashicorp/raft instance: bootstrap/join lifecycle, command
// submission, and a published status snapshot.
type Node struct {
	self types.NodeId
	cfg  Config

	raft *raft.Raft
	fsm  *FSM

	status            atomic.Pointer[Snapshot]
	leadershipChanges atomic.Uint64
	electionsWon      atomic.Uint64
}

// NewNode constructs a Node without starting Raft; call Bootstrap or Join
// to start serving.
func NewNode(self types.NodeId, cfg Config, fsm *FSM) *Node {
	n := &Node{self: self, cfg: cfg, fsm: fsm}
	n.status.Store(&Snapshot{})
	return n
}

func (n *Node) raftConfig() *raft.Config {
	c := raft.DefaultConfig()
	c.LocalID = raft.ServerID(n.self.String())
	c.HeartbeatTimeout = n.cfg.HeartbeatTimeout
	c.ElectionTimeout = n.cfg.ElectionTimeout
	c.CommitTimeout = n.cfg.CommitTimeout
	c.LeaderLeaseTimeout = n.cfg.LeaderLeaseTimeout
	return c
}

func (n *Node) buildRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", n.cfg.BindAddr)
	if err != nil {
		return nil, nil, prismerr.Wrap(prismerr.KindFatal, "resolve_bind_addr_failed", "resolve consensus bind address", err)
	}

	transport, err := raft.NewTCPTransport(n.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, prismerr.Wrap(prismerr.KindFatal, "transport_init_failed", "create Raft TCP transport", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(n.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, prismerr.Wrap(prismerr.KindFatal, "snapshot_store_init_failed", "create Raft snapshot store", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, prismerr.Wrap(prismerr.KindFatal, "log_store_init_failed", "create Raft log store", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, prismerr.Wrap(prismerr.KindFatal, "stable_store_init_failed", "create Raft stable store", err)
	}

	r, err := raft.NewRaft(n.raftConfig(), n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, prismerr.Wrap(prismerr.KindFatal, "raft_init_failed", "create Raft instance", err)
	}

	return r, transport, nil
}

// Bootstrap starts a brand new single-node cluster with this node as the
// only voter.
func (n *Node) Bootstrap() error {
	r, transport, err := n.buildRaft()
	if err != nil {
		return err
	}
	n.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(n.self.String()), Address: transport.LocalAddr()},
		},
	}
	if err := n.raft.BootstrapCluster(configuration).Error(); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "bootstrap_failed", "bootstrap Raft cluster", err)
	}

	go n.watchLeadership()
	log.WithReplicaID(n.self.String()).Info().Str("bind_addr", n.cfg.BindAddr).Msg("bootstrapped consensus node")
	return nil
}

// Join starts Raft on this node and expects the caller (the Coordinator,
// via an already-established transport connection to the leader) to have
// arranged for the leader to AddVoter this node's ID/address.
func (n *Node) Join() error {
	r, _, err := n.buildRaft()
	if err != nil {
		return err
	}
	n.raft = r

	go n.watchLeadership()
	log.WithReplicaID(n.self.String()).Info().Str("bind_addr", n.cfg.BindAddr).Msg("started consensus node, awaiting leader to add voter")
	return nil
}

// AddVoter adds a new voting member to the cluster. Only the leader can do
// this; hashicorp/raft rejects the call otherwise.
func (n *Node) AddVoter(id types.NodeId, address string) error {
	if n.raft == nil {
		return prismerr.New(prismerr.KindPrecondition, "not_started", "consensus node not started")
	}
	future := n.raft.AddVoter(raft.ServerID(id.String()), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return prismerr.Wrap(prismerr.KindTransient, "add_voter_failed", "add voter to Raft configuration", err)
	}
	return nil
}

// RemoveServer removes a member from the cluster (single-server
// membership change, per hashicorp/raft's supported mode).
func (n *Node) RemoveServer(id types.NodeId) error {
	if n.raft == nil {
		return prismerr.New(prismerr.KindPrecondition, "not_started", "consensus node not started")
	}
	future := n.raft.RemoveServer(raft.ServerID(id.String()), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return prismerr.Wrap(prismerr.KindTransient, "remove_server_failed", "remove server from Raft configuration", err)
	}
	return nil
}

// CreateSnapshot forces an immediate Raft snapshot of the current FSM
// state, truncating the log behind it once durable.
func (n *Node) CreateSnapshot() error {
	if n.raft == nil {
		return prismerr.New(prismerr.KindPrecondition, "not_started", "consensus node not started")
	}
	future := n.raft.Snapshot()
	if err := future.Error(); err != nil {
		return prismerr.Wrap(prismerr.KindTransient, "snapshot_failed", "force Raft snapshot", err)
	}
	return nil
}

// InstallSnapshot restores local FSM state from a previously captured
// snapshot, bypassing the log. Used to seed a node's state out of band
// (e.g. from a backup) before it joins or resumes replication.
func (n *Node) InstallSnapshot(data []byte) error {
	return n.fsm.Restore(io.NopCloser(bytes.NewReader(data)))
}

// ClusterNodes returns the NodeId/address pairs in the current Raft
// configuration.
func (n *Node) ClusterNodes() (map[types.NodeId]string, error) {
	if n.raft == nil {
		return nil, prismerr.New(prismerr.KindPrecondition, "not_started", "consensus node not started")
	}
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, prismerr.Wrap(prismerr.KindTransient, "get_configuration_failed", "read Raft configuration", err)
	}
	out := make(map[types.NodeId]string)
	for _, srv := range future.Configuration().Servers {
		id, err := types.ParseNodeId(string(srv.ID))
		if err != nil {
			continue
		}
		out[id] = string(srv.Address)
	}
	return out, nil
}

// SubmitCommand replicates cmd through the log and returns the apply
// callback's result once committed. RequestID is stamped by the caller
// (the Coordinator) before this is invoked.
func (n *Node) SubmitCommand(cmd types.Command) (any, error) {
	if n.raft == nil {
		return nil, prismerr.New(prismerr.KindPrecondition, "not_started", "consensus node not started")
	}
	if n.raft.State() != raft.Leader {
		return nil, prismerr.New(prismerr.KindPrecondition, "not_leader", fmt.Sprintf("current leader: %s", n.raft.Leader())).
			WithDetails(map[string]any{"leader": string(n.raft.Leader())})
	}

	data, err := marshalCommand(cmd)
	if err != nil {
		return nil, err
	}

	future := n.raft.Apply(data, n.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		return nil, prismerr.Wrap(prismerr.KindTransient, "apply_failed", "replicate command through Raft", err)
	}

	if resp := future.Response(); resp != nil {
		if applyErr, ok := resp.(error); ok {
			return nil, applyErr
		}
		return resp, nil
	}
	return nil, nil
}

func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

func (n *Node) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	return string(n.raft.Leader())
}

// LeaderID returns the currently known leader's NodeId, if any.
func (n *Node) LeaderID() (types.NodeId, bool) {
	if n.raft == nil {
		return types.NodeId{}, false
	}
	_, id := n.raft.LeaderWithID()
	if id == "" {
		return types.NodeId{}, false
	}
	nodeID, err := types.ParseNodeId(string(id))
	if err != nil {
		return types.NodeId{}, false
	}
	return nodeID, true
}

// Status returns the most recently published Snapshot; safe to call
// concurrently with Raft's own internal state transitions.
func (n *Node) Status() Snapshot {
	return *n.status.Load()
}

// watchLeadership republishes the Node's status snapshot once a second,
// so Status() never reads a stale value for more than one tick; a
// leadership change is noticed at the next tick.
func (n *Node) watchLeadership() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if n.raft == nil {
			return
		}
		snap := Snapshot{
			IsLeader:     n.raft.State() == raft.Leader,
			Leader:       string(n.raft.Leader()),
			Term:         types.Term(termFromStats(n.raft.Stats())),
			LastIndex:    types.LogIndex(n.raft.LastIndex()),
			AppliedIndex: types.LogIndex(n.raft.AppliedIndex()),
		}
		if cfgFuture := n.raft.GetConfiguration(); cfgFuture.Error() == nil {
			snap.Peers = len(cfgFuture.Configuration().Servers)
		}

		prev := n.status.Load()
		if prev != nil && prev.IsLeader != snap.IsLeader {
			n.leadershipChanges.Add(1)
			if snap.IsLeader {
				n.electionsWon.Add(1)
				metrics.RaftElectionsTotal.Inc()
			}
		}
		n.status.Store(&snap)

		metrics.RaftTerm.Set(float64(snap.Term))
		metrics.RaftLogIndex.Set(float64(snap.LastIndex))
		metrics.RaftAppliedIndex.Set(float64(snap.AppliedIndex))
		metrics.RaftPeers.Set(float64(snap.Peers))
		if snap.IsLeader {
			metrics.RaftLeader.Set(1)
		} else {
			metrics.RaftLeader.Set(0)
		}
	}
}

// termFromStats reads the current term out of raft.Raft.Stats(), the only
// place hashicorp/raft exposes it without a custom FSM hook.
func termFromStats(stats map[string]string) uint64 {
	v, err := strconv.ParseUint(stats["term"], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// LeadershipChanges returns the number of observed leader/follower
// transitions since this Node started.
func (n *Node) LeadershipChanges() uint64 {
	return n.leadershipChanges.Load()
}

// ElectionsWon returns the number of times this Node has become leader.
func (n *Node) ElectionsWon() uint64 {
	return n.electionsWon.Load()
}

// Shutdown stops the Raft instance.
func (n *Node) Shutdown() error {
	if n.raft == nil {
		return nil
	}
	if err := n.raft.Shutdown().Error(); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "shutdown_failed", "shut down Raft instance", err)
	}
	return nil
}
