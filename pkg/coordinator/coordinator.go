// Package coordinator glues the consensus log, the CRDT kernel, and the
// blob store together. It is the only component that creates
// cross-component references (a committed CRDT mutation referencing a
// blob hash, a blob hash entering the garbage-collection root set) and it
// performs no I/O of its own beyond what those three components expose.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prism-io/prism/pkg/blobstore"
	"github.com/prism-io/prism/pkg/consensus"
	"github.com/prism-io/prism/pkg/crdtkernel"
	"github.com/prism-io/prism/pkg/events"
	"github.com/prism-io/prism/pkg/health"
	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/transport"
	"github.com/prism-io/prism/pkg/types"
)

// Config wires a Coordinator's dependencies. The caller is responsible for
// constructing the blob store and the consensus configuration; the
// Coordinator builds the kernel, sync manager, transport, and FSM/node on
// top of them.
type Config struct {
	Self            types.NodeId
	ConsensusConfig consensus.Config
	TransportConfig transport.Config
	SyncConfig      crdtkernel.SyncConfig
	Blobs           blobstore.Store
}

// Coordinator is PRISM's thin orchestrator: it owns a consensus Node, a
// CRDT kernel, a blob store handle, a transport, and the anti-entropy
// sync manager binding the kernel to the transport.
type Coordinator struct {
	self types.NodeId

	node      *consensus.Node
	kernel    *crdtkernel.Kernel
	blobs     blobstore.Store
	sync      *crdtkernel.SyncManager
	transport *transport.Transport
	events    *events.Broker

	rootsMu sync.RWMutex
	roots   map[string]struct{}

	statsMu         sync.Mutex
	commandsApplied uint64
	totalLatency    time.Duration

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
}

// countingSender wraps a crdtkernel.Sender to tally outbound anti-entropy
// messages for the Coordinator's metrics snapshot.
type countingSender struct {
	crdtkernel.Sender
	count *atomic.Uint64
}

func (s countingSender) SendSync(peer types.NodeId, msg crdtkernel.SyncMessage) error {
	if err := s.Sender.SendSync(peer, msg); err != nil {
		return err
	}
	s.count.Add(1)
	return nil
}

// New constructs a Coordinator without starting it; call Bootstrap or Join
// to begin serving.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		self:   cfg.Self,
		kernel: crdtkernel.New(cfg.Self),
		blobs:  cfg.Blobs,
		roots:  make(map[string]struct{}),
		events: events.NewBroker(),
	}

	c.transport = transport.NewTransport(cfg.TransportConfig, c.handleSyncMessage)
	sender := countingSender{Sender: c.transport, count: &c.messagesSent}
	c.sync = crdtkernel.NewSyncManager(c.kernel, sender, cfg.SyncConfig)

	fsm := consensus.NewFSM(cfg.Self, c.applyEntry, c)
	c.node = consensus.NewNode(cfg.Self, cfg.ConsensusConfig, fsm)

	return c
}

func (c *Coordinator) handleSyncMessage(peer types.NodeId, msg crdtkernel.SyncMessage) error {
	c.messagesReceived.Add(1)
	return c.sync.HandleMessage(peer, msg)
}

// Bootstrap starts the transport and anti-entropy loop, then bootstraps a
// brand-new single-node consensus cluster.
func (c *Coordinator) Bootstrap() error {
	c.events.Start()
	if err := c.transport.Start(); err != nil {
		return err
	}
	c.sync.Start()
	if err := c.node.Bootstrap(); err != nil {
		return err
	}
	log.WithReplicaID(c.self.String()).Info().Msg("coordinator bootstrapped")
	return nil
}

// Join starts the transport and anti-entropy loop, then starts the local
// consensus node awaiting a leader-issued AddVoter call.
func (c *Coordinator) Join() error {
	c.events.Start()
	if err := c.transport.Start(); err != nil {
		return err
	}
	c.sync.Start()
	if err := c.node.Join(); err != nil {
		return err
	}
	log.WithReplicaID(c.self.String()).Info().Msg("coordinator joined, awaiting leader")
	return nil
}

// Stop shuts down the consensus node, anti-entropy loop, transport, and
// event broker.
func (c *Coordinator) Stop() error {
	c.sync.Stop()
	c.events.Stop()
	if err := c.transport.Stop(); err != nil {
		return err
	}
	return c.node.Shutdown()
}

// Events returns the Coordinator's event broker, letting external callers
// subscribe to consensus/blobstore/CRDT lifecycle notifications.
func (c *Coordinator) Events() *events.Broker { return c.events }

// AddPeer registers a peer's transport dial address and adds it to the
// anti-entropy peer set. Call this for every other cluster member before
// relying on sync or AddVoter. The address is probed in the background;
// an unreachable peer is still registered since the transport layer
// retries dials independently, but the operator gets early signal.
func (c *Coordinator) AddPeer(id types.NodeId, addr string) {
	c.transport.AddPeer(id, addr)
	c.sync.AddPeer(id)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		checker := health.NewTCPChecker(addr)
		if result := checker.Check(ctx); !result.Healthy {
			log.WithComponent("coordinator").Warn().
				Str("peer", id.String()).
				Str("addr", addr).
				Str("reason", result.Message).
				Msg("peer unreachable at registration")
		}
	}()
}

// RemovePeer drops a peer from the transport and anti-entropy peer sets.
func (c *Coordinator) RemovePeer(id types.NodeId) {
	c.transport.RemovePeer(id)
	c.sync.RemovePeer(id)
}

// SubmitCommand forwards cmd to the consensus engine and waits for
// commit-and-apply, translating the consensus layer's errors into the
// Coordinator's own taxonomy. A zero RequestID is replaced with a fresh one.
func (c *Coordinator) SubmitCommand(cmd types.Command) (any, error) {
	if cmd.RequestID == uuid.Nil {
		cmd.RequestID = uuid.New()
	}
	result, err := c.node.SubmitCommand(cmd)
	if err != nil {
		return nil, c.translateError(err)
	}
	return result, nil
}

// translateError maps a *prismerr.Error surfaced by the consensus layer
// onto the Coordinator-level error codes exposed to external callers.
func (c *Coordinator) translateError(err error) error {
	var pe *prismerr.Error
	if e, ok := err.(*prismerr.Error); ok {
		pe = e
	} else {
		return err
	}

	switch pe.Code {
	case "not_leader":
		details := map[string]any{}
		if leader, ok := c.node.LeaderID(); ok {
			details["leader_hint"] = leader.String()
		}
		return prismerr.New(prismerr.KindPrecondition, "NotLeader", "this node is not the consensus leader").WithDetails(details)
	case "apply_failed":
		return prismerr.Wrap(prismerr.KindTransient, "Timeout", "command did not commit before deadline", pe)
	default:
		return pe
	}
}

func (c *Coordinator) IsLeader() bool { return c.node.IsLeader() }

func (c *Coordinator) LeaderID() (types.NodeId, bool) { return c.node.LeaderID() }

// ClusterNodes returns the NodeId/address pairs of the current consensus
// configuration.
func (c *Coordinator) ClusterNodes() (map[types.NodeId]string, error) {
	nodes, err := c.node.ClusterNodes()
	if err != nil {
		return nil, c.translateError(err)
	}
	return nodes, nil
}

// AddNode adds id/addr as a new voting consensus member and registers it
// as a transport/anti-entropy peer. Only the leader can do this.
func (c *Coordinator) AddNode(id types.NodeId, addr string) error {
	if err := c.node.AddVoter(id, addr); err != nil {
		return c.translateError(err)
	}
	c.AddPeer(id, addr)
	c.events.Publish(&events.Event{Type: events.EventNodeJoined, Message: id.String()})
	return nil
}

// RemoveNode removes id from the consensus configuration and from the
// transport/anti-entropy peer sets.
func (c *Coordinator) RemoveNode(id types.NodeId) error {
	if err := c.node.RemoveServer(id); err != nil {
		return c.translateError(err)
	}
	c.RemovePeer(id)
	c.events.Publish(&events.Event{Type: events.EventNodeRemoved, Message: id.String()})
	return nil
}

// CreateSnapshot forces an immediate consensus snapshot.
func (c *Coordinator) CreateSnapshot() error {
	if err := c.node.CreateSnapshot(); err != nil {
		return c.translateError(err)
	}
	c.events.Publish(&events.Event{Type: events.EventSnapshotTaken})
	return nil
}

// InstallSnapshot restores local Coordinator state (CRDT kernel slots and
// the blob GC root set) from a previously captured snapshot.
func (c *Coordinator) InstallSnapshot(data []byte) error {
	if err := c.node.InstallSnapshot(data); err != nil {
		return c.translateError(err)
	}
	return nil
}

// Kernel returns the underlying CRDT kernel, for callers that need typed
// read access (Get/Names/Statistics) outside of the replicated command
// path.
func (c *Coordinator) Kernel() *crdtkernel.Kernel { return c.kernel }

// Blobs returns the underlying blob store.
func (c *Coordinator) Blobs() blobstore.Store { return c.blobs }

// BlobStatistics implements metrics.Source, letting the periodic
// collector pull blob store totals into gauges.
func (c *Coordinator) BlobStatistics() metrics.BlobStats {
	if c.blobs == nil {
		return metrics.BlobStats{}
	}
	stats := c.blobs.Statistics()
	return metrics.BlobStats{
		TotalBlocks:       stats.TotalBlocks,
		TotalStoredBytes:  stats.TotalStoredBytes,
		DedupSavedBytes:   stats.DedupSavedBytes,
		IntegrityFailures: stats.IntegrityFailures,
	}
}

// CommandLatency implements metrics.Source.
func (c *Coordinator) CommandLatency() time.Duration {
	return c.Metrics().AverageLatency
}

// LeadershipChanges implements metrics.Source.
func (c *Coordinator) LeadershipChanges() uint64 {
	return c.node.LeadershipChanges()
}

// RootProvider returns the set of blob hashes currently reachable from
// applied CRDT state or log entries, matching blobstore.RootProvider so
// it can be passed straight into blobstore.NewGCLoop.
func (c *Coordinator) RootProvider() map[string]struct{} {
	c.rootsMu.RLock()
	defer c.rootsMu.RUnlock()
	out := make(map[string]struct{}, len(c.roots))
	for h := range c.roots {
		out[h] = struct{}{}
	}
	return out
}

func (c *Coordinator) addRoot(hash string) {
	c.rootsMu.Lock()
	c.roots[hash] = struct{}{}
	c.rootsMu.Unlock()
	c.events.Publish(&events.Event{Type: events.EventBlobStored, Message: hash})
}

func (c *Coordinator) removeRoot(hash string) {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()
	delete(c.roots, hash)
}

// applyEntry is the consensus.ApplyFunc installed on the FSM. It
// dispatches a committed log entry's command to the CRDT kernel or the
// blob manifest root set depending on Kind, recording latency for the
// Coordinator's own metrics snapshot.
func (c *Coordinator) applyEntry(entry *types.LogEntry) (any, error) {
	start := time.Now()
	result, err := c.dispatch(entry)

	c.statsMu.Lock()
	c.commandsApplied++
	c.totalLatency += time.Since(start)
	c.statsMu.Unlock()

	if err == nil {
		c.events.Publish(&events.Event{Type: events.EventEntryApplied, Message: string(entry.Command.Kind)})
	}
	return result, err
}

func (c *Coordinator) dispatch(entry *types.LogEntry) (any, error) {
	switch entry.Command.Kind {
	case types.CommandCRDTOperation:
		var op Operation
		if err := unmarshalPayload(entry.Command.Payload, &op); err != nil {
			return nil, err
		}
		return applyOperation(c.kernel, op)
	case types.CommandBlobManifest:
		var me ManifestEntry
		if err := unmarshalPayload(entry.Command.Payload, &me); err != nil {
			return nil, err
		}
		switch me.Op {
		case ManifestOpAddRoot:
			c.addRoot(me.Hash)
		case ManifestOpRemoveRoot:
			c.removeRoot(me.Hash)
		default:
			return nil, prismerr.New(prismerr.KindPrecondition, "invalid_operation", fmt.Sprintf("unknown manifest operation %q", me.Op))
		}
		return nil, nil
	default:
		// Other command kinds (agent assignment, status updates, ...) are
		// application-level concerns layered on top of the replicated log;
		// the Coordinator itself only knows how to apply its two built-in
		// subsystems and otherwise leaves the entry applied-but-inert.
		return nil, nil
	}
}

// Metrics is the Coordinator-level status snapshot exposed to external
// callers: consensus health plus cumulative counters the consensus layer
// alone does not track.
type Metrics struct {
	Term              types.Term
	IsLeader          bool
	LeaderID          string
	LastLogIndex      types.LogIndex
	AppliedIndex      types.LogIndex
	Peers             int
	ElectionsHeld     uint64
	LeadershipChanges uint64
	CommandsApplied   uint64
	AverageLatency    time.Duration
	MessagesSent      uint64
	MessagesReceived  uint64
}

// Metrics aggregates the consensus node's status snapshot with the
// Coordinator's own cumulative counters.
func (c *Coordinator) Metrics() Metrics {
	status := c.node.Status()

	c.statsMu.Lock()
	applied := c.commandsApplied
	total := c.totalLatency
	c.statsMu.Unlock()

	var avg time.Duration
	if applied > 0 {
		avg = total / time.Duration(applied)
	}

	return Metrics{
		Term:              status.Term,
		IsLeader:          status.IsLeader,
		LeaderID:          status.Leader,
		LastLogIndex:      status.LastIndex,
		AppliedIndex:      status.AppliedIndex,
		Peers:             status.Peers,
		ElectionsHeld:     c.node.ElectionsWon(),
		LeadershipChanges: c.node.LeadershipChanges(),
		CommandsApplied:   applied,
		AverageLatency:    avg,
		MessagesSent:      c.messagesSent.Load(),
		MessagesReceived:  c.messagesReceived.Load(),
	}
}
