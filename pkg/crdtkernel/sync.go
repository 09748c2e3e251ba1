package crdtkernel

import (
	"fmt"
	"sync"
	"time"

	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
	"github.com/rs/zerolog"
)

// SyncMessageKind names one of the five anti-entropy message shapes.
type SyncMessageKind string

const (
	SyncKindStateSummary SyncMessageKind = "state_summary"
	SyncKindFullState    SyncMessageKind = "full_state"
	SyncKindDeltaUpdate  SyncMessageKind = "delta_update"
	SyncKindStateRequest SyncMessageKind = "state_request"
	SyncKindAck          SyncMessageKind = "ack"
)

// SyncMessage is the wire envelope carried by the transport for CRDT
// anti-entropy traffic. Exactly one of the kind-matched payload fields is
// set, matching Kind.
type SyncMessage struct {
	Kind SyncMessageKind `msgpack:"kind"`
	Slot string          `msgpack:"slot"`

	Summary *StateSummaryPayload `msgpack:"summary,omitempty"`
	Full    *FullStatePayload    `msgpack:"full,omitempty"`
	Delta   *DeltaUpdatePayload  `msgpack:"delta,omitempty"`
	Request *StateRequestPayload `msgpack:"request,omitempty"`
	Ack     *AckPayload          `msgpack:"ack,omitempty"`
}

type StateSummaryPayload struct {
	Clock types.VectorClock `msgpack:"clock"`
	Hash  string            `msgpack:"hash"`
}

type FullStatePayload struct {
	Clock types.VectorClock `msgpack:"clock"`
	State []byte            `msgpack:"state"`
}

type DeltaUpdatePayload struct {
	BaseClock types.VectorClock `msgpack:"base_clock"`
	Delta     []byte            `msgpack:"delta"`
}

type StateRequestPayload struct {
	Since *types.VectorClock `msgpack:"since,omitempty"`
}

type AckPayload struct {
	Clock types.VectorClock `msgpack:"clock"`
}

// PeerSyncState is the per-(peer, slot) anti-entropy state machine
// position: Idle until a summary round starts, AwaitingSummary after
// sending one, AwaitingState after requesting full state.
type PeerSyncState string

const (
	PeerIdle            PeerSyncState = "idle"
	PeerAwaitingSummary PeerSyncState = "awaiting_summary"
	PeerAwaitingState   PeerSyncState = "awaiting_state"
)

// SyncConfig tunes the anti-entropy loop.
type SyncConfig struct {
	AntiEntropyInterval     time.Duration
	MaxMessageSize          int
	MaxRetries              int
	Timeout                 time.Duration
	DeltaCompressionEnabled bool
}

// DefaultSyncConfig matches the reference anti-entropy defaults.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		AntiEntropyInterval:     30 * time.Second,
		MaxMessageSize:          1 << 20,
		MaxRetries:              3,
		Timeout:                 10 * time.Second,
		DeltaCompressionEnabled: true,
	}
}

// Sender delivers a SyncMessage to a specific peer; implemented by
// pkg/transport.
type Sender interface {
	SendSync(peer types.NodeId, msg SyncMessage) error
}

// SyncManager drives periodic anti-entropy between this kernel and a set
// of known peers, and handles inbound sync messages.
type SyncManager struct {
	kernel *Kernel
	sender Sender
	cfg    SyncConfig
	logger zerolog.Logger

	mu          sync.Mutex
	peers       map[types.NodeId]struct{}
	peerState   map[types.NodeId]map[string]PeerSyncState
	peerClocks  map[types.NodeId]map[string]types.VectorClock
	stopCh      chan struct{}
}

// NewSyncManager builds a SyncManager over kernel, delivering outbound
// messages through sender.
func NewSyncManager(kernel *Kernel, sender Sender, cfg SyncConfig) *SyncManager {
	return &SyncManager{
		kernel:     kernel,
		sender:     sender,
		cfg:        cfg,
		logger:     log.WithComponent("crdtkernel.sync"),
		peers:      make(map[types.NodeId]struct{}),
		peerState:  make(map[types.NodeId]map[string]PeerSyncState),
		peerClocks: make(map[types.NodeId]map[string]types.VectorClock),
		stopCh:     make(chan struct{}),
	}
}

// AddPeer registers a peer to include in future anti-entropy sweeps.
func (m *SyncManager) AddPeer(peer types.NodeId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peer] = struct{}{}
}

// RemovePeer stops syncing with peer.
func (m *SyncManager) RemovePeer(peer types.NodeId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peer)
	delete(m.peerState, peer)
	delete(m.peerClocks, peer)
}

// Start begins the periodic anti-entropy sweep, using the same
// ticker-and-stopCh shape as the blob store GC loop.
func (m *SyncManager) Start() {
	go m.run()
}

func (m *SyncManager) Stop() {
	close(m.stopCh)
}

func (m *SyncManager) run() {
	ticker := time.NewTicker(m.cfg.AntiEntropyInterval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.cfg.AntiEntropyInterval).Msg("anti-entropy loop started")

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			m.logger.Info().Msg("anti-entropy loop stopped")
			return
		}
	}
}

// sweep sends a StateSummary for every registered slot to every known peer.
func (m *SyncManager) sweep() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CRDTAntiEntropyDuration)

	m.mu.Lock()
	peers := make([]types.NodeId, 0, len(m.peers))
	for p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	for _, slot := range m.kernel.Names() {
		c, ok := m.kernel.Get(slot)
		if !ok {
			continue
		}
		summary := SyncMessage{
			Kind: SyncKindStateSummary,
			Slot: slot,
			Summary: &StateSummaryPayload{
				Clock: c.VersionVector.Clone(),
				Hash:  c.ContentHash,
			},
		}
		for _, peer := range peers {
			m.setState(peer, slot, PeerAwaitingSummary)
			if err := m.sender.SendSync(peer, summary); err != nil {
				m.logger.Warn().Err(err).Str("peer", peer.String()).Str("slot", slot).Msg("failed to send state summary")
				continue
			}
			metrics.CRDTSyncMessagesTotal.WithLabelValues(string(SyncKindStateSummary), "out").Inc()
		}
	}
}

func (m *SyncManager) setState(peer types.NodeId, slot string, state PeerSyncState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peerState[peer] == nil {
		m.peerState[peer] = make(map[string]PeerSyncState)
	}
	m.peerState[peer][slot] = state
}

func (m *SyncManager) recordPeerClock(peer types.NodeId, slot string, clock types.VectorClock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peerClocks[peer] == nil {
		m.peerClocks[peer] = make(map[string]types.VectorClock)
	}
	m.peerClocks[peer][slot] = clock.Clone()
}

// HandleMessage processes one inbound SyncMessage from peer.
func (m *SyncManager) HandleMessage(peer types.NodeId, msg SyncMessage) error {
	metrics.CRDTSyncMessagesTotal.WithLabelValues(string(msg.Kind), "in").Inc()

	switch msg.Kind {
	case SyncKindStateSummary:
		return m.handleStateSummary(peer, msg)
	case SyncKindFullState:
		return m.handleFullState(peer, msg)
	case SyncKindDeltaUpdate:
		return m.handleDeltaUpdate(peer, msg)
	case SyncKindStateRequest:
		return m.handleStateRequest(peer, msg)
	case SyncKindAck:
		return m.handleAck(peer, msg)
	default:
		return prismerr.New(prismerr.KindPrecondition, "invalid_operation", fmt.Sprintf("unknown sync message kind %q", msg.Kind))
	}
}

// handleStateSummary decides whether local state needs to catch up: a
// request is only issued when the clocks are concurrent or the remote
// dominates. If local dominates (or clocks/hash already agree), nothing
// is sent back — the peer's own summary cycle will pull from us instead.
func (m *SyncManager) handleStateSummary(peer types.NodeId, msg SyncMessage) error {
	local, ok := m.kernel.Get(msg.Slot)
	if !ok {
		return m.sendStateRequest(peer, msg.Slot)
	}

	if needsSync(local.VersionVector, msg.Summary.Clock, local.ContentHash, msg.Summary.Hash) {
		return m.sendStateRequest(peer, msg.Slot)
	}
	return nil
}

// needsSync is the anti-entropy trigger boundary: a sync is only needed
// when the content hashes differ (or are both empty) AND the remote clock
// dominates the local one or the two clocks are concurrent. Equal
// non-empty hashes never trigger a sync even if the clocks differ
// syntactically (the states already converged), and neither do equal
// clocks.
func needsSync(local, remote types.VectorClock, localHash, remoteHash string) bool {
	if localHash == remoteHash && localHash != "" {
		return false
	}
	return local.Concurrent(remote) || remote.Dominates(local)
}

func (m *SyncManager) sendStateRequest(peer types.NodeId, slot string) error {
	m.setState(peer, slot, PeerAwaitingState)
	err := m.sender.SendSync(peer, SyncMessage{
		Kind:    SyncKindStateRequest,
		Slot:    slot,
		Request: &StateRequestPayload{},
	})
	if err == nil {
		metrics.CRDTSyncMessagesTotal.WithLabelValues(string(SyncKindStateRequest), "out").Inc()
	}
	return err
}

func (m *SyncManager) handleFullState(peer types.NodeId, msg SyncMessage) error {
	remote, err := LoadSnapshot(msg.Full.State)
	if err != nil {
		return err
	}
	if mergeErr := m.kernel.MergeRemote(msg.Slot, remote); mergeErr != nil {
		return mergeErr
	}
	m.recordPeerClock(peer, msg.Slot, msg.Full.Clock)
	m.setState(peer, msg.Slot, PeerIdle)

	local, _ := m.kernel.Get(msg.Slot)
	ackClock := types.NewVectorClock()
	if local != nil {
		ackClock = local.VersionVector
	}
	err = m.sender.SendSync(peer, SyncMessage{
		Kind: SyncKindAck,
		Slot: msg.Slot,
		Ack:  &AckPayload{Clock: ackClock},
	})
	if err == nil {
		metrics.CRDTSyncMessagesTotal.WithLabelValues(string(SyncKindAck), "out").Inc()
	}
	return err
}

func (m *SyncManager) handleDeltaUpdate(peer types.NodeId, msg SyncMessage) error {
	remote, err := LoadSnapshot(msg.Delta.Delta)
	if err != nil {
		return err
	}
	if err := m.kernel.MergeRemote(msg.Slot, remote); err != nil {
		return err
	}
	m.setState(peer, msg.Slot, PeerIdle)
	return nil
}

func (m *SyncManager) handleStateRequest(peer types.NodeId, msg SyncMessage) error {
	c, ok := m.kernel.Get(msg.Slot)
	if !ok {
		return prismerr.New(prismerr.KindPrecondition, "unknown_slot", fmt.Sprintf("no CRDT slot named %q", msg.Slot))
	}
	snap, err := c.Snapshot()
	if err != nil {
		return err
	}
	sendErr := m.sender.SendSync(peer, SyncMessage{
		Kind: SyncKindFullState,
		Slot: msg.Slot,
		Full: &FullStatePayload{Clock: c.VersionVector.Clone(), State: snap},
	})
	if sendErr == nil {
		metrics.CRDTSyncMessagesTotal.WithLabelValues(string(SyncKindFullState), "out").Inc()
	}
	return sendErr
}

func (m *SyncManager) handleAck(peer types.NodeId, msg SyncMessage) error {
	m.recordPeerClock(peer, msg.Slot, msg.Ack.Clock)
	m.setState(peer, msg.Slot, PeerIdle)
	return nil
}
