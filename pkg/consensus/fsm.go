package consensus

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/prism-io/prism/pkg/log"
	"github.com/prism-io/prism/pkg/metrics"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
	"lukechampine.com/blake3"
)

// ApplyFunc dispatches one committed log entry. It is supplied by the
// Coordinator and is the only place PRISM's domain logic touches the
// consensus layer — the FSM itself knows nothing about CRDT kinds, blob
// addresses, or agent assignment.
type ApplyFunc func(entry *types.LogEntry) (any, error)

// StateSnapshotter lets the FSM delegate snapshotting to whatever owns
// durable state (the Coordinator, fronting the CRDT kernel and blob store
// root set).
type StateSnapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreState(data []byte) error
}

// FSM implements raft.FSM. Apply unmarshal a types.Command from the log
// entry, wraps it with Raft-assigned term/index into a types.LogEntry,
// stamps its content hash, and dispatches to the apply callback.
type FSM struct {
	mu          sync.RWMutex
	self        types.NodeId
	apply       ApplyFunc
	snapshotter StateSnapshotter
}

func NewFSM(self types.NodeId, apply ApplyFunc, snapshotter StateSnapshotter) *FSM {
	return &FSM{self: self, apply: apply, snapshotter: snapshotter}
}

// Apply is called by Raft once a log entry commits.
func (f *FSM) Apply(l *raft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	var cmd types.Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "decode_command_failed", "unmarshal committed command", err)
	}

	entry := &types.LogEntry{
		Term:       types.Term(l.Term),
		Index:      types.LogIndex(l.Index),
		Command:    cmd,
		CreatedAt:  time.Now(),
		OriginNode: f.self,
	}
	sum := blake3.Sum256(entry.HashInput())
	entry.ContentHash = sum[:]

	f.mu.RLock()
	applyFn := f.apply
	f.mu.RUnlock()

	result, err := applyFn(entry)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RaftCommandsTotal.WithLabelValues(string(cmd.Kind), outcome).Inc()

	log.WithTerm(uint64(entry.Term)).Debug().
		Str("hash", hex.EncodeToString(entry.ContentHash)).
		Str("kind", string(cmd.Kind)).
		Uint64("index", uint64(entry.Index)).
		Err(err).
		Msg("applied committed log entry")

	if err != nil {
		return err
	}
	return result
}

// Snapshot delegates serialization of durable state to the snapshotter,
// capturing it synchronously (raft.FSM.Snapshot must not race concurrent
// Apply calls) and returning an FSMSnapshot that only needs to write the
// already-captured bytes out.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := f.snapshotter.SnapshotState()
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "snapshot_failed", "capture FSM state for snapshot", err)
	}
	return &fsmSnapshot{data: data}, nil
}

// Restore replaces local state from a previously captured snapshot,
// called when a node starts from an on-disk snapshot or receives an
// InstallSnapshot RPC from the leader.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "snapshot_read_failed", "read snapshot stream", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.snapshotter.RestoreState(data); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "snapshot_restore_failed", "restore FSM state from snapshot", err)
	}
	return nil
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
