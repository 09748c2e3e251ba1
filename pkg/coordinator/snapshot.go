package coordinator

import (
	"encoding/json"

	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
)

// stateSnapshot is the Coordinator's durable state as captured by Raft
// snapshotting: every registered CRDT slot's kind and serialized
// container, plus the blob GC root set, so a restoring node recovers both
// subsystems' state together.
type stateSnapshot struct {
	Slots []slotSnapshot `json:"slots"`
	Roots []string       `json:"roots"`
}

type slotSnapshot struct {
	Name string         `json:"name"`
	Kind types.CRDTKind `json:"kind"`
	Data []byte         `json:"data"`
}

// SnapshotState implements consensus.StateSnapshotter.
func (c *Coordinator) SnapshotState() ([]byte, error) {
	names := c.kernel.Names()
	snap := stateSnapshot{Slots: make([]slotSnapshot, 0, len(names))}

	for _, name := range names {
		container, ok := c.kernel.Get(name)
		if !ok {
			continue
		}
		data, err := c.kernel.Snapshot(name)
		if err != nil {
			return nil, err
		}
		snap.Slots = append(snap.Slots, slotSnapshot{Name: name, Kind: container.Kind, Data: data})
	}

	c.rootsMu.RLock()
	for h := range c.roots {
		snap.Roots = append(snap.Roots, h)
	}
	c.rootsMu.RUnlock()

	out, err := json.Marshal(snap)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "encode_snapshot_failed", "marshal coordinator snapshot", err)
	}
	return out, nil
}

// RestoreState implements consensus.StateSnapshotter.
func (c *Coordinator) RestoreState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "decode_snapshot_failed", "unmarshal coordinator snapshot", err)
	}

	for _, s := range snap.Slots {
		if _, err := c.kernel.Register(s.Name, s.Kind); err != nil {
			return err
		}
		if err := c.kernel.Load(s.Name, s.Data); err != nil {
			return err
		}
	}

	c.rootsMu.Lock()
	c.roots = make(map[string]struct{}, len(snap.Roots))
	for _, h := range snap.Roots {
		c.roots[h] = struct{}{}
	}
	c.rootsMu.Unlock()

	return nil
}
