package consensus

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prism-io/prism/pkg/types"
)

type recordingSnapshotter struct {
	state []byte
}

func (r *recordingSnapshotter) SnapshotState() ([]byte, error) {
	return append([]byte(nil), r.state...), nil
}

func (r *recordingSnapshotter) RestoreState(data []byte) error {
	r.state = append([]byte(nil), data...)
	return nil
}

func waitForLeader(t *testing.T, n *Node) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if n.IsLeader() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("node never became leader")
}

func TestNodeBootstrapSingleServerBecomesLeader(t *testing.T) {
	self := types.NewNodeId()
	snap := &recordingSnapshotter{}

	var n *Node
	apply := func(entry *types.LogEntry) (any, error) {
		return entry.Command.Payload, nil
	}

	cfg := DefaultConfig("127.0.0.1:17411", t.TempDir())
	fsm := NewFSM(self, apply, snap)
	n = NewNode(self, cfg, fsm)

	if err := n.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer n.Shutdown()

	waitForLeader(t, n)

	cmd := types.Command{
		RequestID: uuid.New(),
		Kind:      types.CommandCRDTOperation,
		Payload:   []byte(`{"hello":"world"}`),
	}
	result, err := n.SubmitCommand(cmd)
	if err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil apply result")
	}
}

func TestNodeSubmitCommandFailsWithoutLeader(t *testing.T) {
	self := types.NewNodeId()
	snap := &recordingSnapshotter{}
	apply := func(entry *types.LogEntry) (any, error) { return nil, nil }

	cfg := DefaultConfig("127.0.0.1:17412", t.TempDir())
	fsm := NewFSM(self, apply, snap)
	n := NewNode(self, cfg, fsm)

	_, err := n.SubmitCommand(types.Command{RequestID: uuid.New(), Kind: types.CommandCRDTOperation})
	if err == nil {
		t.Fatal("expected error submitting command before node is started")
	}
}
