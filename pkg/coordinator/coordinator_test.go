package coordinator

import (
	"testing"
	"time"

	"github.com/prism-io/prism/pkg/consensus"
	"github.com/prism-io/prism/pkg/crdtkernel"
	"github.com/prism-io/prism/pkg/transport"
	"github.com/prism-io/prism/pkg/types"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	self := types.NewNodeId()
	cfg := Config{
		Self:            self,
		ConsensusConfig: consensus.DefaultConfig("127.0.0.1:0", t.TempDir()),
		TransportConfig: transport.DefaultConfig("127.0.0.1:0", nil),
		SyncConfig:      crdtkernel.DefaultSyncConfig(),
	}
	return New(cfg)
}

func entry(cmd types.Command) *types.LogEntry {
	return &types.LogEntry{Command: cmd, CreatedAt: time.Now()}
}

func TestCoordinatorDispatchRegistersAndIncrementsCounter(t *testing.T) {
	c := newTestCoordinator(t)

	regCmd, err := EncodeOperation(Operation{Op: OpRegister, Slot: "visits", Kind: types.CRDTKindGCounter})
	if err != nil {
		t.Fatalf("EncodeOperation register: %v", err)
	}
	if _, err := c.dispatch(entry(regCmd)); err != nil {
		t.Fatalf("dispatch register: %v", err)
	}

	incrCmd, err := EncodeOperation(Operation{Op: OpGCounterIncrement, Slot: "visits", Delta: 5})
	if err != nil {
		t.Fatalf("EncodeOperation increment: %v", err)
	}
	if _, err := c.dispatch(entry(incrCmd)); err != nil {
		t.Fatalf("dispatch increment: %v", err)
	}

	container, ok := c.kernel.Get("visits")
	if !ok {
		t.Fatal("expected slot \"visits\" to be registered")
	}
	if got := container.GCounter.Value(); got != 5 {
		t.Fatalf("GCounter.Value() = %d, want 5", got)
	}
}

func TestCoordinatorDispatchUnknownOperationFails(t *testing.T) {
	c := newTestCoordinator(t)

	cmd, err := EncodeOperation(Operation{Op: "bogus", Slot: "x"})
	if err != nil {
		t.Fatalf("EncodeOperation: %v", err)
	}
	if _, err := c.dispatch(entry(cmd)); err == nil {
		t.Fatal("expected error dispatching an unknown operation kind")
	}
}

func TestCoordinatorManifestTracksGCRoots(t *testing.T) {
	c := newTestCoordinator(t)

	addCmd, err := EncodeManifestEntry(ManifestEntry{Op: ManifestOpAddRoot, Hash: "deadbeef"})
	if err != nil {
		t.Fatalf("EncodeManifestEntry: %v", err)
	}
	if _, err := c.dispatch(entry(addCmd)); err != nil {
		t.Fatalf("dispatch add_root: %v", err)
	}

	roots := c.RootProvider()
	if _, ok := roots["deadbeef"]; !ok {
		t.Fatalf("expected root set to contain deadbeef, got %v", roots)
	}

	removeCmd, err := EncodeManifestEntry(ManifestEntry{Op: ManifestOpRemoveRoot, Hash: "deadbeef"})
	if err != nil {
		t.Fatalf("EncodeManifestEntry: %v", err)
	}
	if _, err := c.dispatch(entry(removeCmd)); err != nil {
		t.Fatalf("dispatch remove_root: %v", err)
	}

	roots = c.RootProvider()
	if _, ok := roots["deadbeef"]; ok {
		t.Fatalf("expected root set to no longer contain deadbeef, got %v", roots)
	}
}

func TestCoordinatorSnapshotRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)

	regCmd, _ := EncodeOperation(Operation{Op: OpRegister, Slot: "tags", Kind: types.CRDTKindGSet})
	if _, err := c.dispatch(entry(regCmd)); err != nil {
		t.Fatalf("dispatch register: %v", err)
	}
	addCmd, _ := EncodeOperation(Operation{Op: OpGSetAdd, Slot: "tags", Value: "alpha"})
	if _, err := c.dispatch(entry(addCmd)); err != nil {
		t.Fatalf("dispatch add: %v", err)
	}
	rootCmd, _ := EncodeManifestEntry(ManifestEntry{Op: ManifestOpAddRoot, Hash: "cafef00d"})
	if _, err := c.dispatch(entry(rootCmd)); err != nil {
		t.Fatalf("dispatch add_root: %v", err)
	}

	data, err := c.SnapshotState()
	if err != nil {
		t.Fatalf("SnapshotState: %v", err)
	}

	restored := newTestCoordinator(t)
	if err := restored.RestoreState(data); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	container, ok := restored.kernel.Get("tags")
	if !ok {
		t.Fatal("expected restored kernel to have slot \"tags\"")
	}
	if !container.GSet.Contains("alpha") {
		t.Fatal("expected restored GSet to contain \"alpha\"")
	}

	roots := restored.RootProvider()
	if _, ok := roots["cafef00d"]; !ok {
		t.Fatalf("expected restored root set to contain cafef00d, got %v", roots)
	}
}

func TestCoordinatorSubmitCommandFailsBeforeNodeStarts(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.SubmitCommand(types.Command{Kind: types.CommandCRDTOperation})
	if err == nil {
		t.Fatal("expected error submitting a command before the consensus node starts")
	}
}
