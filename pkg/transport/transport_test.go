package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prism-io/prism/pkg/crdtkernel"
	"github.com/prism-io/prism/pkg/security"
	"github.com/prism-io/prism/pkg/storage"
	"github.com/prism-io/prism/pkg/types"
)

func newTestCA(t *testing.T) *security.CertAuthority {
	t.Helper()
	security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID("transport-test"))

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ca := security.NewCertAuthority(store)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("Initialize CA: %v", err)
	}
	return ca
}

func tlsConfigFor(t *testing.T, ca *security.CertAuthority, nodeID types.NodeId) *tls.Config {
	t.Helper()
	cert, err := ca.IssueNodeCertificate(nodeID.String(), "replica", nil, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("IssueNodeCertificate: %v", err)
	}

	roots := x509.NewCertPool()
	rootDER := ca.GetRootCACert()
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatalf("parse root cert: %v", err)
	}
	roots.AddCert(rootCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      roots,
		ClientCAs:    roots,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
}

func TestTransportSendSyncRoundTrip(t *testing.T) {
	ca := newTestCA(t)

	serverID := types.NewNodeId()
	clientID := types.NewNodeId()

	var mu sync.Mutex
	var received []crdtkernel.SyncMessage

	serverCfg := DefaultConfig("127.0.0.1:0", tlsConfigFor(t, ca, serverID))
	serverCfg.ListenAddr = "127.0.0.1:18611"
	server := NewTransport(serverCfg, func(peer types.NodeId, msg crdtkernel.SyncMessage) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})
	if err := server.Start(); err != nil {
		t.Fatalf("server.Start: %v", err)
	}
	defer server.Stop()

	clientCfg := DefaultConfig("127.0.0.1:0", tlsConfigFor(t, ca, clientID))
	client := NewTransport(clientCfg, func(types.NodeId, crdtkernel.SyncMessage) error { return nil })
	client.AddPeer(serverID, "127.0.0.1:18611")
	defer client.Stop()

	msg := crdtkernel.SyncMessage{
		Kind: crdtkernel.SyncKindStateSummary,
		Slot: "counter-1",
		Summary: &crdtkernel.StateSummaryPayload{
			Clock: types.NewVectorClock(),
			Hash:  "deadbeef",
		},
	}

	if err := client.SendSync(serverID, msg); err != nil {
		t.Fatalf("SendSync: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 received message, got %d", len(received))
	}
	if received[0].Slot != "counter-1" {
		t.Fatalf("expected slot counter-1, got %s", received[0].Slot)
	}
	if received[0].Summary == nil || received[0].Summary.Hash != "deadbeef" {
		t.Fatalf("expected summary hash deadbeef, got %+v", received[0].Summary)
	}
}

func TestTransportSendToUnknownPeerFails(t *testing.T) {
	ca := newTestCA(t)
	id := types.NewNodeId()
	cfg := DefaultConfig("127.0.0.1:0", tlsConfigFor(t, ca, id))
	tr := NewTransport(cfg, func(types.NodeId, crdtkernel.SyncMessage) error { return nil })

	err := tr.SendSync(types.NewNodeId(), crdtkernel.SyncMessage{Kind: crdtkernel.SyncKindAck})
	if err == nil {
		t.Fatal("expected error sending to a peer with no registered address")
	}
}
