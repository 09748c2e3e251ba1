// Package storage provides durable, node-local persistence for the
// security layer's certificate authority material. PRISM's replicated
// state lives in pkg/consensus (the Raft log), pkg/crdtkernel (CRDT
// containers) and pkg/blobstore (content-addressed blobs); this package
// only persists the one thing none of those subsystems own: the root CA
// certificate and encrypted private key a node needs across restarts to
// keep issuing and verifying peer certificates consistently.
package storage

// Store is the durable CA persistence contract. It also satisfies
// security.CAStore structurally, so a *BoltStore can be handed directly
// to security.NewCertAuthority.
type Store interface {
	SaveCA(data []byte) error
	GetCA() ([]byte, error)
	Close() error
}
