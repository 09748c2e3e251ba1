/*
Package storage provides BoltDB-backed persistence for the certificate
authority a node's security layer depends on.

PRISM's actual replicated state is owned elsewhere: pkg/consensus keeps
the Raft log in its own raft-boltdb files, pkg/crdtkernel holds CRDT
containers in memory with periodic snapshots, and pkg/blobstore owns its
own BoltDB file for content-addressed blobs. This package exists only so
a node's root CA certificate and encrypted private key survive a
restart, independent of those other subsystems' lifecycles.

# Usage

	store, err := storage.NewBoltStore("/var/lib/prism/node-1")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		ca.Initialize()
		ca.SaveToStore()
	}

# See Also

  - pkg/security for the certificate authority and mTLS transport identity
  - pkg/transport for the mTLS-secured CRDT-sync wire protocol
*/
package storage
