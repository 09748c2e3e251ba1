// Package types defines PRISM's shared data model: replica and term
// identifiers, the consensus log entry and command sum type, blob metadata,
// and the causality primitives (VectorClock, HybridTimestamp) used by both
// the consensus engine and the CRDT kernel.
//
// Types here are plain structs with JSON tags; persistence and wire
// encoding both live in their owning packages (pkg/blobstore, pkg/transport),
// not here.
package types
