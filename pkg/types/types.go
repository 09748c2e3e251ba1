package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeId identifies a replica both as a Raft peer and as a CRDT replica.
type NodeId uuid.UUID

// NewNodeId generates a fresh random NodeId.
func NewNodeId() NodeId {
	return NodeId(uuid.New())
}

// ParseNodeId parses a string NodeId, as produced by String().
func ParseNodeId(s string) (NodeId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NodeId{}, fmt.Errorf("parse node id: %w", err)
	}
	return NodeId(id), nil
}

func (n NodeId) String() string {
	return uuid.UUID(n).String()
}

func (n NodeId) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

func (n *NodeId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseNodeId(s)
	if err != nil {
		return err
	}
	*n = id
	return nil
}

// MarshalText lets NodeId serialize as a map key: encoding/json only
// consults TextMarshaler (not MarshalJSON) when marshaling map keys.
func (n NodeId) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NodeId) UnmarshalText(text []byte) error {
	id, err := ParseNodeId(string(text))
	if err != nil {
		return err
	}
	*n = id
	return nil
}

// Less gives NodeId a total order, used to break LWW ties deterministically.
func (n NodeId) Less(other NodeId) bool {
	for i := range n {
		if n[i] != other[i] {
			return n[i] < other[i]
		}
	}
	return false
}

// Term is a Raft election term: monotonically increasing, advanced on election.
type Term uint64

// LogIndex is a 1-based position in the Raft log.
type LogIndex uint64

// LogicalTimestamp is a Lamport-style (counter, NodeId) pair.
type LogicalTimestamp struct {
	Counter uint64 `json:"counter"`
	Node    NodeId `json:"node"`
}

// Less orders LogicalTimestamps by counter, then by NodeId for determinism.
func (l LogicalTimestamp) Less(other LogicalTimestamp) bool {
	if l.Counter != other.Counter {
		return l.Counter < other.Counter
	}
	return l.Node.Less(other.Node)
}

// CommandKind enumerates the recognized Command payload variants. New
// variants are added here without changing consensus semantics.
type CommandKind string

const (
	CommandAssignTask     CommandKind = "assign_task"
	CommandUpdateStatus   CommandKind = "update_status"
	CommandRegisterAgent  CommandKind = "register_agent"
	CommandUnregisterNode CommandKind = "unregister_agent"
	CommandUpdateConfig   CommandKind = "update_config"
	CommandCRDTOperation  CommandKind = "crdt_operation"
	CommandBlobManifest   CommandKind = "blob_manifest"
	CommandCustom         CommandKind = "custom"
)

// Command is the sum-type payload carried by a Raft log entry. Raft itself
// treats it as an opaque byte blob; the Coordinator's apply callback
// dispatches on Kind.
type Command struct {
	// RequestID lets a caller resubmit the same logical command safely;
	// the Coordinator mints one if the caller leaves it zero.
	RequestID uuid.UUID       `json:"request_id"`
	Kind      CommandKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// LogEntry is one immutable entry in the consensus log.
type LogEntry struct {
	Term           Term     `json:"term"`
	Index          LogIndex `json:"index"`
	Command        Command  `json:"command"`
	CreatedAt      time.Time `json:"created_at"`
	OriginNode     NodeId   `json:"origin_node"`
	ContentHash    []byte   `json:"content_hash"`
}

// HashInput returns the canonical byte sequence BLAKE3-hashed to produce
// ContentHash: term | index | command (JSON) | creation time (RFC3339Nano) | origin node.
func (e *LogEntry) HashInput() []byte {
	var buf []byte
	var tmp [8]byte

	binary.BigEndian.PutUint64(tmp[:], uint64(e.Term))
	buf = append(buf, tmp[:]...)

	binary.BigEndian.PutUint64(tmp[:], uint64(e.Index))
	buf = append(buf, tmp[:]...)

	cmdBytes, _ := json.Marshal(e.Command)
	buf = append(buf, cmdBytes...)
	buf = append(buf, []byte(e.CreatedAt.Format(time.RFC3339Nano))...)

	originBytes, _ := e.OriginNode.MarshalJSON()
	buf = append(buf, originBytes...)
	return buf
}

// BlobCompressionKind names the compression algorithm applied to a blob's
// stored representation, if any.
type BlobCompressionKind string

const (
	CompressionNone BlobCompressionKind = "none"
	CompressionZstd BlobCompressionKind = "zstd"
)

// BlobEncryptionKind names the AEAD cipher applied to a blob's stored
// representation, if any.
type BlobEncryptionKind string

const (
	EncryptionNone           BlobEncryptionKind = "none"
	EncryptionAES256GCM      BlobEncryptionKind = "aes-256-gcm"
	EncryptionChaCha20Poly1305 BlobEncryptionKind = "chacha20-poly1305"
)

// BlobMetadata is the durable record kept alongside a blob's processed bytes.
type BlobMetadata struct {
	Hash             string              `json:"hash"` // hex(BLAKE3(original bytes)) — the address
	OriginalSize     int64               `json:"original_size"`
	StoredSize       int64               `json:"stored_size"`
	Compression      BlobCompressionKind `json:"compression"`
	CompressionLevel int                 `json:"compression_level,omitempty"`
	Encryption       BlobEncryptionKind  `json:"encryption"`
	KeyPurpose       string              `json:"key_purpose,omitempty"`
	Nonce            []byte              `json:"nonce,omitempty"`
	StorageChecksum  string              `json:"storage_checksum"` // hex(BLAKE3(processed bytes))
	CreatedAt        time.Time           `json:"created_at"`
	LastAccessed     time.Time           `json:"last_accessed"`
	Refcount         int64               `json:"refcount"`
}

// CRDTKind enumerates the fixed set of CRDT kinds the kernel understands —
// a closed sum type, not a type-erased registry: every kernel slot is
// exactly one of these, and merge/apply dispatch is an exhaustive switch.
type CRDTKind string

const (
	CRDTKindGCounter      CRDTKind = "g_counter"
	CRDTKindPNCounter     CRDTKind = "pn_counter"
	CRDTKindGSet          CRDTKind = "g_set"
	CRDTKindTwoPhaseSet   CRDTKind = "two_phase_set"
	CRDTKindLWWRegister   CRDTKind = "lww_register"
	CRDTKindMVRegister    CRDTKind = "mv_register"
	CRDTKindORSet         CRDTKind = "or_set"
	CRDTKindRGA           CRDTKind = "rga"
)
