package coordinator

import (
	"encoding/json"

	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
)

// ManifestOp names a mutation against the Coordinator's blob-hash root
// set, the only durable side effect a manifest command has: blob bytes
// themselves are written directly to the Blob Store by whoever calls
// Put, outside of consensus; what goes through the log is the decision
// that a hash is now (or is no longer) reachable.
type ManifestOp string

const (
	ManifestOpAddRoot    ManifestOp = "add_root"
	ManifestOpRemoveRoot ManifestOp = "remove_root"
)

// ManifestEntry is the payload carried in Command.Payload for
// types.CommandBlobManifest entries.
type ManifestEntry struct {
	Op   ManifestOp `json:"op"`
	Hash string     `json:"hash"`
}

// EncodeManifestEntry wraps entry as a types.Command ready for SubmitCommand.
func EncodeManifestEntry(entry ManifestEntry) (types.Command, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return types.Command{}, prismerr.Wrap(prismerr.KindFatal, "encode_manifest_failed", "marshal blob manifest entry", err)
	}
	return types.Command{Kind: types.CommandBlobManifest, Payload: payload}, nil
}
