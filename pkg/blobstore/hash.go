package blobstore

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// ContentHash returns the hex-encoded BLAKE3-256 digest of data — the
// address a blob is stored and retrieved under.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
