package indexer

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashContent returns a stable content hash used by filerecord.Store's
// NeedsReindex to decide whether a file's on-disk bytes still match
// what was last indexed.
func hashContent(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
