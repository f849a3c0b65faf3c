package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeDepositID computes a deterministic deposit identifier using SHA256.
// Formula: SHA256(source_chain|tx_ref|nonce)
// Returns hex-encoded hash (64 characters).
func ComputeDepositID(
	sourceChain string,
	txRef string,
	nonce uint64,
) string {
	data := fmt.Sprintf("%s|%s|%d",
		sourceChain,
		txRef,
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
