package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ComputeSwapRecordID computes a deterministic record_id using SHA256.
// Formula: SHA256(run_id|pool|index)
// Returns hex-encoded hash (64 characters).
func ComputeSwapRecordID(runID string, pool common.Address, index int) string {
	data := fmt.Sprintf("%s|%s|%d", runID, pool.Hex(), index)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
