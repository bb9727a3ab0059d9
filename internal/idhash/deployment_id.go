package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ComputeDeploymentID computes a deterministic deployment_id using SHA256.
// Formula: SHA256(run_id|step|tx_hash)
// Returns hex-encoded hash (64 characters).
func ComputeDeploymentID(runID, step string, txHash common.Hash) string {
	data := fmt.Sprintf("%s|%s|%s", runID, step, txHash.Hex())

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
