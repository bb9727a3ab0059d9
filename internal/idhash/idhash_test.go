package idhash

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestComputeSwapRecordID(t *testing.T) {
	pool := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	tests := []struct {
		name    string
		runID   string
		index   int
		wantLen int // hash length should be 64
	}{
		{name: "first swap", runID: "0b9f2c1e-run", index: 1, wantLen: 64},
		{name: "tenth swap", runID: "0b9f2c1e-run", index: 10, wantLen: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSwapRecordID(tt.runID, pool, tt.index)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeSwapRecordID() length = %d, want %d", len(got), tt.wantLen)
			}

			got2 := ComputeSwapRecordID(tt.runID, pool, tt.index)
			if got != got2 {
				t.Errorf("ComputeSwapRecordID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeSwapRecordID_Uniqueness(t *testing.T) {
	pool := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")

	ids := map[string]string{
		"base":      ComputeSwapRecordID("run", pool, 1),
		"index":     ComputeSwapRecordID("run", pool, 2),
		"run":       ComputeSwapRecordID("run2", pool, 1),
		"pool":      ComputeSwapRecordID("run", other, 1),
		"separator": ComputeSwapRecordID("run|0x", pool, 1),
	}

	seen := make(map[string]string)
	for name, id := range ids {
		if prev, ok := seen[id]; ok {
			t.Errorf("collision between %s and %s", prev, name)
		}
		seen[id] = name
	}
}

func TestComputeDeploymentID(t *testing.T) {
	tx := common.HexToHash("0xabc")

	a := ComputeDeploymentID("run", "tokenA", tx)
	b := ComputeDeploymentID("run", "tokenB", tx)

	if len(a) != 64 {
		t.Errorf("length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("different steps must produce different ids")
	}
	if a != ComputeDeploymentID("run", "tokenA", tx) {
		t.Error("not deterministic")
	}
}
