package evm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"amm-lab/internal/ledger"
)

// WaitForConfirmation implements ledger.Submitter. It polls for the receipt
// every poll interval, or sooner when a new head arrives, until the
// confirmation timeout expires.
func (c *Client) WaitForConfirmation(ctx context.Context, tx *ledger.PendingTx) (*ledger.Receipt, error) {
	deadline := c.clock.After(c.confirmTimeout)
	heads := c.heads

	for {
		r, err := c.rpc.TransactionReceipt(ctx, tx.Hash)
		if err != nil {
			return nil, fmt.Errorf("get receipt %s: %w", tx.Hash.Hex(), err)
		}
		if r != nil {
			return c.toReceipt(tx, r)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("tx %s: %w after %s", tx.Hash.Hex(), ledger.ErrTimedOut, c.confirmTimeout)
		case <-c.clock.After(c.pollInterval):
		case head, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
			c.log.Debug("new head", zap.Uint64("block", head))
		}
	}
}

func (c *Client) toReceipt(tx *ledger.PendingTx, r *rpcReceipt) (*ledger.Receipt, error) {
	rcpt := &ledger.Receipt{
		TxHash:      tx.Hash,
		BlockNumber: uint64(r.BlockNumber),
		GasUsed:     uint64(r.GasUsed),
		Success:     r.Status == 1,
	}
	if r.ContractAddress != nil {
		rcpt.ContractAddress = *r.ContractAddress
	}
	if !rcpt.Success {
		rcpt.RevertReason = "status 0"
		return rcpt, &ledger.RevertError{TxHash: tx.Hash, Reason: rcpt.RevertReason}
	}
	return rcpt, nil
}
