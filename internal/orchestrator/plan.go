package orchestrator

import (
	"math/big"

	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
	"amm-lab/internal/names"
	"amm-lab/internal/sequencer"
)

// Deployment step names.
const (
	StepTokenA       = "tokenA"
	StepTokenB       = "tokenB"
	StepPool         = "pool"
	StepApproveA     = "approveA"
	StepApproveB     = "approveB"
	StepAddLiquidity = "addLiquidity"
	StepApproveSwaps = "approveSwaps"
)

// plan returns the ordered deployment steps: both tokens, the pool over
// them, liquidity approvals and funding, and the allowance for the whole
// swap volume on the input token.
func (o *Orchestrator) plan(tokenArt, poolArt *domain.ContractArtifact, a, b names.Token) []sequencer.Step {
	poolSpender := func(amount *big.Int) sequencer.ArgsFunc {
		return func(out *sequencer.Outputs) ([]any, error) {
			pool, err := out.Address(StepPool)
			if err != nil {
				return nil, err
			}
			return []any{pool, amount}, nil
		}
	}

	swapVolume := new(big.Int).Mul(o.opts.SwapAmount, big.NewInt(int64(o.opts.SwapCount)))

	return []sequencer.Step{
		sequencer.Deploy{
			Name:     StepTokenA,
			Artifact: tokenArt,
			Args:     sequencer.StaticArgs(a.Name, a.Symbol, o.opts.TokenASupply),
		},
		sequencer.Deploy{
			Name:     StepTokenB,
			Artifact: tokenArt,
			Args:     sequencer.StaticArgs(b.Name, b.Symbol, o.opts.TokenBSupply),
		},
		sequencer.Deploy{
			Name:     StepPool,
			Artifact: poolArt,
			Args: func(out *sequencer.Outputs) ([]any, error) {
				tokenA, err := out.Address(StepTokenA)
				if err != nil {
					return nil, err
				}
				tokenB, err := out.Address(StepTokenB)
				if err != nil {
					return nil, err
				}
				return []any{tokenA, tokenB}, nil
			},
			DependsOn: []string{StepTokenA, StepTokenB},
		},
		sequencer.Call{
			Name:      StepApproveA,
			Target:    StepTokenA,
			Method:    ledger.MethodApprove,
			Args:      poolSpender(o.opts.LiquidityA),
			DependsOn: []string{StepPool},
		},
		sequencer.Call{
			Name:      StepApproveB,
			Target:    StepTokenB,
			Method:    ledger.MethodApprove,
			Args:      poolSpender(o.opts.LiquidityB),
			DependsOn: []string{StepPool},
		},
		sequencer.Call{
			Name:      StepAddLiquidity,
			Target:    StepPool,
			Method:    ledger.MethodAddLiquidity,
			Args:      sequencer.StaticArgs(o.opts.LiquidityA, o.opts.LiquidityB),
			DependsOn: []string{StepApproveA, StepApproveB},
		},
		sequencer.Call{
			Name:      StepApproveSwaps,
			Target:    StepTokenA,
			Method:    ledger.MethodApprove,
			Args:      poolSpender(swapVolume),
			DependsOn: []string{StepPool, StepAddLiquidity},
		},
	}
}
