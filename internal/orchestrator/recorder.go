package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"amm-lab/internal/domain"
	"amm-lab/internal/idhash"
	"amm-lab/internal/ledger"
	"amm-lab/internal/sequencer"
)

// Step kind metric labels.
const (
	kindDeploy = "deploy"
	kindCall   = "call"
)

// recorder observes deployment steps and swaps for metrics, and holds
// what the run produced until it is persisted.
type recorder struct {
	o     *Orchestrator
	runID string

	kinds       map[string]string
	confirmedAt map[string]int64
	outputs     *sequencer.Outputs

	swaps    []domain.SwapRecord
	lastSwap time.Time
}

var _ sequencer.Observer = (*recorder)(nil)

func newRecorder(o *Orchestrator, runID string) *recorder {
	return &recorder{
		o:           o,
		runID:       runID,
		kinds:       make(map[string]string),
		confirmedAt: make(map[string]int64),
	}
}

func (r *recorder) setPlan(steps []sequencer.Step) {
	for _, st := range steps {
		kind := kindCall
		if _, ok := st.(sequencer.Deploy); ok {
			kind = kindDeploy
		}
		r.kinds[st.StepName()] = kind
	}
}

// StepStarted implements sequencer.Observer.
func (r *recorder) StepStarted(string) {}

// StepConfirmed implements sequencer.Observer.
func (r *recorder) StepConfirmed(step string, _ sequencer.Output, elapsed time.Duration) {
	r.confirmedAt[step] = r.o.opts.Now().UnixMilli()
	r.o.metrics.RecordStep(step, r.kinds[step], elapsed, nil)
}

// StepFailed implements sequencer.Observer.
func (r *recorder) StepFailed(step string, err error) {
	r.o.metrics.RecordStep(step, r.kinds[step], 0, err)
}

func (r *recorder) deployed(out *sequencer.Outputs) {
	r.outputs = out
}

func (r *recorder) startSwaps() {
	r.lastSwap = time.Now()
}

// swapRecorded is the swap loop's OnRecord callback.
func (r *recorder) swapRecorded(rec domain.SwapRecord) {
	now := time.Now()
	r.o.metrics.RecordSwap(rec, now.Sub(r.lastSwap))
	r.lastSwap = now
	r.swaps = append(r.swaps, rec)
}

func (r *recorder) contract(step string) (ledger.Contract, error) {
	if r.outputs == nil {
		return ledger.Contract{}, fmt.Errorf("step %q has not been confirmed", step)
	}
	return r.outputs.Contract(step)
}

// contracts returns the confirmed deployments in confirmation order.
func (r *recorder) contracts() []*domain.DeployedContract {
	if r.outputs == nil {
		return nil
	}
	var result []*domain.DeployedContract
	for _, step := range r.outputs.Steps() {
		out, _ := r.outputs.Get(step)
		if out.Contract == nil {
			continue
		}
		result = append(result, &domain.DeployedContract{
			DeploymentID: idhash.ComputeDeploymentID(r.runID, step, out.Receipt.TxHash),
			RunID:        r.runID,
			Step:         step,
			Kind:         out.Contract.Kind,
			Address:      out.Contract.Address,
			TxHash:       out.Receipt.TxHash,
			BlockNumber:  out.Receipt.BlockNumber,
			DeployedAt:   r.confirmedAt[step],
		})
	}
	return result
}

func (r *recorder) records() []domain.SwapRecord {
	out := make([]domain.SwapRecord, len(r.swaps))
	copy(out, r.swaps)
	return out
}

func (r *recorder) recordPointers() []*domain.SwapRecord {
	out := make([]*domain.SwapRecord, len(r.swaps))
	for i := range r.swaps {
		out[i] = &r.swaps[i]
	}
	return out
}

// persist writes deployments, swap records and the finished run to the
// configured stores. Every store is attempted; errors are joined.
func (r *recorder) persist(ctx context.Context, run *domain.Run) error {
	stores := r.o.opts.Stores
	var errs []error

	if stores.Deployments != nil {
		for _, c := range r.contracts() {
			if err := stores.Deployments.Insert(ctx, c); err != nil {
				errs = append(errs, fmt.Errorf("insert deployment %s: %w", c.Step, err))
				break
			}
		}
	}

	if records := r.recordPointers(); len(records) > 0 {
		if stores.Swaps != nil {
			if err := stores.Swaps.InsertBulk(ctx, records); err != nil {
				errs = append(errs, fmt.Errorf("insert swap records: %w", err))
			}
		}
		if stores.Analytics != nil {
			if err := stores.Analytics.InsertBulk(ctx, records); err != nil {
				errs = append(errs, fmt.Errorf("export swap records: %w", err))
			}
		}
	}

	if stores.Runs != nil {
		if err := stores.Runs.Finish(ctx, run); err != nil {
			errs = append(errs, fmt.Errorf("finish run: %w", err))
		}
	}

	return errors.Join(errs...)
}
