// Package sequencer executes an ordered list of dependent on-chain transactions.
//
// Each step submits exactly one transaction and blocks until it is confirmed
// before the next step starts. The first failure aborts the plan; confirmed
// steps are kept.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"amm-lab/internal/ledger"
)

// Observer receives step lifecycle events. Implementations must not block.
type Observer interface {
	StepStarted(step string)
	StepConfirmed(step string, out Output, elapsed time.Duration)
	StepFailed(step string, err error)
}

// Options configures a Sequencer.
type Options struct {
	Ledger ledger.Submitter

	// StepTimeout bounds submit+confirm of a single step. Zero leaves the
	// bound to the ledger's confirmation timeout.
	StepTimeout time.Duration

	Observer Observer
	Logger   *zap.Logger
}

// Sequencer runs deployment plans on one account.
type Sequencer struct {
	opts Options
	log  *zap.Logger
}

// New creates a Sequencer.
func New(opts Options) *Sequencer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sequencer{opts: opts, log: log.Named("sequencer")}
}

// Validate checks step names and dependencies without submitting anything.
func Validate(steps []Step) error {
	seen := make(map[string]bool, len(steps))
	for i, st := range steps {
		name := st.StepName()
		if name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidPlan, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidPlan, name)
		}
		for _, dep := range st.Dependencies() {
			if !seen[dep] {
				return fmt.Errorf("%w: step %q depends on %q which does not precede it", ErrInvalidPlan, name, dep)
			}
		}
		seen[name] = true
	}
	return nil
}

// Run validates and executes steps in order. On failure it returns the
// outputs confirmed so far together with a *DeploymentError.
func (s *Sequencer) Run(ctx context.Context, steps []Step) (*Outputs, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}

	out := newOutputs()
	for i, st := range steps {
		name := st.StepName()
		s.notifyStarted(name)
		s.log.Info("step started", zap.Int("index", i), zap.String("step", name))

		start := time.Now()
		result, err := s.runStep(ctx, st, out)
		if err != nil {
			s.notifyFailed(name, err)
			s.log.Error("step failed", zap.String("step", name), zap.Error(err))
			return out, &DeploymentError{
				Step:      name,
				Index:     i,
				Err:       err,
				Confirmed: out.Addresses(),
			}
		}

		out.set(name, result)
		elapsed := time.Since(start)
		s.notifyConfirmed(name, result, elapsed)

		fields := []zap.Field{
			zap.String("step", name),
			zap.String("tx", result.Receipt.TxHash.Hex()),
			zap.Uint64("block", result.Receipt.BlockNumber),
			zap.Duration("elapsed", elapsed),
		}
		if result.Contract != nil {
			fields = append(fields, zap.String("address", result.Contract.Address.Hex()))
		}
		s.log.Info("step confirmed", fields...)
	}
	return out, nil
}

func (s *Sequencer) runStep(ctx context.Context, st Step, out *Outputs) (Output, error) {
	stepCtx := ctx
	if s.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, s.opts.StepTimeout)
		defer cancel()
	}

	tx, err := st.submit(stepCtx, s.opts.Ledger, out)
	if err != nil {
		return Output{}, s.stepError(ctx, "submit", err)
	}
	s.log.Debug("submitted", zap.String("step", st.StepName()), zap.String("tx", tx.Hash.Hex()), zap.Uint64("nonce", tx.Nonce))

	rcpt, err := s.opts.Ledger.WaitForConfirmation(stepCtx, tx)
	if err != nil {
		return Output{}, s.stepError(ctx, "confirm", err)
	}
	return st.record(tx, rcpt)
}

// stepError maps an expired step deadline to ledger.ErrTimedOut.
func (s *Sequencer) stepError(parent context.Context, phase string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%s: %w after %s", phase, ledger.ErrTimedOut, s.opts.StepTimeout)
	}
	return fmt.Errorf("%s: %w", phase, err)
}

func (s *Sequencer) notifyStarted(step string) {
	if s.opts.Observer != nil {
		s.opts.Observer.StepStarted(step)
	}
}

func (s *Sequencer) notifyConfirmed(step string, out Output, elapsed time.Duration) {
	if s.opts.Observer != nil {
		s.opts.Observer.StepConfirmed(step, out, elapsed)
	}
}

func (s *Sequencer) notifyFailed(step string, err error) {
	if s.opts.Observer != nil {
		s.opts.Observer.StepFailed(step, err)
	}
}
