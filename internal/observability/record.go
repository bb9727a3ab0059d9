package observability

import (
	"math/big"
	"time"

	"amm-lab/internal/domain"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// RecordStep records the outcome of one deployment step.
func (m *Metrics) RecordStep(step, kind string, elapsed time.Duration, err error) {
	m.StepsTotal.WithLabelValues(kind, status(err)).Inc()
	if err == nil {
		m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	}
}

// RecordSwap records one swap iteration.
func (m *Metrics) RecordSwap(rec domain.SwapRecord, elapsed time.Duration) {
	if !rec.Success {
		m.SwapsTotal.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.SwapsTotal.WithLabelValues(StatusSuccess).Inc()
	m.SwapDuration.Observe(elapsed.Seconds())

	if out := rec.AmountOutObserved(); out != nil {
		m.LastSwapAmountOut.Set(toFloat(out))
		if rec.AmountOutExpected != nil && out.Cmp(rec.AmountOutExpected) != 0 {
			m.SwapQuoteMisses.Inc()
		}
	}
	if rec.ReserveInAfter != nil && rec.ReserveOutAfter != nil {
		m.PoolReserve.WithLabelValues("in").Set(toFloat(rec.ReserveInAfter))
		m.PoolReserve.WithLabelValues("out").Set(toFloat(rec.ReserveOutAfter))
	}
}

// RecordRPC records a JSON-RPC call.
func (m *Metrics) RecordRPC(method string, elapsed time.Duration, err error) {
	m.RPCCallLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, elapsed time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(elapsed.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelinePhase records a pipeline phase.
func (m *Metrics) RecordPipelinePhase(phase string, elapsed time.Duration, err error) {
	m.PipelineRunsTotal.WithLabelValues(phase, status(err)).Inc()
	m.PipelineDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// MarkRunSucceeded sets the last successful run timestamp.
func (m *Metrics) MarkRunSucceeded(at time.Time) {
	m.LastSuccessfulRun.Set(float64(at.Unix()))
}

// toFloat converts a token amount for gauges. Precision loss is acceptable.
func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
