package domain

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial" // swap loop stopped early
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution of the deployment-and-swap pipeline.
// Corresponds to runs table in PostgreSQL.
type Run struct {
	RunID          string    // PRIMARY KEY, uuid
	ChainID        int64     // network chain id
	Account        string    // signing account address (hex)
	Status         RunStatus // running | succeeded | partial | failed
	FailedStep     string    // sequencer step or "swap #N" that failed
	Error          string    // failure reason
	SwapsRequested int
	SwapsSucceeded int
	StartedAt      int64 // Unix timestamp in milliseconds
	FinishedAt     int64 // Unix timestamp in milliseconds, 0 while running
}
