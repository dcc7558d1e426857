package types

import "time"

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// Prompt outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeStatus    = "status"
	OutcomeTransport = "transport"
	OutcomeDecode    = "decode"
)

// Run records one invocation of the benchmark.
type Run struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	URL        string     `json:"url"`
	CSVPath    string     `json:"csv_path"`
	Seed       int64      `json:"seed"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PromptResult is the outcome of one prompt within a run.
type PromptResult struct {
	RunID        string    `json:"run_id"`
	Seq          int       `json:"seq"`
	Prompt       string    `json:"prompt"`
	Temperature  float64   `json:"temperature"`
	Outcome      string    `json:"outcome"`
	StatusCode   int       `json:"status_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	EvalCount    uint64    `json:"eval_count"`
	EvalDuration uint64    `json:"eval_duration"`
	TokensPerSec float64   `json:"tokens_per_sec"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
