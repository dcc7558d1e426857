package types

import (
	"strconv"
	"time"
)

// PromptEntry is one prompt of the benchmark battery.
type PromptEntry struct {
	Text        string  `json:"text" yaml:"text"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// GenerateRequest is the body of a non-streaming /api/generate call.
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

// GenerateOptions carries the sampling options.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        int64   `json:"seed"`
}

// InferenceResponse is one parsed /api/generate response.
// Optional counters are nil when the server omitted them.
type InferenceResponse struct {
	Model              string  `json:"model"`
	CreatedAt          *string `json:"created_at,omitempty"`
	Response           string  `json:"response"`
	TotalDuration      *uint64 `json:"total_duration,omitempty"`
	LoadDuration       *uint64 `json:"load_duration,omitempty"`
	PromptEvalCount    *uint64 `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration *uint64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          *uint64 `json:"eval_count,omitempty"`
	EvalDuration       *uint64 `json:"eval_duration,omitempty"`
}

// TokensPerSecond returns generated tokens per second of eval time,
// or 0 when eval_duration is missing or zero.
func (r *InferenceResponse) TokensPerSecond() float64 {
	dur := valueOrZero(r.EvalDuration)
	if dur == 0 {
		return 0
	}
	return float64(valueOrZero(r.EvalCount)) / (float64(dur) / 1e9)
}

// LogRow is one line of the CSV benchmark log.
type LogRow struct {
	Timestamp          time.Time
	Model              string
	Prompt             string
	Temperature        float64
	Seed               int64
	Response           string
	TotalDuration      uint64
	LoadDuration       uint64
	PromptEvalCount    uint64
	PromptEvalDuration uint64
	EvalCount          uint64
	EvalDuration       uint64
	TokensPerSec       float64
}

// NewLogRow builds a row from a parsed response, zero-filling absent counters.
func NewLogRow(ts time.Time, entry PromptEntry, seed int64, resp *InferenceResponse) LogRow {
	return LogRow{
		Timestamp:          ts,
		Model:              resp.Model,
		Prompt:             entry.Text,
		Temperature:        entry.Temperature,
		Seed:               seed,
		Response:           resp.Response,
		TotalDuration:      valueOrZero(resp.TotalDuration),
		LoadDuration:       valueOrZero(resp.LoadDuration),
		PromptEvalCount:    valueOrZero(resp.PromptEvalCount),
		PromptEvalDuration: valueOrZero(resp.PromptEvalDuration),
		EvalCount:          valueOrZero(resp.EvalCount),
		EvalDuration:       valueOrZero(resp.EvalDuration),
		TokensPerSec:       resp.TokensPerSecond(),
	}
}

// FormatTokensPerSec renders the throughput with two decimals.
func FormatTokensPerSec(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func valueOrZero(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
