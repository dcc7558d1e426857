// Package bench drives the sequential benchmark loop.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/ollamabench/internal/config"
	"github.com/yourorg/ollamabench/internal/ollama"
	"github.com/yourorg/ollamabench/internal/prompts"
	"github.com/yourorg/ollamabench/internal/store"
	"github.com/yourorg/ollamabench/pkg/types"
)

var (
	sleepFn = time.Sleep
	nowFn   = time.Now
)

// Config is the immutable description of one benchmark run.
type Config struct {
	URL           string
	Model         string
	Seed          int64
	CSVPath       string
	Throttle      time.Duration
	SkipMalformed bool
	Prompts       []types.PromptEntry
}

// DefaultConfig returns the built-in benchmark: the default battery against
// qwen2.5:0.5b on the local server, seed 42, 2s between prompts.
func DefaultConfig() Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	return FromConfig(cfg)
}

// FromConfig builds a run description from loaded configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		URL:           cfg.Ollama.URL,
		Model:         cfg.Ollama.Model,
		Seed:          cfg.Ollama.Seed,
		CSVPath:       cfg.Output.CSVPath,
		Throttle:      cfg.Throttle(),
		SkipMalformed: cfg.Bench.SkipMalformed,
		Prompts:       prompts.Default(),
	}
}

// Request builds the generate payload for one prompt.
func (c Config) Request(p types.PromptEntry) types.GenerateRequest {
	return types.GenerateRequest{
		Model:  c.Model,
		Prompt: p.Text,
		Stream: false,
		Options: types.GenerateOptions{
			Temperature: p.Temperature,
			Seed:        c.Seed,
		},
	}
}

// Generator performs one inference call.
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.InferenceResponse, error)
}

// RowAppender durably appends one log row.
type RowAppender interface {
	Append(row types.LogRow) error
}

// Summary counts the outcomes of a run.
type Summary struct {
	RunID             string
	Total             int
	Succeeded         int
	StatusFailures    int
	TransportFailures int
	DecodeFailures    int
}

// Failed is the number of prompts that produced no log row.
func (s *Summary) Failed() int {
	return s.StatusFailures + s.TransportFailures + s.DecodeFailures
}

// Runner sends the prompts one at a time and logs each successful response.
// Store and Logger are optional.
type Runner struct {
	Config Config
	Client Generator
	Log    RowAppender
	Store  store.Store
	Out    io.Writer
	Logger *slog.Logger
}

// Run executes every prompt in order. Transport and status failures skip the
// prompt; a log write failure, a store failure or (unless SkipMalformed) a
// malformed response aborts the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.Client == nil {
		return nil, errors.New("client is nil")
	}
	if r.Log == nil {
		return nil, errors.New("log is nil")
	}
	sum := &Summary{Total: len(r.Config.Prompts)}
	if r.Store != nil {
		run, err := r.Store.CreateRun(r.Config.Model, r.Config.URL, r.Config.CSVPath, r.Config.Seed, sum.Total)
		if err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		sum.RunID = run.ID
	}
	r.logInfo("benchmark started", "run", sum.RunID, "model", r.Config.Model, "prompts", sum.Total)

	for i, p := range r.Config.Prompts {
		if err := r.runPrompt(ctx, i+1, p, sum); err != nil {
			_ = r.finish(sum, types.RunAborted)
			return sum, err
		}
		sleepFn(r.Config.Throttle)
	}

	if err := r.finish(sum, types.RunCompleted); err != nil {
		return sum, err
	}
	r.logInfo("benchmark finished", "run", sum.RunID, "succeeded", sum.Succeeded, "failed", sum.Failed())
	return sum, nil
}

func (r *Runner) runPrompt(ctx context.Context, seq int, p types.PromptEntry, sum *Summary) error {
	out := r.out()
	start := nowFn()
	resp, err := r.Client.Generate(ctx, r.Config.Request(p))
	result := &types.PromptResult{
		RunID:       sum.RunID,
		Seq:         seq,
		Prompt:      p.Text,
		Temperature: p.Temperature,
		LatencyMs:   nowFn().Sub(start).Milliseconds(),
	}

	if err != nil {
		var statusErr *ollama.StatusError
		var decodeErr *ollama.DecodeError
		switch {
		case errors.As(err, &statusErr):
			sum.StatusFailures++
			result.Outcome = types.OutcomeStatus
			result.StatusCode = statusErr.StatusCode
			fmt.Fprintf(out, "[API] Failed status for prompt: %s\n", p.Text)
		case errors.As(err, &decodeErr):
			sum.DecodeFailures++
			result.Outcome = types.OutcomeDecode
			if !r.Config.SkipMalformed {
				result.Error = err.Error()
				_ = r.record(result)
				return fmt.Errorf("prompt %d %q: %w", seq, p.Text, err)
			}
			fmt.Fprintf(out, "[API] Malformed response for prompt: %s\n", p.Text)
		default:
			sum.TransportFailures++
			result.Outcome = types.OutcomeTransport
			fmt.Fprintf(out, "[API] Error for prompt '%s': %v\n", p.Text, err)
		}
		result.Error = err.Error()
		r.logWarn("prompt skipped", "seq", seq, "outcome", result.Outcome, "error", err)
		return r.record(result)
	}

	row := types.NewLogRow(nowFn(), p, r.Config.Seed, resp)
	if err := r.Log.Append(row); err != nil {
		return err
	}
	sum.Succeeded++
	fmt.Fprintf(out, "[API] Prompt: %s\nResponse: %s\n---\n", p.Text, strings.TrimSpace(resp.Response))

	result.Outcome = types.OutcomeOK
	result.EvalCount = row.EvalCount
	result.EvalDuration = row.EvalDuration
	result.TokensPerSec = row.TokensPerSec
	r.logInfo("prompt done", "seq", seq, "tokens_per_sec", types.FormatTokensPerSec(row.TokensPerSec), "latency_ms", result.LatencyMs)
	return r.record(result)
}

func (r *Runner) record(result *types.PromptResult) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.SaveResult(result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (r *Runner) finish(sum *Summary, status string) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.FinishRun(sum.RunID, status, sum.Succeeded, sum.Failed()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) logInfo(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Info(msg, args...)
	}
}

func (r *Runner) logWarn(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Warn(msg, args...)
	}
}
