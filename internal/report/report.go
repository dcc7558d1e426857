// Package report aggregates and renders benchmark results.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/ollamabench/pkg/types"
)

// ModelStats summarizes all logged rows of one model.
type ModelStats struct {
	Model             string  `yaml:"model"`
	Rows              int     `yaml:"rows"`
	MeanTokensPerSec  float64 `yaml:"mean_tokens_per_sec"`
	MinTokensPerSec   float64 `yaml:"min_tokens_per_sec"`
	MaxTokensPerSec   float64 `yaml:"max_tokens_per_sec"`
	MeanTotalDuration float64 `yaml:"mean_total_duration_ms"`
	GeneratedTokens   uint64  `yaml:"generated_tokens"`
}

// PromptStats summarizes one prompt across all logged runs.
type PromptStats struct {
	Prompt           string  `yaml:"prompt"`
	Rows             int     `yaml:"rows"`
	MeanTokensPerSec float64 `yaml:"mean_tokens_per_sec"`
}

// Summary is the document rendered by RenderMarkdown and RenderYAML.
type Summary struct {
	Models  []ModelStats  `yaml:"models"`
	Prompts []PromptStats `yaml:"prompts"`
}

// Summarize builds per-model and per-prompt stats.
func Summarize(rows []types.LogRow) *Summary {
	return &Summary{Models: Aggregate(rows), Prompts: ByPrompt(rows)}
}

// Aggregate groups rows by model, sorted by model name.
func Aggregate(rows []types.LogRow) []ModelStats {
	byModel := make(map[string]*ModelStats)
	totalDur := make(map[string]uint64)
	for _, r := range rows {
		s, ok := byModel[r.Model]
		if !ok {
			s = &ModelStats{Model: r.Model, MinTokensPerSec: math.Inf(1)}
			byModel[r.Model] = s
		}
		s.Rows++
		s.MeanTokensPerSec += r.TokensPerSec
		s.MinTokensPerSec = math.Min(s.MinTokensPerSec, r.TokensPerSec)
		s.MaxTokensPerSec = math.Max(s.MaxTokensPerSec, r.TokensPerSec)
		s.GeneratedTokens += r.EvalCount
		totalDur[r.Model] += r.TotalDuration
	}
	out := make([]ModelStats, 0, len(byModel))
	for model, s := range byModel {
		s.MeanTokensPerSec = round2(s.MeanTokensPerSec / float64(s.Rows))
		s.MeanTotalDuration = round2(float64(totalDur[model]) / float64(s.Rows) / float64(time.Millisecond))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// ByPrompt groups rows by prompt text in first-seen order.
func ByPrompt(rows []types.LogRow) []PromptStats {
	index := make(map[string]int)
	var out []PromptStats
	for _, r := range rows {
		idx, ok := index[r.Prompt]
		if !ok {
			idx = len(out)
			index[r.Prompt] = idx
			out = append(out, PromptStats{Prompt: r.Prompt})
		}
		out[idx].Rows++
		out[idx].MeanTokensPerSec += r.TokensPerSec
	}
	for i := range out {
		out[i].MeanTokensPerSec = round2(out[i].MeanTokensPerSec / float64(out[i].Rows))
	}
	return out
}

// RenderMarkdown writes the summary as Markdown tables.
func RenderMarkdown(w io.Writer, s *Summary) error {
	if s == nil {
		return fmt.Errorf("summary is nil")
	}
	b := &strings.Builder{}
	fmt.Fprintln(b, "# Benchmark Summary")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "## Models")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "| Model | Rows | Mean tok/s | Min tok/s | Max tok/s | Mean total (ms) | Generated tokens |")
	fmt.Fprintln(b, "|---|---|---|---|---|---|---|")
	for _, m := range s.Models {
		fmt.Fprintf(b, "| %s | %d | %.2f | %.2f | %.2f | %.2f | %s |\n",
			m.Model, m.Rows, m.MeanTokensPerSec, m.MinTokensPerSec, m.MaxTokensPerSec, m.MeanTotalDuration, humanize.Comma(int64(m.GeneratedTokens)))
	}
	if len(s.Prompts) > 0 {
		fmt.Fprintln(b)
		fmt.Fprintln(b, "## Prompts")
		fmt.Fprintln(b)
		fmt.Fprintln(b, "| Prompt | Rows | Mean tok/s |")
		fmt.Fprintln(b, "|---|---|---|")
		for _, p := range s.Prompts {
			fmt.Fprintf(b, "| %s | %d | %.2f |\n", escapeCell(p.Prompt), p.Rows, p.MeanTokensPerSec)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderYAML writes the summary as YAML.
func RenderYAML(w io.Writer, s *Summary) error {
	if s == nil {
		return fmt.Errorf("summary is nil")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// RenderRun writes a Markdown report of one stored run.
func RenderRun(w io.Writer, run *types.Run, results []types.PromptResult) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "# Run %s\n\n", run.ID)
	fmt.Fprintf(b, "- Model: %s\n", run.Model)
	fmt.Fprintf(b, "- Endpoint: %s\n", run.URL)
	fmt.Fprintf(b, "- Log: %s\n", run.CSVPath)
	fmt.Fprintf(b, "- Seed: %d\n", run.Seed)
	fmt.Fprintf(b, "- Status: %s\n", run.Status)
	fmt.Fprintf(b, "- Started: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(b, "- Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(b, "- Prompts: %d ok, %d failed of %d\n\n", run.Succeeded, run.Failed, run.Total)

	fmt.Fprintln(b, "| # | Prompt | Temp | Outcome | tok/s | Latency (ms) |")
	fmt.Fprintln(b, "|---|---|---|---|---|---|")
	for _, r := range results {
		outcome := r.Outcome
		if r.Outcome == types.OutcomeStatus {
			outcome = fmt.Sprintf("status %d", r.StatusCode)
		}
		fmt.Fprintf(b, "| %d | %s | %.1f | %s | %s | %s |\n",
			r.Seq, escapeCell(r.Prompt), r.Temperature, outcome, types.FormatTokensPerSec(r.TokensPerSec), humanize.Comma(r.LatencyMs))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
