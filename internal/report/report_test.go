package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/ollamabench/pkg/types"
)

func sampleRows() []types.LogRow {
	return []types.LogRow{
		{Model: "qwen2.5:0.5b", Prompt: "a", TokensPerSec: 100, EvalCount: 1000, TotalDuration: 2000000000},
		{Model: "llama3.2:1b", Prompt: "a", TokensPerSec: 40, EvalCount: 200, TotalDuration: 1000000000},
		{Model: "qwen2.5:0.5b", Prompt: "b", TokensPerSec: 50, EvalCount: 500, TotalDuration: 1000000000},
	}
}

func TestAggregate(t *testing.T) {
	stats := Aggregate(sampleRows())
	require.Len(t, stats, 2)
	assert.Equal(t, "llama3.2:1b", stats[0].Model)

	q := stats[1]
	assert.Equal(t, "qwen2.5:0.5b", q.Model)
	assert.Equal(t, 2, q.Rows)
	assert.Equal(t, 75.0, q.MeanTokensPerSec)
	assert.Equal(t, 50.0, q.MinTokensPerSec)
	assert.Equal(t, 100.0, q.MaxTokensPerSec)
	assert.Equal(t, 1500.0, q.MeanTotalDuration)
	assert.Equal(t, uint64(1500), q.GeneratedTokens)
}

func TestByPromptKeepsFirstSeenOrder(t *testing.T) {
	stats := ByPrompt(sampleRows())
	require.Len(t, stats, 2)
	assert.Equal(t, "a", stats[0].Prompt)
	assert.Equal(t, 2, stats[0].Rows)
	assert.Equal(t, 70.0, stats[0].MeanTokensPerSec)
	assert.Equal(t, "b", stats[1].Prompt)
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, Summarize(sampleRows())))
	out := buf.String()
	assert.Contains(t, out, "# Benchmark Summary")
	assert.Contains(t, out, "| qwen2.5:0.5b | 2 | 75.00 | 50.00 | 100.00 | 1500.00 | 1,500 |")
	assert.Contains(t, out, "| a | 2 | 70.00 |")
	assert.Error(t, RenderMarkdown(&buf, nil))
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderYAML(&buf, Summarize(sampleRows())))

	var got Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Models, 2)
	assert.Equal(t, 75.0, got.Models[1].MeanTokensPerSec)
	assert.True(t, strings.Contains(buf.String(), "mean_tokens_per_sec"))
}

func TestRenderRun(t *testing.T) {
	started := time.Date(2025, 6, 30, 10, 0, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)
	run := &types.Run{ID: "01J1", Model: "m", URL: "u", CSVPath: "c.csv", Seed: 42, Status: types.RunCompleted, Total: 2, Succeeded: 1, Failed: 1, StartedAt: started, FinishedAt: &finished}
	results := []types.PromptResult{
		{Seq: 1, Prompt: "a|b", Temperature: 0.2, Outcome: types.OutcomeOK, TokensPerSec: 12.5, LatencyMs: 1500},
		{Seq: 2, Prompt: "c", Temperature: 0.9, Outcome: types.OutcomeStatus, StatusCode: 500, LatencyMs: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRun(&buf, run, results))
	out := buf.String()
	assert.Contains(t, out, "# Run 01J1")
	assert.Contains(t, out, "- Duration: 1m35s")
	assert.Contains(t, out, `| 1 | a\|b | 0.2 | ok | 12.50 | 1,500 |`)
	assert.Contains(t, out, "| 2 | c | 0.9 | status 500 | 0.00 | 3 |")
}
