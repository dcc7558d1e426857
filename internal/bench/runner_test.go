package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/ollamabench/internal/csvlog"
	"github.com/yourorg/ollamabench/internal/ollama"
	"github.com/yourorg/ollamabench/internal/prompts"
	"github.com/yourorg/ollamabench/internal/store"
	"github.com/yourorg/ollamabench/pkg/types"
)

const cannedResponse = `{"model":"qwen2.5:0.5b","created_at":"2025-06-30T10:00:00Z","response":"  answer\n","total_duration":2000000000,"load_duration":1000,"prompt_eval_count":10,"prompt_eval_duration":2000,"eval_count":100,"eval_duration":1000000000}`

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleepFn
	sleepFn = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleepFn = orig })
	return &slept
}

type fixture struct {
	srv      *httptest.Server
	mu       sync.Mutex
	requests []types.GenerateRequest
}

// newFixture serves the canned response unless handle writes something else.
func newFixture(t *testing.T, handle func(w http.ResponseWriter, req types.GenerateRequest) bool) *fixture {
	t.Helper()
	f := &fixture{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		if handle != nil && handle(w, req) {
			return
		}
		_, _ = w.Write([]byte(cannedResponse))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) sent() []types.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.GenerateRequest(nil), f.requests...)
}

func newRunner(t *testing.T, url string) (*Runner, string, *bytes.Buffer) {
	t.Helper()
	csvPath := filepath.Join(t.TempDir(), "log.csv")
	w, err := csvlog.Open(csvPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.CSVPath = csvPath
	out := &bytes.Buffer{}
	return &Runner{
		Config: cfg,
		Client: &ollama.Client{URL: url},
		Log:    w,
		Out:    out,
	}, csvPath, out
}

func dataRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Equal(t, strings.Join(csvlog.Header, ","), lines[0])
	rows := make([][]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		fields := strings.Split(l, ",")
		require.Len(t, fields, 13, l)
		rows = append(rows, fields)
	}
	return rows
}

func TestRequestPayloadForEveryPrompt(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.Prompts, 20)
	for _, p := range cfg.Prompts {
		req := cfg.Request(p)
		body, err := json.Marshal(req)
		require.NoError(t, err)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, false, got["stream"])
		assert.Equal(t, "qwen2.5:0.5b", got["model"])
		assert.Equal(t, p.Text, got["prompt"])
		opts := got["options"].(map[string]interface{})
		assert.Equal(t, 42.0, opts["seed"])
		assert.Equal(t, p.Temperature, opts["temperature"])
	}
}

func TestRunEndToEnd(t *testing.T) {
	slept := noSleep(t)
	f := newFixture(t, nil)
	r, csvPath, out := newRunner(t, f.srv.URL)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, sum.Total)
	assert.Equal(t, 20, sum.Succeeded)
	assert.Equal(t, 0, sum.Failed())

	battery := prompts.Default()
	rows := dataRows(t, csvPath)
	require.Len(t, rows, 20)
	for i, row := range rows {
		assert.Equal(t, "qwen2.5:0.5b", row[1])
		assert.Equal(t, csvlog.Sanitize(battery[i].Text), row[2])
		assert.Equal(t, strconv.FormatFloat(battery[i].Temperature, 'f', -1, 64), row[3])
		assert.Equal(t, "42", row[4])
		assert.Equal(t, "2000000000", row[6])
		assert.Equal(t, "100", row[10])
		assert.Equal(t, "1000000000", row[11])
		assert.Equal(t, "100.00", row[12])
		_, err := time.Parse(time.RFC3339Nano, row[0])
		assert.NoError(t, err)
	}

	sent := f.sent()
	require.Len(t, sent, 20)
	for i, req := range sent {
		assert.False(t, req.Stream)
		assert.Equal(t, int64(42), req.Options.Seed)
		assert.Equal(t, battery[i].Text, req.Prompt)
		assert.Equal(t, battery[i].Temperature, req.Options.Temperature)
	}

	assert.Len(t, *slept, 20)
	for _, d := range *slept {
		assert.Equal(t, 2*time.Second, d)
	}
	assert.Contains(t, out.String(), "[API] Prompt: Name any one river in India.\nResponse: answer\n---\n")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRunSkipsTransportFailure(t *testing.T) {
	noSleep(t)
	f := newFixture(t, nil)
	r, csvPath, out := newRunner(t, f.srv.URL)
	battery := prompts.Default()

	r.Client = &ollama.Client{
		URL: f.srv.URL,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
			if bytes.Contains(body, []byte(battery[4].Text)) {
				return nil, errors.New("connection refused")
			}
			return http.DefaultTransport.RoundTrip(req)
		})},
	}

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TransportFailures)
	assert.Equal(t, 19, sum.Succeeded)

	rows := dataRows(t, csvPath)
	require.Len(t, rows, 19)
	assert.Equal(t, csvlog.Sanitize(battery[3].Text), rows[3][2])
	assert.Equal(t, csvlog.Sanitize(battery[5].Text), rows[4][2])
	for _, row := range rows {
		assert.NotEqual(t, csvlog.Sanitize(battery[4].Text), row[2])
	}
	assert.Contains(t, out.String(), "[API] Error for prompt '"+battery[4].Text+"'")
}

func TestRunSkipsStatusFailure(t *testing.T) {
	slept := noSleep(t)
	battery := prompts.Default()
	f := newFixture(t, func(w http.ResponseWriter, req types.GenerateRequest) bool {
		if req.Prompt == battery[0].Text {
			w.WriteHeader(http.StatusNotFound)
			return true
		}
		return false
	})
	r, csvPath, out := newRunner(t, f.srv.URL)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.StatusFailures)
	assert.Len(t, dataRows(t, csvPath), 19)
	assert.Len(t, *slept, 20)
	assert.Contains(t, out.String(), "[API] Failed status for prompt: "+battery[0].Text+"\n")
}

func TestRunAbortsOnMalformedResponse(t *testing.T) {
	slept := noSleep(t)
	battery := prompts.Default()
	f := newFixture(t, func(w http.ResponseWriter, req types.GenerateRequest) bool {
		if req.Prompt == battery[2].Text {
			_, _ = w.Write([]byte(`{"unexpected":true}`))
			return true
		}
		return false
	})
	r, csvPath, _ := newRunner(t, f.srv.URL)

	_, err := r.Run(context.Background())
	var decodeErr *ollama.DecodeError
	require.True(t, errors.As(err, &decodeErr), "got %v", err)
	assert.Len(t, dataRows(t, csvPath), 2)
	assert.Len(t, f.sent(), 3)
	assert.Len(t, *slept, 2)
}

func TestRunSkipMalformedContinues(t *testing.T) {
	noSleep(t)
	battery := prompts.Default()
	f := newFixture(t, func(w http.ResponseWriter, req types.GenerateRequest) bool {
		if req.Prompt == battery[2].Text {
			_, _ = w.Write([]byte(`<html>`))
			return true
		}
		return false
	})
	r, csvPath, out := newRunner(t, f.srv.URL)
	r.Config.SkipMalformed = true

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DecodeFailures)
	assert.Len(t, dataRows(t, csvPath), 19)
	assert.Contains(t, out.String(), "[API] Malformed response for prompt: "+battery[2].Text)
}

type failingLog struct{}

func (failingLog) Append(types.LogRow) error { return errors.New("disk full") }

func TestRunAbortsOnWriteFailure(t *testing.T) {
	noSleep(t)
	f := newFixture(t, nil)
	r, _, _ := newRunner(t, f.srv.URL)
	r.Log = failingLog{}

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, f.sent(), 1)
}

func TestRunRecordsHistory(t *testing.T) {
	noSleep(t)
	battery := prompts.Default()
	f := newFixture(t, func(w http.ResponseWriter, req types.GenerateRequest) bool {
		if req.Prompt == battery[1].Text {
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		}
		return false
	})
	r, _, _ := newRunner(t, f.srv.URL)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()
	r.Store = st
	r.Config.Prompts = battery[:3]

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, sum.RunID)

	run, err := st.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, f.srv.URL, run.URL)

	results, err := st.GetResults(sum.RunID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, types.OutcomeOK, results[0].Outcome)
	assert.Equal(t, 100.0, results[0].TokensPerSec)
	assert.Equal(t, types.OutcomeStatus, results[1].Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, results[1].StatusCode)
	assert.Equal(t, battery[2].Text, results[2].Prompt)
}

func TestRunMarksAbortedRun(t *testing.T) {
	noSleep(t)
	f := newFixture(t, func(w http.ResponseWriter, req types.GenerateRequest) bool {
		_, _ = w.Write([]byte(`{"model":"m"}`))
		return true
	})
	r, _, _ := newRunner(t, f.srv.URL)
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()
	r.Store = st

	sum, err := r.Run(context.Background())
	require.Error(t, err)
	run, err := st.GetRun(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunAborted, run.Status)
	assert.Equal(t, 1, run.Failed)
}

func TestRunRequiresClientAndLog(t *testing.T) {
	_, err := (&Runner{Log: failingLog{}}).Run(context.Background())
	assert.Error(t, err)
	_, err = (&Runner{Client: &ollama.Client{}}).Run(context.Background())
	assert.Error(t, err)
}
