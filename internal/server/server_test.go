package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/ollamabench/internal/config"
	"github.com/yourorg/ollamabench/internal/store"
	"github.com/yourorg/ollamabench/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	srv, err := New(cfg, st, nil)
	require.NoError(t, err)
	return srv, st
}

func serve(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
	_, err = New(&config.Config{}, nil, nil)
	assert.Error(t, err)
}

func TestAddr(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, "127.0.0.1:3000", srv.Addr())
}

func TestRunsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []types.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	assert.Empty(t, runs)
}

func TestRunDetailAndReport(t *testing.T) {
	srv, st := newTestServer(t)
	run, err := st.CreateRun("m", "http://localhost:11434/api/generate", "log.csv", 42, 1)
	require.NoError(t, err)
	require.NoError(t, st.SaveResult(&types.PromptResult{RunID: run.ID, Seq: 1, Prompt: "hello", Temperature: 0.2, Outcome: types.OutcomeOK, TokensPerSec: 100}))
	require.NoError(t, st.FinishRun(run.ID, types.RunCompleted, 1, 0))

	rec := serve(srv, http.MethodGet, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Run     *types.Run           `json:"run"`
		Results []types.PromptResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	require.NotNil(t, detail.Run)
	assert.Equal(t, run.ID, detail.Run.ID)
	require.Len(t, detail.Results, 1)
	assert.Equal(t, "hello", detail.Results[0].Prompt)

	rec = serve(srv, http.MethodGet, "/api/runs/"+run.ID+"/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, rec.Body.String(), "# Run "+run.ID)
}

func TestRunNotFoundAndMethods(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/api/runs/missing").Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/api/runs/missing/report").Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/api/runs/x/other").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(srv, http.MethodPost, "/api/runs").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(srv, http.MethodDelete, "/api/runs/x").Code)
}

func TestPrompts(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/api/prompts")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []types.PromptEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Len(t, got, 20)
}
