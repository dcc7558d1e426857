package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/yourorg/ollamabench/pkg/types"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("run not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			url TEXT NOT NULL,
			csv_path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			status TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			temperature REAL NOT NULL,
			outcome TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			error_msg TEXT NOT NULL DEFAULT '',
			eval_count INTEGER NOT NULL DEFAULT 0,
			eval_duration INTEGER NOT NULL DEFAULT 0,
			tokens_per_sec REAL NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY(run_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateRun(model, url, csvPath string, seed int64, total int) (*types.Run, error) {
	now := time.Now().UTC()
	run := &types.Run{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Model:     model,
		URL:       url,
		CSVPath:   csvPath,
		Seed:      seed,
		Status:    types.RunRunning,
		Total:     total,
		StartedAt: now,
	}
	_, err := s.db.Exec(`INSERT INTO runs(id,model,url,csv_path,seed,status,total,succeeded,failed,started_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Model, run.URL, run.CSVPath, run.Seed, run.Status, run.Total, 0, 0, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(id, status string, succeeded, failed int) error {
	res, err := s.db.Exec(`UPDATE runs SET status=?, succeeded=?, failed=?, finished_at=? WHERE id=?`, status, succeeded, failed, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id,model,url,csv_path,seed,status,total,succeeded,failed,started_at,finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*types.Run, error) {
	var out types.Run
	var finished sql.NullTime
	if err := row.Scan(&out.ID, &out.Model, &out.URL, &out.CSVPath, &out.Seed, &out.Status, &out.Total, &out.Succeeded, &out.Failed, &out.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		out.FinishedAt = &t
	}
	return &out, nil
}

func (s *SQLiteStore) GetRun(id string) (*types.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func (s *SQLiteStore) ListRuns() ([]types.Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM results WHERE run_id=?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveResult(r *types.PromptResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO results(run_id,seq,prompt,temperature,outcome,status_code,error_msg,eval_count,eval_duration,tokens_per_sec,latency_ms,created_at)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(run_id,seq) DO UPDATE SET outcome=excluded.outcome,status_code=excluded.status_code,error_msg=excluded.error_msg,eval_count=excluded.eval_count,eval_duration=excluded.eval_duration,tokens_per_sec=excluded.tokens_per_sec,latency_ms=excluded.latency_ms,created_at=excluded.created_at`,
		r.RunID, r.Seq, r.Prompt, r.Temperature, r.Outcome, r.StatusCode, r.Error, int64(r.EvalCount), int64(r.EvalDuration), r.TokensPerSec, r.LatencyMs, r.CreatedAt)
	return err
}

func (s *SQLiteStore) GetResults(runID string) ([]types.PromptResult, error) {
	rows, err := s.db.Query(`SELECT run_id,seq,prompt,temperature,outcome,status_code,error_msg,eval_count,eval_duration,tokens_per_sec,latency_ms,created_at FROM results WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.PromptResult, 0)
	for rows.Next() {
		var r types.PromptResult
		var evalCount, evalDuration int64
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Prompt, &r.Temperature, &r.Outcome, &r.StatusCode, &r.Error, &evalCount, &evalDuration, &r.TokensPerSec, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.EvalCount = uint64(evalCount)
		r.EvalDuration = uint64(evalDuration)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
