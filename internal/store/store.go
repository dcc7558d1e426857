package store

import "github.com/yourorg/ollamabench/pkg/types"

type Store interface {
	CreateRun(model, url, csvPath string, seed int64, total int) (*types.Run, error)
	FinishRun(id, status string, succeeded, failed int) error
	GetRun(id string) (*types.Run, error)
	ListRuns() ([]types.Run, error)
	DeleteRun(id string) error

	SaveResult(result *types.PromptResult) error
	GetResults(runID string) ([]types.PromptResult, error)

	Close() error
}
