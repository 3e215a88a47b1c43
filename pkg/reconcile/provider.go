package reconcile

import (
	"context"

	"github.com/harrisonrobin/tasknotion/pkg/model"
)

// Source exposes the current state of the task service.
type Source interface {
	ListTaskLists(ctx context.Context) ([]model.TaskList, error)
	ListTasks(ctx context.Context, listID string) ([]model.Task, error)
}

// Sink exposes the rows of the destination table. Rows are archived, never deleted.
type Sink interface {
	QueryRecords(ctx context.Context) ([]model.Record, error)
	CreateRecord(ctx context.Context, fields model.RecordFields) (model.Record, error)
	UpdateRecord(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error)
	ArchiveRecord(ctx context.Context, id string) (model.Record, error)
}

// LinkStore persists the task key -> record ID cross-reference.
type LinkStore interface {
	Links(ctx context.Context) (map[string]string, error)
	Link(ctx context.Context, taskKey, recordID, title string) error
	UnlinkRecord(ctx context.Context, recordID string) error
}
