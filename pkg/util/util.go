package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknotion/pkg/model"
)

const (
	NEEDS_UPDATE_TITLE  = "title"
	NEEDS_UPDATE_LIST   = "tasklist"
	NEEDS_UPDATE_STATUS = "status"
)

// DeriveStatus maps a task's completion state onto the sink's status field.
// Anything that is not completed counts as not started.
func DeriveStatus(task *model.Task) model.RecordStatus {
	if task != nil && task.State == model.StateCompleted {
		return model.StatusCompleted
	}
	return model.StatusNotStarted
}

// ParseDue parses an RFC 3339 due timestamp. An empty string means no due date.
func ParseDue(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid due timestamp %q: %w", s, err)
	}
	return &t, nil
}

// ConvertTaskToRecordFields builds the fields of a new row for task, which lives in the list titled listTitle.
// The due field is only set when the task carries a due timestamp.
func ConvertTaskToRecordFields(task *model.Task, listTitle string) (model.RecordFields, error) {
	if task == nil {
		return model.RecordFields{}, fmt.Errorf("could not convert nil Task")
	}

	fields := model.RecordFields{
		Title:    task.Title,
		TaskList: listTitle,
		Status:   DeriveStatus(task),
	}
	if task.Due != nil && !task.Due.IsZero() {
		due := *task.Due
		fields.Due = &due
	}
	return fields, nil
}

// RecordNeedsUpdate returns a patch if the fields shared between a task and its row differ, or nil.
// The status is always compared; title and list name only when identity is true, which is the case
// when the pair was matched by task ID rather than by title.
func RecordNeedsUpdate(task *model.Task, listTitle string, record *model.Record, identity bool) (*model.RecordPatch, []string) {
	patch := &model.RecordPatch{}
	var changed []string

	if want := DeriveStatus(task); record.Status != want {
		patch.Status = &want
		changed = append(changed, NEEDS_UPDATE_STATUS)
	}

	if identity {
		if record.Title != task.Title {
			title := task.Title
			patch.Title = &title
			changed = append(changed, NEEDS_UPDATE_TITLE)
		}
		if record.TaskList != listTitle {
			list := listTitle
			patch.TaskList = &list
			changed = append(changed, NEEDS_UPDATE_LIST)
		}
	}

	if patch.Empty() {
		return nil, nil
	}
	return patch, changed
}
