package model

import "time"

// TaskState is the completion state reported by the task source.
type TaskState string

const (
	StateOpen      TaskState = "open"
	StateCompleted TaskState = "completed"
)

// Task represents a single task from the source service.
type Task struct {
	ID     string
	ListID string
	Title  string
	State  TaskState
	Due    *time.Time // nil when the task has no due date
}

// Key identifies the task across lists. Source IDs are only unique within a list.
func (t Task) Key() string {
	return t.ListID + "/" + t.ID
}

// TaskList is a named, ordered grouping of tasks.
type TaskList struct {
	ID    string
	Title string
	Tasks []Task
}
