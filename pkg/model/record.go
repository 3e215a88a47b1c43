package model

import "time"

// RecordStatus is the value of the status field on a sink row.
type RecordStatus string

const (
	StatusCompleted  RecordStatus = "Completed"
	StatusNotStarted RecordStatus = "Not Started"
)

// Record is a row in the destination table.
type Record struct {
	ID       string
	Title    string
	TaskList string
	Status   RecordStatus
	Due      *time.Time
	Archived bool
}

// RecordFields holds everything needed to create a row.
type RecordFields struct {
	Title    string
	TaskList string
	Status   RecordStatus
	Due      *time.Time
}

// RecordPatch is a partial update. Only non-nil fields are written.
type RecordPatch struct {
	Title    *string
	TaskList *string
	Status   *RecordStatus
}

// Empty reports whether the patch would change nothing.
func (p RecordPatch) Empty() bool {
	return p.Title == nil && p.TaskList == nil && p.Status == nil
}
