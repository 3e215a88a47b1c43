package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/tasknotion/pkg/model"
)

// Op is a sink write.
type Op string

const (
	OpCreate  Op = "create"
	OpArchive Op = "archive"
	OpUpdate  Op = "update"
)

// Outcome is the result of one attempted (or skipped) sink write.
type Outcome struct {
	Op       Op              `json:"op"`
	Title    string          `json:"title"`
	TaskID   string          `json:"task_id,omitempty"`
	RecordID string          `json:"record_id,omitempty"`
	Fields   []string        `json:"fields,omitempty"`
	Kind     model.ErrorKind `json:"kind,omitempty"`
	Error    string          `json:"error,omitempty"`
	Skipped  bool            `json:"skipped,omitempty"`
	Err      error           `json:"-"`
}

// OK reports whether the write was attempted and succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && !o.Skipped
}

// Report collects everything that happened during one reconciliation cycle.
type Report struct {
	CycleID  string    `json:"cycle_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Lists   int `json:"lists"`
	Tasks   int `json:"tasks"`
	Records int `json:"records"`

	Outcomes []Outcome `json:"outcomes"`

	AbortReason string `json:"aborted,omitempty"`
	Aborted     error  `json:"-"`
}

func newReport(now time.Time) *Report {
	return &Report{
		CycleID: uuid.New().String(),
		Started: now,
	}
}

func (r *Report) abort(err error) {
	if r.Aborted != nil || err == nil {
		return
	}
	r.Aborted = err
	r.AbortReason = err.Error()
}

// ShortID is the cycle ID prefix used in log lines.
func (r *Report) ShortID() string {
	if len(r.CycleID) < 8 {
		return r.CycleID
	}
	return r.CycleID[:8]
}

func (r *Report) succeeded(op Op) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Op == op && o.OK() {
			n++
		}
	}
	return n
}

func (r *Report) Created() int  { return r.succeeded(OpCreate) }
func (r *Report) Archived() int { return r.succeeded(OpArchive) }
func (r *Report) Updated() int  { return r.succeeded(OpUpdate) }

// Failed returns the number of writes that were attempted and failed.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Skipped returns the number of writes never attempted because the cycle was aborted.
func (r *Report) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}

// Writes returns the number of sink write calls made.
func (r *Report) Writes() int {
	return len(r.Outcomes) - r.Skipped()
}

// Duration is how long the cycle took.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
