package reconcile

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/model"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

type fakeSource struct {
	lists   []model.TaskList
	listErr error
	taskErr map[string]error // by list ID
}

func (f *fakeSource) ListTaskLists(ctx context.Context) ([]model.TaskList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.TaskList, len(f.lists))
	for i, l := range f.lists {
		out[i] = model.TaskList{ID: l.ID, Title: l.Title}
	}
	return out, nil
}

func (f *fakeSource) ListTasks(ctx context.Context, listID string) ([]model.Task, error) {
	if err := f.taskErr[listID]; err != nil {
		return nil, err
	}
	for _, l := range f.lists {
		if l.ID == listID {
			tasks := make([]model.Task, len(l.Tasks))
			for i, t := range l.Tasks {
				t.ListID = listID
				tasks[i] = t
			}
			return tasks, nil
		}
	}
	return nil, nil
}

type call struct {
	op    Op
	id    string
	patch model.RecordPatch
}

// fakeSink is an in-memory table that applies writes and records every call.
type fakeSink struct {
	mu       sync.Mutex
	records  []model.Record
	calls    []call
	nextID   int
	queryErr error
	failOn   map[string]error // by row title
	hook     func(op Op, title string)
}

func (f *fakeSink) QueryRecords(ctx context.Context) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []model.Record
	for _, r := range f.records {
		if !r.Archived {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSink) CreateRecord(ctx context.Context, fields model.RecordFields) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: OpCreate})
	if f.hook != nil {
		f.hook(OpCreate, fields.Title)
	}
	if err := f.failOn[fields.Title]; err != nil {
		return model.Record{}, err
	}
	f.nextID++
	rec := model.Record{
		ID:       fmt.Sprintf("rec-%d", f.nextID),
		Title:    fields.Title,
		TaskList: fields.TaskList,
		Status:   fields.Status,
		Due:      fields.Due,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeSink) UpdateRecord(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: OpUpdate, id: id, patch: patch})
	i := f.indexOf(id)
	if i < 0 {
		return model.Record{}, fmt.Errorf("%w: no row %s", model.ErrInvalid, id)
	}
	if f.hook != nil {
		f.hook(OpUpdate, f.records[i].Title)
	}
	if err := f.failOn[f.records[i].Title]; err != nil {
		return model.Record{}, err
	}
	if patch.Status != nil {
		f.records[i].Status = *patch.Status
	}
	if patch.Title != nil {
		f.records[i].Title = *patch.Title
	}
	if patch.TaskList != nil {
		f.records[i].TaskList = *patch.TaskList
	}
	return f.records[i], nil
}

func (f *fakeSink) ArchiveRecord(ctx context.Context, id string) (model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: OpArchive, id: id})
	i := f.indexOf(id)
	if i < 0 {
		return model.Record{}, fmt.Errorf("%w: no row %s", model.ErrInvalid, id)
	}
	if f.hook != nil {
		f.hook(OpArchive, f.records[i].Title)
	}
	if err := f.failOn[f.records[i].Title]; err != nil {
		return model.Record{}, err
	}
	f.records[i].Archived = true
	return f.records[i], nil
}

func (f *fakeSink) indexOf(id string) int {
	for i, r := range f.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeSink) count(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeSink) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeSink) live() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records {
		if !r.Archived {
			out = append(out, r)
		}
	}
	return out
}

type memLinks struct {
	mu    sync.Mutex
	links map[string]string
}

func newMemLinks() *memLinks {
	return &memLinks{links: make(map[string]string)}
}

func (m *memLinks) Links(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.links))
	for k, v := range m.links {
		out[k] = v
	}
	return out, nil
}

func (m *memLinks) Link(ctx context.Context, taskKey, recordID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[taskKey] = recordID
	return nil
}

func (m *memLinks) UnlinkRecord(ctx context.Context, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.links {
		if v == recordID {
			delete(m.links, k)
		}
	}
	return nil
}
