// Package reconcile diffs task lists against table rows and applies the difference.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/model"
	"github.com/harrisonrobin/tasknotion/pkg/util"
	"golang.org/x/sync/errgroup"
)

// Identity selects how tasks are matched to rows.
type Identity string

const (
	IdentityTitle  Identity = "title"
	IdentityLinked Identity = "linked"
)

const (
	defaultTimeout   = 30 * time.Second
	fetchConcurrency = 4
)

// Options tune a Reconciler. Zero values select the defaults.
type Options struct {
	Identity    Identity
	Concurrency int           // parallel writes within a phase
	Timeout     time.Duration // per provider call
}

// Reconciler runs reconciliation cycles. It keeps no state between cycles.
type Reconciler struct {
	source Source
	sink   Sink
	links  LinkStore
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

// New creates a Reconciler. links may be nil, in which case no cross-reference is kept
// and linked identity degrades to title matching.
func New(source Source, sink Sink, links LinkStore, logger *log.Logger, opts Options) *Reconciler {
	if opts.Identity == "" {
		opts.Identity = IdentityTitle
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		source: source,
		sink:   sink,
		links:  links,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run performs one cycle: fetch both sides, classify, then create, archive and update in
// that order. Per-item failures are recorded and do not stop the cycle; an authorization
// failure stops everything not yet dispatched.
func (r *Reconciler) Run(ctx context.Context) *Report {
	report := newReport(r.now())
	c := &cycle{report: report, logger: r.logger.With("cycle", report.ShortID())}

	lists, records, err := r.fetch(ctx)
	if err != nil {
		report.abort(err)
		c.logger.Error("cycle aborted, could not fetch snapshot", "kind", model.KindOf(err), "err", err)
		report.Finished = r.now()
		return report
	}
	report.Lists = len(lists)
	for _, l := range lists {
		report.Tasks += len(l.Tasks)
	}
	report.Records = len(records)

	links := r.loadLinks(ctx, c)
	var matchLinks map[string]string
	if r.opts.Identity == IdentityLinked {
		matchLinks = links
		if matchLinks == nil {
			matchLinks = map[string]string{}
		}
	}

	cls := Match(lists, records, matchLinks)
	c.logger.Debug("classified snapshot",
		"new", len(cls.New), "changed", len(cls.Changed), "renamed", len(cls.Renamed),
		"unchanged", len(cls.Unchanged), "orphaned", len(cls.Orphaned), "skipped", len(cls.Skipped))
	for _, p := range cls.Skipped {
		c.logger.Warn("skipping task without title", "task_id", p.Task.ID, "list", p.ListTitle)
	}
	r.rememberTitleMatches(ctx, c, cls, links)

	r.runPhase(ctx, c, r.createItems(cls))
	r.runPhase(ctx, c, r.archiveItems(cls))
	r.runPhase(ctx, c, r.updateItems(cls))

	report.Finished = r.now()
	c.logger.Info("cycle finished",
		"created", report.Created(), "archived", report.Archived(), "updated", report.Updated(),
		"failed", report.Failed(), "skipped", report.Skipped(), "took", report.Duration().Round(time.Millisecond))
	return report
}

func (r *Reconciler) fetch(ctx context.Context) ([]model.TaskList, []model.Record, error) {
	var (
		lists   []model.TaskList
		records []model.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lists, err = r.fetchTaskLists(gctx)
		return err
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, r.opts.Timeout)
		defer cancel()
		recs, err := r.sink.QueryRecords(callCtx)
		if err != nil {
			return fmt.Errorf("querying records: %w", err)
		}
		records = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lists, records, nil
}

func (r *Reconciler) fetchTaskLists(ctx context.Context) ([]model.TaskList, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	lists, err := r.source.ListTaskLists(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("listing task lists: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i := range lists {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, r.opts.Timeout)
			defer cancel()
			tasks, err := r.source.ListTasks(callCtx, lists[i].ID)
			if err != nil {
				return fmt.Errorf("listing tasks of %q: %w", lists[i].Title, err)
			}
			lists[i].Tasks = tasks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (r *Reconciler) loadLinks(ctx context.Context, c *cycle) map[string]string {
	if r.links == nil {
		return nil
	}
	links, err := r.links.Links(ctx)
	if err != nil {
		c.logger.Warn("could not load task links, matching by title", "err", err)
		return nil
	}
	return links
}

// rememberTitleMatches records links for pairs that were matched by title so later cycles
// can follow them in linked mode.
func (r *Reconciler) rememberTitleMatches(ctx context.Context, c *cycle, cls Classification, links map[string]string) {
	if r.links == nil {
		return
	}
	for _, pairs := range [][]Pair{cls.Changed, cls.Unchanged} {
		for _, p := range pairs {
			if p.Linked || links[p.Task.Key()] == p.Record.ID {
				continue
			}
			if err := r.links.Link(ctx, p.Task.Key(), p.Record.ID, p.Task.Title); err != nil {
				c.logger.Warn("could not link task", "title", p.Task.Title, "task_id", p.Task.ID, "record_id", p.Record.ID, "err", err)
			}
		}
	}
}

type item struct {
	op       Op
	title    string
	taskID   string
	recordID string
	fields   []string
	call     func(ctx context.Context) (model.Record, error)
	after    func(ctx context.Context, rec model.Record) error
}

func (r *Reconciler) createItems(cls Classification) []item {
	items := make([]item, 0, len(cls.New))
	for _, p := range cls.New {
		task := p.Task
		fields, err := util.ConvertTaskToRecordFields(&task, p.ListTitle)
		it := item{op: OpCreate, title: task.Title, taskID: task.ID}
		it.call = func(ctx context.Context) (model.Record, error) {
			if err != nil {
				return model.Record{}, fmt.Errorf("%w: %v", model.ErrInvalid, err)
			}
			return r.sink.CreateRecord(ctx, fields)
		}
		if r.links != nil {
			it.after = func(ctx context.Context, rec model.Record) error {
				return r.links.Link(ctx, task.Key(), rec.ID, task.Title)
			}
		}
		items = append(items, it)
	}
	return items
}

func (r *Reconciler) archiveItems(cls Classification) []item {
	items := make([]item, 0, len(cls.Orphaned))
	for _, rec := range cls.Orphaned {
		id := rec.ID
		it := item{op: OpArchive, title: rec.Title, recordID: id}
		it.call = func(ctx context.Context) (model.Record, error) {
			return r.sink.ArchiveRecord(ctx, id)
		}
		if r.links != nil {
			it.after = func(ctx context.Context, _ model.Record) error {
				return r.links.UnlinkRecord(ctx, id)
			}
		}
		items = append(items, it)
	}
	return items
}

func (r *Reconciler) updateItems(cls Classification) []item {
	items := make([]item, 0, len(cls.Changed)+len(cls.Renamed))
	for _, pairs := range [][]Pair{cls.Changed, cls.Renamed} {
		for _, p := range pairs {
			id, patch := p.Record.ID, *p.Patch
			items = append(items, item{
				op:       OpUpdate,
				title:    p.Task.Title,
				taskID:   p.Task.ID,
				recordID: id,
				fields:   p.Fields,
				call: func(ctx context.Context) (model.Record, error) {
					return r.sink.UpdateRecord(ctx, id, patch)
				},
			})
		}
	}
	return items
}

// runPhase attempts every item, at most opts.Concurrency at a time, and returns once all
// of them have been attempted or skipped.
func (r *Reconciler) runPhase(ctx context.Context, c *cycle, items []item) {
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for _, it := range items {
		if c.stopped(ctx) {
			c.skip(it)
			continue
		}
		g.Go(func() error {
			if c.stopped(ctx) {
				c.skip(it)
				return nil
			}
			c.record(r.attempt(ctx, c, it))
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) attempt(ctx context.Context, c *cycle, it item) Outcome {
	out := Outcome{Op: it.op, Title: it.title, TaskID: it.taskID, RecordID: it.recordID, Fields: it.fields}
	logger := c.logger.With("op", it.op, "title", it.title)

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	rec, err := it.call(callCtx)
	cancel()
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		out.Kind = model.KindOf(err)
		logger.Error("write failed", "task_id", it.taskID, "record_id", it.recordID, "kind", out.Kind, "err", err)
		if out.Kind == model.KindUnauthorized {
			c.abort(err)
		}
		return out
	}

	if out.RecordID == "" {
		out.RecordID = rec.ID
	}
	if it.after != nil {
		if err := it.after(ctx, rec); err != nil {
			logger.Warn("could not update task links", "record_id", out.RecordID, "err", err)
		}
	}

	switch it.op {
	case OpCreate:
		logger.Info("task saved", "task_id", it.taskID, "record_id", out.RecordID)
	case OpArchive:
		logger.Info("task archived", "record_id", out.RecordID)
	case OpUpdate:
		logger.Info("task updated", "record_id", out.RecordID, "fields", it.fields)
	}
	return out
}

// cycle is the mutable state of one Run, shared by the workers of a phase.
type cycle struct {
	mu     sync.Mutex
	report *Report
	logger *log.Logger
}

func (c *cycle) record(out Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Outcomes = append(c.report.Outcomes, out)
}

func (c *cycle) skip(it item) {
	c.record(Outcome{Op: it.op, Title: it.title, TaskID: it.taskID, RecordID: it.recordID, Fields: it.fields, Skipped: true})
}

func (c *cycle) abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report.Aborted == nil {
		c.logger.Error("cycle aborted, remaining writes skipped", "err", err)
	}
	c.report.abort(err)
}

func (c *cycle) stopped(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		c.abort(err)
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.Aborted != nil
}
