package reconcile

import (
	"strings"

	"github.com/harrisonrobin/tasknotion/pkg/model"
	"github.com/harrisonrobin/tasknotion/pkg/util"
)

// Pending is a task together with the title of the list it belongs to.
type Pending struct {
	Task      model.Task
	ListTitle string
}

// Pair is a task matched to a row. Patch is nil when nothing differs.
type Pair struct {
	Task      model.Task
	ListTitle string
	Record    model.Record
	Patch     *model.RecordPatch
	Fields    []string
	Linked    bool // matched through the cross-reference index rather than by title
}

// Classification is the outcome of Match. Every task with a title lands in exactly one of
// New, Changed, Renamed or Unchanged; every live row in exactly one of Orphaned or Matched.
type Classification struct {
	New       []Pending
	Changed   []Pair
	Renamed   []Pair
	Unchanged []Pair
	Skipped   []Pending // tasks without a title
	Orphaned  []model.Record
	Matched   []model.Record
}

// Writes returns the number of sink writes the classification calls for.
func (c *Classification) Writes() int {
	return len(c.New) + len(c.Orphaned) + len(c.Changed) + len(c.Renamed)
}

// Match classifies every task in lists and every row in records.
//
// Rows are matched to tasks by exact title; when several rows share a title the first one
// in records wins. If links is non-nil (task key -> record ID), a task whose linked row is
// present is matched to that row regardless of title, and title matching only considers the
// remaining rows. Archived rows take no part in matching.
func Match(lists []model.TaskList, records []model.Record, links map[string]string) Classification {
	var c Classification

	live := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.Archived {
			continue
		}
		live = append(live, r)
	}

	claimed := make([]bool, len(live))
	byLink := make(map[string]int)
	if links != nil {
		byID := make(map[string]int, len(live))
		for i, r := range live {
			byID[r.ID] = i
		}
		for _, list := range lists {
			for _, task := range list.Tasks {
				if !hasTitle(task) {
					continue
				}
				recordID, ok := links[task.Key()]
				if !ok {
					continue
				}
				i, ok := byID[recordID]
				if !ok || claimed[i] {
					continue
				}
				claimed[i] = true
				byLink[task.Key()] = i
			}
		}
	}

	byTitle := make(map[string]int, len(live))
	for i, r := range live {
		if claimed[i] {
			continue
		}
		if _, ok := byTitle[r.Title]; !ok {
			byTitle[r.Title] = i
		}
	}

	titles := make(map[string]bool)
	for _, list := range lists {
		for _, task := range list.Tasks {
			if !hasTitle(task) {
				c.Skipped = append(c.Skipped, Pending{Task: task, ListTitle: list.Title})
				continue
			}

			titles[task.Title] = true
			if i, ok := byLink[task.Key()]; ok {
				pair := pairOf(task, list.Title, live[i], true)
				switch {
				case pair.Patch == nil:
					c.Unchanged = append(c.Unchanged, pair)
				case pair.Patch.Title != nil || pair.Patch.TaskList != nil:
					c.Renamed = append(c.Renamed, pair)
				default:
					c.Changed = append(c.Changed, pair)
				}
				continue
			}

			i, ok := byTitle[task.Title]
			if !ok {
				c.New = append(c.New, Pending{Task: task, ListTitle: list.Title})
				continue
			}
			pair := pairOf(task, list.Title, live[i], false)
			if pair.Patch == nil {
				c.Unchanged = append(c.Unchanged, pair)
			} else {
				c.Changed = append(c.Changed, pair)
			}
		}
	}

	for i, r := range live {
		if claimed[i] || titles[r.Title] {
			c.Matched = append(c.Matched, r)
		} else {
			c.Orphaned = append(c.Orphaned, r)
		}
	}
	return c
}

func pairOf(task model.Task, listTitle string, record model.Record, linked bool) Pair {
	patch, fields := util.RecordNeedsUpdate(&task, listTitle, &record, linked)
	return Pair{
		Task:      task,
		ListTitle: listTitle,
		Record:    record,
		Patch:     patch,
		Fields:    fields,
		Linked:    linked,
	}
}

func hasTitle(task model.Task) bool {
	return strings.TrimSpace(task.Title) != ""
}
