package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/model"
	"github.com/harrisonrobin/tasknotion/pkg/util"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/tasks/v1"
)

const (
	pageSize        = 100
	statusCompleted = "completed"
)

// TasksClient is a Google Tasks API client.
type TasksClient struct {
	srv    *tasks.Service
	logger *log.Logger
}

// NewTasksClient creates a new Google Tasks client.
func NewTasksClient(srv *tasks.Service, logger *log.Logger) *TasksClient {
	if logger == nil {
		logger = log.Default()
	}
	return &TasksClient{srv: srv, logger: logger}
}

// ListTaskLists returns every task list of the user, in API order. Tasks are not filled in.
func (c *TasksClient) ListTaskLists(ctx context.Context) ([]model.TaskList, error) {
	var lists []model.TaskList
	err := c.srv.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, item := range page.Items {
			lists = append(lists, model.TaskList{ID: item.Id, Title: item.Title})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve task lists: %w", classify(err))
	}
	return lists, nil
}

// ListTasks returns the tasks of one list. Hidden tasks are included because Google hides
// tasks completed in its own apps; deleted tasks are dropped.
func (c *TasksClient) ListTasks(ctx context.Context, listID string) ([]model.Task, error) {
	var out []model.Task
	call := c.srv.Tasks.List(listID).
		MaxResults(pageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false)
	err := call.Pages(ctx, func(page *tasks.Tasks) error {
		for _, item := range page.Items {
			if item.Deleted {
				continue
			}
			out = append(out, c.convertTask(listID, item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve tasks of list %s: %w", listID, classify(err))
	}
	return out, nil
}

func (c *TasksClient) convertTask(listID string, item *tasks.Task) model.Task {
	task := model.Task{
		ID:     item.Id,
		ListID: listID,
		Title:  item.Title,
		State:  model.StateOpen,
	}
	if item.Status == statusCompleted {
		task.State = model.StateCompleted
	}
	due, err := util.ParseDue(item.Due)
	if err != nil {
		c.logger.Warn("ignoring due date", "task_id", item.Id, "title", item.Title, "err", err)
	} else {
		task.Due = due
	}
	return task
}

// classify wraps err with the model error kind it belongs to.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if model.KindOf(err) != model.KindUnknown {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", model.ErrTransient, err)
		default:
			return fmt.Errorf("%w: %v", model.ErrInvalid, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	return err
}
