package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/model"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TasksClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := tasks.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return NewTasksClient(srv, log.New(io.Discard))
}

func TestListTaskLists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/@me/lists") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprint(w, `{"items":[{"id":"L1","title":"Inbox"}],"nextPageToken":"p2"}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"L2","title":"Work"}]}`)
	})

	lists, err := c.ListTaskLists(context.Background())
	if err != nil {
		t.Fatalf("ListTaskLists failed: %v", err)
	}
	if len(lists) != 2 || lists[0].Title != "Inbox" || lists[1].ID != "L2" {
		t.Errorf("Unexpected lists: %+v", lists)
	}
}

func TestListTasks(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/lists/L1/tasks") {
			http.NotFound(w, r)
			return
		}
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"id":"a","title":"Buy milk","status":"needsAction","due":"2024-05-01T00:00:00.000Z"},
			{"id":"b","title":"File taxes","status":"completed","hidden":true},
			{"id":"c","title":"Gone","status":"needsAction","deleted":true},
			{"id":"d","title":"Odd due","status":"needsAction","due":"soon"}
		]}`)
	})

	got, err := c.ListTasks(context.Background(), "L1")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if !strings.Contains(query, "showHidden=true") || !strings.Contains(query, "showCompleted=true") {
		t.Errorf("Expected hidden and completed tasks to be requested, got %s", query)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 tasks, got %+v", got)
	}

	milk := got[0]
	if milk.ListID != "L1" || milk.State != model.StateOpen {
		t.Errorf("Unexpected task: %+v", milk)
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if milk.Due == nil || !milk.Due.Equal(want) {
		t.Errorf("Expected due %v, got %v", want, milk.Due)
	}
	if got[1].State != model.StateCompleted {
		t.Errorf("Expected completed task, got %+v", got[1])
	}
	if got[2].Due != nil {
		t.Errorf("Expected unparsable due to be dropped, got %v", got[2].Due)
	}
}

func TestListTasksClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, model.ErrUnauthorized},
		{http.StatusForbidden, model.ErrUnauthorized},
		{http.StatusTooManyRequests, model.ErrTransient},
		{http.StatusServiceUnavailable, model.ErrTransient},
		{http.StatusNotFound, model.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope"}}`, tt.status)
			})
			_, err := c.ListTasks(context.Background(), "L1")
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
