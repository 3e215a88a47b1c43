package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
	"github.com/harrisonrobin/tasknotion/pkg/schedule"
	"golang.org/x/oauth2"
)

type fakeSyncer struct {
	last  *reconcile.Report
	calls chan struct{}
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{calls: make(chan struct{}, 8)}
}

func (f *fakeSyncer) RunCycle()               { f.calls <- struct{}{} }
func (f *fakeSyncer) Last() *reconcile.Report { return f.last }
func (f *fakeSyncer) Stats() schedule.Stats   { return schedule.Stats{Cycles: 3, Interval: "10s"} }

func (f *fakeSyncer) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a cycle to be triggered")
	}
}

type fakeOAuth struct {
	codes []string
	err   error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "access"}, nil
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func newTestServer(syncer *fakeSyncer, oauth OAuth) *Server {
	return New(syncer, oauth, log.New(io.Discard))
}

func TestHealth(t *testing.T) {
	w := do(newTestServer(newFakeSyncer(), nil), http.MethodGet, "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	syncer := newFakeSyncer()
	s := newTestServer(syncer, nil)

	if w := do(s, http.MethodGet, "/status"); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 before the first cycle, got %d", w.Code)
	}

	syncer.last = &reconcile.Report{
		CycleID: "c1",
		Outcomes: []reconcile.Outcome{
			{Op: reconcile.OpCreate, Title: "Buy milk"},
			{Op: reconcile.OpArchive, Title: "Old", Err: errors.New("boom"), Error: "boom"},
		},
	}
	w := do(s, http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.Report.CycleID != "c1" || got.Summary.Created != 1 || got.Summary.Failed != 1 || got.Scheduler.Cycles != 3 {
		t.Errorf("Unexpected status: %+v", got)
	}
}

func TestSyncTriggersCycle(t *testing.T) {
	syncer := newFakeSyncer()
	w := do(newTestServer(syncer, nil), http.MethodPost, "/sync")
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	syncer.waitCall(t)
}

func TestOAuthFlow(t *testing.T) {
	syncer := newFakeSyncer()
	oauth := &fakeOAuth{}
	s := newTestServer(syncer, oauth)

	w := do(s, http.MethodGet, "/auth/google")
	if w.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("Expected a state parameter")
	}

	w = do(s, http.MethodGet, "/oauth2callback?code=abc&state="+state)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(oauth.codes) != 1 || oauth.codes[0] != "abc" {
		t.Errorf("Expected code to be exchanged, got %v", oauth.codes)
	}
	syncer.waitCall(t)

	// States are single use.
	w = do(s, http.MethodGet, "/oauth2callback?code=abc&state="+state)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected replayed state to be rejected, got %d", w.Code)
	}
}

func TestCallbackErrors(t *testing.T) {
	oauth := &fakeOAuth{err: errors.New("invalid_grant")}
	s := newTestServer(newFakeSyncer(), oauth)

	if w := do(s, http.MethodGet, "/oauth2callback"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without code, got %d", w.Code)
	}

	loc, _ := url.Parse(do(s, http.MethodGet, "/auth/google").Header().Get("Location"))
	w := do(s, http.MethodGet, "/oauth2callback?code=abc&state="+loc.Query().Get("state"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on exchange failure, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "access token") {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
}

func TestAuthRoutesWithoutOAuth(t *testing.T) {
	s := newTestServer(newFakeSyncer(), nil)
	if w := do(s, http.MethodGet, "/auth/google"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
