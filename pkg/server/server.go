// Package server exposes the OAuth callback, a manual sync trigger and the last cycle's
// report over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
	"github.com/harrisonrobin/tasknotion/pkg/schedule"
	"golang.org/x/oauth2"
)

const (
	stateTTL        = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// Syncer is the part of the scheduler the server drives.
type Syncer interface {
	RunCycle()
	Last() *reconcile.Report
	Stats() schedule.Stats
}

// OAuth is the part of the authenticator the server drives.
type OAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Server is the tasknotion web server.
type Server struct {
	syncer Syncer
	oauth  OAuth
	logger *log.Logger
	router *gin.Engine

	mu     sync.Mutex
	states map[string]time.Time
}

// New creates a server. oauth may be nil, in which case the auth routes answer 503.
func New(syncer Syncer, oauth OAuth, logger *log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	if logger == nil {
		logger = log.Default()
	}

	router := gin.New()
	s := &Server{
		syncer: syncer,
		oauth:  oauth,
		logger: logger,
		router: router,
		states: make(map[string]time.Time),
	}
	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.POST("/sync", s.handleSync)
	router.GET("/auth/google", s.handleAuth)
	router.GET("/oauth2callback", s.handleCallback)

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type summary struct {
	Created  int    `json:"created"`
	Archived int    `json:"archived"`
	Updated  int    `json:"updated"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Duration string `json:"duration"`
}

type statusResponse struct {
	Report    *reconcile.Report `json:"report"`
	Summary   summary           `json:"summary"`
	Scheduler schedule.Stats    `json:"scheduler"`
}

func (s *Server) handleStatus(c *gin.Context) {
	report := s.syncer.Last()
	if report == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Report: report,
		Summary: summary{
			Created:  report.Created(),
			Archived: report.Archived(),
			Updated:  report.Updated(),
			Failed:   report.Failed(),
			Skipped:  report.Skipped(),
			Duration: report.Duration().String(),
		},
		Scheduler: s.syncer.Stats(),
	})
}

func (s *Server) handleSync(c *gin.Context) {
	go s.syncer.RunCycle()
	c.JSON(http.StatusAccepted, gin.H{"status": "sync started"})
}

func (s *Server) handleAuth(c *gin.Context) {
	if s.oauth == nil {
		c.String(http.StatusServiceUnavailable, "Google OAuth is not configured")
		return
	}
	c.Redirect(http.StatusFound, s.oauth.AuthCodeURL(s.newState()))
}

func (s *Server) handleCallback(c *gin.Context) {
	if s.oauth == nil {
		c.String(http.StatusServiceUnavailable, "Google OAuth is not configured")
		return
	}
	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "No code found in the request")
		return
	}
	if !s.consumeState(c.Query("state")) {
		c.String(http.StatusBadRequest, "Unknown or expired state")
		return
	}

	if _, err := s.oauth.Exchange(c.Request.Context(), code); err != nil {
		s.logger.Error("error retrieving access token", "err", err)
		c.String(http.StatusInternalServerError, "Error retrieving access token")
		return
	}
	s.logger.Info("Google authorization saved")
	c.String(http.StatusOK, "Authentication successful! You can close this window.")

	go s.syncer.RunCycle()
}

func (s *Server) newState() string {
	state := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, issued := range s.states {
		if now.Sub(issued) > stateTTL {
			delete(s.states, k)
		}
	}
	s.states[state] = now
	return state
}

func (s *Server) consumeState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Since(issued) <= stateTTL
}
