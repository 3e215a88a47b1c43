package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/harrisonrobin/tasknotion/pkg/auth"
	"github.com/harrisonrobin/tasknotion/pkg/config"
	"github.com/harrisonrobin/tasknotion/pkg/google"
	"github.com/harrisonrobin/tasknotion/pkg/index"
	"github.com/harrisonrobin/tasknotion/pkg/logging"
	"github.com/harrisonrobin/tasknotion/pkg/notion"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	index  *index.LinkIndex
	lock   *flock.Flock
}

// loadApp reads the configuration, applies the global flags and sets up logging.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if identity != "" {
		cfg.Sync.Identity = identity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lvl, _ := logging.ParseLevel(cfg.LogLevel)
	opts := logging.DefaultOptions()
	opts.Level = lvl
	logger := logging.New(opts)
	log.SetDefault(logger)

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// acquireLock takes the per-state-dir lock so two processes never sync the same database.
func (a *app) acquireLock() error {
	fl := flock.New(a.cfg.LockPath())
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", a.cfg.LockPath(), err)
	}
	if !ok {
		return fmt.Errorf("another tasknotion process holds %s", a.cfg.LockPath())
	}
	a.lock = fl
	return nil
}

// openIndex opens the link index. A failure is logged and the sync runs without links.
func (a *app) openIndex() {
	idx, err := index.NewLinkIndex(a.cfg.DBPath())
	if err != nil {
		a.logger.Warn("failed to open link index, continuing without it", "path", a.cfg.DBPath(), "err", err)
		return
	}
	a.index = idx
}

func (a *app) close() {
	if a.index != nil {
		a.index.Close()
	}
	if a.lock != nil {
		a.lock.Unlock()
	}
}

func (a *app) authenticator() (*auth.Authenticator, error) {
	oauthCfg, err := auth.GetConfig(auth.Options{
		CredentialsFile: a.cfg.CredentialsPath(),
		ClientID:        a.cfg.Google.ClientID,
		ClientSecret:    a.cfg.Google.ClientSecret,
		RedirectURL:     a.cfg.Google.RedirectURI,
	}, auth.Scopes)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(oauthCfg, auth.NewFileTokenStore(a.cfg.TokenPath())), nil
}

func (a *app) reconciler(ctx context.Context, authn *auth.Authenticator) (*reconcile.Reconciler, error) {
	if err := a.cfg.RequireNotion(); err != nil {
		return nil, err
	}
	source, err := google.NewClient(ctx, authn, a.logger)
	if err != nil {
		return nil, err
	}
	sink := notion.NewClient(a.cfg.Notion.APIKey, a.cfg.Notion.DatabaseID, a.cfg.NotionProperties(), a.logger)

	var links reconcile.LinkStore
	if a.index != nil {
		links = a.index
	}
	return reconcile.New(source, sink, links, a.logger, reconcile.Options{
		Identity:    reconcile.Identity(a.cfg.Sync.Identity),
		Concurrency: a.cfg.Sync.Concurrency,
		Timeout:     a.cfg.Sync.Timeout.Duration,
	}), nil
}

// recordReport appends the cycle summary to the history.
func (a *app) recordReport(report *reconcile.Report) {
	if a.index == nil {
		return
	}
	if err := a.index.RecordCycle(context.Background(), cycleFromReport(report)); err != nil {
		a.logger.Warn("failed to record cycle history", "cycle", report.ShortID(), "err", err)
	}
}

func cycleFromReport(r *reconcile.Report) index.Cycle {
	return index.Cycle{
		ID:       r.CycleID,
		Started:  r.Started,
		Finished: r.Finished,
		Lists:    r.Lists,
		Tasks:    r.Tasks,
		Records:  r.Records,
		Created:  r.Created(),
		Archived: r.Archived(),
		Updated:  r.Updated(),
		Failed:   r.Failed(),
		Skipped:  r.Skipped(),
		Aborted:  r.AbortReason,
	}
}
