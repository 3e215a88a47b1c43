package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/harrisonrobin/tasknotion/pkg/schedule"
	"github.com/harrisonrobin/tasknotion/pkg/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync on a fixed interval and serve the OAuth and status endpoints",
	Long: `Runs a sync cycle immediately and then every interval until interrupted.

The HTTP server exposes /auth/google to authorize Google Tasks from a browser,
/status with the last cycle's report and POST /sync to trigger a cycle.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.acquireLock(); err != nil {
		return err
	}
	a.openIndex()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authn, err := a.authenticator()
	if err != nil {
		return err
	}
	if !authn.Authorized() {
		a.logger.Warn("no Google token yet, cycles will fail until you authorize",
			"url", "http://localhost"+a.cfg.Server.Listen+"/auth/google")
	}
	rec, err := a.reconciler(ctx, authn)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	sched := schedule.New(gctx, rec, a.cfg.Sync.Interval.Duration, a.logger)
	sched.OnReport = a.recordReport
	srv := server.New(sched, authn, a.logger)

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, a.cfg.Server.Listen) })
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("stopped")
	return nil
}
