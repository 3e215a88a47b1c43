package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync cycle and exit",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.acquireLock(); err != nil {
		return err
	}
	a.openIndex()

	authn, err := a.authenticator()
	if err != nil {
		return err
	}
	rec, err := a.reconciler(cmd.Context(), authn)
	if err != nil {
		return err
	}

	report := rec.Run(cmd.Context())
	a.recordReport(report)

	fmt.Println(renderReport(report))
	if report.Aborted != nil {
		return fmt.Errorf("sync aborted: %w", report.Aborted)
	}
	return nil
}
