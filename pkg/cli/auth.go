package cli

import (
	"context"

	"github.com/harrisonrobin/tasknotion/pkg/auth"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize tasknotion to read your Google Tasks",
	Long: `Starts a local callback server, prints the Google consent URL and stores the
resulting token. Any previously stored token is removed first.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func runAuth(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	authn, err := a.authenticator()
	if err != nil {
		return err
	}

	store := auth.NewFileTokenStore(a.cfg.TokenPath())
	if _, err := store.Load(); err == nil {
		a.logger.Info("removing existing token", "path", store.Path)
	}
	if err := store.Clear(); err != nil {
		return err
	}

	if _, err := authn.LoginLoopback(context.WithoutCancel(cmd.Context())); err != nil {
		return err
	}
	a.logger.Info("authentication successful, token saved", "path", store.Path)
	return nil
}
