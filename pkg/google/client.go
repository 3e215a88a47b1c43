package google

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/auth"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

// NewClient creates a Google Tasks client authorized through a.
func NewClient(ctx context.Context, a *auth.Authenticator, logger *log.Logger) (*TasksClient, error) {
	srv, err := tasks.NewService(ctx, option.WithHTTPClient(a.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Tasks client: %w", err)
	}
	return NewTasksClient(srv, logger), nil
}
