package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harrisonrobin/tasknotion/pkg/index"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
	"github.com/spf13/cobra"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync cycles",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "number", "n", 10, "Number of cycles to show")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	idx, err := index.NewLinkIndex(a.cfg.DBPath())
	if err != nil {
		return err
	}
	a.index = idx

	cycles, err := idx.RecentCycles(context.Background(), statusLimit)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Println("No sync cycles recorded yet.")
		return nil
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-8s  %-19s  %8s  %7s  %8s  %7s  %6s  %s",
		"CYCLE", "STARTED", "DURATION", "CREATED", "ARCHIVED", "UPDATED", "FAILED", "RESULT")))
	for _, c := range cycles {
		fmt.Println(renderCycle(c))
	}
	return nil
}

func renderCycle(c index.Cycle) string {
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%-8s  %-19s  %8s  %7d  %8d  %7d  %6d  ",
		id,
		c.Started.Local().Format("2006-01-02 15:04:05"),
		c.Finished.Sub(c.Started).Round(time.Millisecond),
		c.Created, c.Archived, c.Updated, c.Failed)
	return line + cycleResult(c.Aborted, c.Failed)
}

func cycleResult(aborted string, failed int) string {
	switch {
	case aborted != "":
		return errStyle.Render("aborted: " + aborted)
	case failed > 0:
		return warnStyle.Render("partial")
	default:
		return okStyle.Render("ok")
	}
}

// renderReport formats the summary printed after a one-off sync.
func renderReport(r *reconcile.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%d lists, %d tasks, %d rows) in %s\n",
		headerStyle.Render("cycle"), r.ShortID(), r.Lists, r.Tasks, r.Records, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  created %d, archived %d, updated %d, failed %d, skipped %d\n",
		r.Created(), r.Archived(), r.Updated(), r.Failed(), r.Skipped())
	for _, o := range r.Outcomes {
		if o.Err == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s %s %q: %s\n", errStyle.Render("failed"), o.Op, o.Title, o.Error)
	}
	b.WriteString("  " + cycleResult(r.AbortReason, r.Failed()))
	return b.String()
}
