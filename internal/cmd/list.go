package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hiveplane/hive/internal/session"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Long: `List sessions with their mode, status, owner, and expiry.
TTL-expired sessions count as inactive regardless of stored status.`,
	RunE: runList,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired sessions",
	Long: `Cleanup deletes sessions whose TTL has lapsed and whose mode allows
auto-cleanup, along with their event logs. Expiry is re-checked under
the per-session lock, so a session heartbeated mid-sweep survives.

Use --dry-run to see what would be removed without deleting anything.`,
	RunE: runCleanup,
}

var (
	listActiveOnly bool
	listProject    string
	listMode       string

	cleanupDryRun bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanupCmd)

	listCmd.Flags().BoolVar(&listActiveOnly, "active", false, "only active, unexpired sessions")
	listCmd.Flags().StringVarP(&listProject, "project", "p", "", "filter by project")
	listCmd.Flags().StringVarP(&listMode, "mode", "m", "", "filter by mode")

	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report eligible sessions without deleting")
}

var (
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	suspendedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	deadStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderStatus colors a session status for terminal output.
func renderStatus(sum session.Summary) string {
	switch {
	case sum.Active:
		return activeStyle.Render(string(sum.Status))
	case sum.Status == session.StatusSuspended:
		return suspendedStyle.Render(string(sum.Status))
	case sum.Status == session.StatusCompleted:
		return mutedStyle.Render(string(sum.Status))
	case !sum.Active && sum.Status == session.StatusActive:
		// Stored status says active but the TTL has lapsed.
		return deadStyle.Render("expired")
	default:
		return deadStyle.Render(string(sum.Status))
	}
}

// formatRelative renders an expiry instant relative to now.
func formatRelative(expiry time.Time, now time.Time) string {
	if expiry.IsZero() {
		return "never"
	}
	d := expiry.Sub(now)
	if d < 0 {
		return fmt.Sprintf("%s ago", (-d).Round(time.Minute))
	}
	return fmt.Sprintf("in %s", d.Round(time.Minute))
}

func runList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	summaries, err := app.manager.List(session.Filter{
		ActiveOnly: listActiveOnly,
		Project:    listProject,
		Mode:       session.Mode(listMode),
	})
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	now := time.Now().UTC()
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Mode", "Status", "Owner", "Project", "Expires"})
	for _, sum := range summaries {
		t.AppendRow(table.Row{
			sum.ID,
			sum.Mode,
			renderStatus(sum),
			sum.Owner,
			sum.Project,
			formatRelative(sum.Expiry, now),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	removed, err := app.manager.Cleanup(cleanupDryRun)
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		fmt.Println("Nothing to clean up.")
		return nil
	}

	verb := "Removed"
	if cleanupDryRun {
		verb = "Would remove"
	}
	fmt.Printf("%s %d session(s):\n", verb, len(removed))
	for _, id := range removed {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
