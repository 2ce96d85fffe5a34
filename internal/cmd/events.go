package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hiveplane/hive/internal/eventlog"
)

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Show a session's event history",
	Long: `Events prints the append-only event log for a session. With
--follow the command keeps watching the log and prints events as they
are appended, until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

var (
	eventsFollow bool
	eventsTail   int
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "keep watching for new events")
	eventsCmd.Flags().IntVarP(&eventsTail, "tail", "n", 0, "only show the last N events")
}

func printEvent(ev eventlog.Event) {
	line := fmt.Sprintf("%s  %-22s", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type)
	if ev.Source != "" {
		line += "  from=" + ev.Source
	}
	for k, v := range ev.Data {
		line += fmt.Sprintf("  %s=%v", k, v)
	}
	fmt.Println(line)
}

func runEvents(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	id := args[0]

	if eventsFollow {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ch, err := app.events.Follow(ctx, id)
		if err != nil {
			return err
		}
		for ev := range ch {
			printEvent(ev)
		}
		return nil
	}

	var evs []eventlog.Event
	if eventsTail > 0 {
		evs, err = app.events.Tail(id, eventsTail)
	} else {
		evs, err = app.events.Read(id)
	}
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}
	for _, ev := range evs {
		printEvent(ev)
	}
	return nil
}
