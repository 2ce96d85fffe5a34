package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hiveplane/hive/internal/mailbox"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Send and inspect queued messages",
	Long: `The queue holds one file per pending message under <root>/queue/.
File names encode priority and enqueue time, so delivery order is
priority first, then age.`,
}

var queueSendCmd = &cobra.Command{
	Use:   "send <from> <to> <body>",
	Short: "Enqueue a message",
	Args:  cobra.ExactArgs(3),
	RunE:  runQueueSend,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending messages in delivery order",
	RunE:  runQueueList,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a pending message by file name",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

var (
	queuePriority int
	queueMetadata string
	queueFor      string
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueSendCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRemoveCmd)

	queueSendCmd.Flags().IntVar(&queuePriority, "priority", 50, "delivery priority, lower is first (0-99)")
	queueSendCmd.Flags().StringVar(&queueMetadata, "metadata", "", "metadata as JSON object")
	queueListCmd.Flags().StringVar(&queueFor, "for", "", "only messages for this recipient (includes broadcasts)")
}

func runQueueSend(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	var meta map[string]any
	if queueMetadata != "" {
		if err := json.Unmarshal([]byte(queueMetadata), &meta); err != nil {
			return fmt.Errorf("--metadata: not a JSON object: %w", err)
		}
	}

	name, err := app.queue.Enqueue(mailbox.Message{
		From:     args[0],
		To:       args[1],
		Body:     args[2],
		Priority: queuePriority,
		Metadata: meta,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Enqueued %s\n", name)
	return nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	var pending []mailbox.Pending
	if queueFor != "" {
		pending, err = app.queue.For(queueFor)
	} else {
		pending, err = app.queue.List()
	}
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "From", "To", "Priority", "Body"})
	for _, p := range pending {
		t.AppendRow(table.Row{p.Name, p.Message.From, p.Message.To, p.Message.Priority, p.Message.Body})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.queue.Dequeue(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}
