package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <session-id> [path]",
	Short: "Read a session document or a path within it",
	Long: `Get prints the whole document, the value at a dotted path
(context.branch, execution.tasks[0]), or the matches of a $-rooted
query ($.execution.tasks[?(@.state=='running')], $..name).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <session-id> <path> <value>",
	Short: "Write a value at a path",
	Long: `Set writes a JSON value at a dotted path, creating intermediate
objects as needed. The value is parsed as JSON; a value that does not
parse is stored as a string.`,
	Args: cobra.ExactArgs(3),
	RunE: runSet,
}

var mergeCmd = &cobra.Command{
	Use:   "merge <session-id> <path> <object>",
	Short: "Deep-merge an object at a path",
	Args:  cobra.ExactArgs(3),
	RunE:  runMerge,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id> [path]",
	Short: "Delete a session or a path within it",
	Long: `With a path, delete removes the value at that path. Without one it
removes the whole session and its event log.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(deleteCmd)
}

// parseValue interprets a CLI value argument as JSON, falling back to a
// plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	path := ""
	if len(args) == 2 {
		path = args[1]
	}

	v, err := app.store.Get(args[0], path)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runSet(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.manager.Update(args[0], args[1], parseValue(args[2])); err != nil {
		return err
	}
	fmt.Printf("Set %s on %s\n", args[1], args[0])
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	var obj map[string]any
	if err := json.Unmarshal([]byte(args[2]), &obj); err != nil {
		return fmt.Errorf("merge value must be a JSON object: %w", err)
	}

	if err := app.manager.MergePath(args[0], args[1], obj); err != nil {
		return err
	}
	fmt.Printf("Merged into %s on %s\n", args[1], args[0])
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if len(args) == 2 {
		if err := app.manager.DeletePath(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s from %s\n", args[1], args[0])
		return nil
	}

	if err := app.manager.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}
