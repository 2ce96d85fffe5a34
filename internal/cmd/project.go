package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Access project-scoped shared documents",
	Long: `Each project carries three shared documents: config, epics, and
sprints. They live under <root>/projects/<project-id>/ with the same
locking and atomicity guarantees as session documents.`,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List project IDs",
	RunE:  runProjectList,
}

var projectGetCmd = &cobra.Command{
	Use:   "get <project-id> <doc> [path]",
	Short: "Read a project document or a path within it",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runProjectGet,
}

var projectSetCmd = &cobra.Command{
	Use:   "set <project-id> <doc> <path> <value>",
	Short: "Write a value at a path in a project document",
	Args:  cobra.ExactArgs(4),
	RunE:  runProjectSet,
}

var projectMergeCmd = &cobra.Command{
	Use:   "merge <project-id> <doc> <path> <object>",
	Short: "Deep-merge an object at a path in a project document",
	Args:  cobra.ExactArgs(4),
	RunE:  runProjectMerge,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id> <doc> <path>",
	Short: "Delete the value at a path in a project document",
	Args:  cobra.ExactArgs(3),
	RunE:  runProjectDelete,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectGetCmd)
	projectCmd.AddCommand(projectSetCmd)
	projectCmd.AddCommand(projectMergeCmd)
	projectCmd.AddCommand(projectDeleteCmd)
}

func runProjectList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ids, err := app.projects.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No projects found.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runProjectGet(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	path := ""
	if len(args) == 3 {
		path = args[2]
	}

	v, err := app.projects.Get(args[0], args[1], path)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func runProjectSet(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.projects.Set(args[0], args[1], args[2], parseValue(args[3])); err != nil {
		return err
	}
	fmt.Printf("Set %s on %s/%s\n", args[2], args[0], args[1])
	return nil
}

func runProjectMerge(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	var obj map[string]any
	if err := json.Unmarshal([]byte(args[3]), &obj); err != nil {
		return fmt.Errorf("merge value must be a JSON object: %w", err)
	}

	if err := app.projects.Merge(args[0], args[1], args[2], obj); err != nil {
		return err
	}
	fmt.Printf("Merged into %s on %s/%s\n", args[2], args[0], args[1])
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.projects.DeleteAt(args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s from %s/%s\n", args[2], args[0], args[1])
	return nil
}
