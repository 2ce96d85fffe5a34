package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hiveplane/hive/internal/session"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	Long: `Create a session with a generated ID. The mode fixes the TTL and
the permission/team presets:

  development  24h
  leadership   48h
  sprint       168h
  config       1h
  emergency    no TTL, never auto-cleaned`,
	RunE: runCreate,
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <session-id>",
	Short: "Refresh a session's liveness window",
	Long: `Heartbeat moves the session's expiry forward by the mode TTL.
A suspended, failed, or TTL-expired session is reactivated.`,
	Args: cobra.ExactArgs(1),
	RunE: runHeartbeat,
}

var handoffCmd = &cobra.Command{
	Use:   "handoff <from-id> [to-id]",
	Short: "Transfer ownership to another session",
	Long: `Handoff completes the source session and transfers its handoff
history, project, and context to the target. Without a target ID a new
session is created inheriting the source's mode, parented to the source.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runHandoff,
}

var recoverCmd = &cobra.Command{
	Use:   "recover <session-id>",
	Short: "Reactivate a suspended or expired session",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecover,
}

var suspendCmd = &cobra.Command{
	Use:   "suspend <session-id>",
	Short: "Suspend an active session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuspend,
}

var expireCmd = &cobra.Command{
	Use:   "expire <session-id>",
	Short: "Terminate a session immediately",
	Long: `Expire sets the session's status to terminating and collapses its
expiry to now, making it eligible for the next cleanup sweep.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpire,
}

var (
	createMode    string
	createOwner   string
	createUser    string
	createProject string
	createContext string

	handoffData  string
	handoffNotes string

	recoverContext string

	heartbeatInfo string
)

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(suspendCmd)
	rootCmd.AddCommand(expireCmd)

	createCmd.Flags().StringVarP(&createMode, "mode", "m", "development", "session mode")
	createCmd.Flags().StringVar(&createOwner, "owner", "", "owning agent or user")
	createCmd.Flags().StringVar(&createUser, "user", "", "acting user")
	createCmd.Flags().StringVarP(&createProject, "project", "p", "", "project the session belongs to")
	createCmd.Flags().StringVar(&createContext, "context", "", "initial context as JSON object")

	handoffCmd.Flags().StringVar(&handoffData, "data", "", "context to transfer as JSON object")
	handoffCmd.Flags().StringVar(&handoffNotes, "notes", "", "handoff notes")

	recoverCmd.Flags().StringVar(&recoverContext, "context", "", "restoration context as JSON object")

	heartbeatCmd.Flags().StringVar(&heartbeatInfo, "status-info", "", "status payload as JSON object")
}

// parseJSONObject decodes an optional --flag JSON object argument.
func parseJSONObject(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("--%s: not a JSON object: %w", flag, err)
	}
	return obj, nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, err := parseJSONObject("context", createContext)
	if err != nil {
		return err
	}

	s, err := app.manager.Create(session.CreateOptions{
		Mode:    session.Mode(createMode),
		Owner:   createOwner,
		User:    createUser,
		Project: createProject,
		Context: ctx,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created session %s (mode: %s, expires: %s)\n", s.ID, s.Mode, formatExpiry(s))
	return nil
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	info, err := parseJSONObject("status-info", heartbeatInfo)
	if err != nil {
		return err
	}

	s, err := app.manager.Heartbeat(args[0], info)
	if err != nil {
		return err
	}

	fmt.Printf("Heartbeat recorded for %s (expires: %s)\n", s.ID, formatExpiry(s))
	return nil
}

func runHandoff(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	data, err := parseJSONObject("data", handoffData)
	if err != nil {
		return err
	}

	toID := ""
	if len(args) == 2 {
		toID = args[1]
	}

	to, err := app.manager.Handoff(args[0], toID, data, handoffNotes)
	if err != nil {
		return err
	}

	fmt.Printf("Handed off %s -> %s (%d entries in chain)\n", args[0], to.ID, len(to.Handoffs))
	return nil
}

func runRecover(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, err := parseJSONObject("context", recoverContext)
	if err != nil {
		return err
	}

	s, err := app.manager.Recover(args[0], ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Recovered session %s (expires: %s)\n", s.ID, formatExpiry(s))
	return nil
}

func runSuspend(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	s, err := app.manager.Suspend(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Suspended session %s\n", s.ID)
	return nil
}

func runExpire(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	s, err := app.manager.Expire(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Expired session %s\n", s.ID)
	return nil
}

// formatExpiry renders a session's expiry, covering the no-TTL case.
func formatExpiry(s *session.Session) string {
	if s.Expiry.IsZero() {
		return "never"
	}
	return s.Expiry.Format("2006-01-02 15:04:05 MST")
}
