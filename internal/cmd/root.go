// Package cmd wires the hive CLI: session lifecycle verbs, path-scoped
// document access, event log inspection, and the project and queue surfaces.
package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hiveplane/hive/internal/config"
	"github.com/hiveplane/hive/internal/docstore"
	"github.com/hiveplane/hive/internal/eventlog"
	"github.com/hiveplane/hive/internal/logging"
	"github.com/hiveplane/hive/internal/mailbox"
	"github.com/hiveplane/hive/internal/project"
	"github.com/hiveplane/hive/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Session-scoped JSON document store",
	Long: `Hive manages session documents on the local filesystem: atomic
writes, cross-process locking, mode-specific TTLs, ownership handoff,
and an append-only event log per session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/hive/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "store root directory (default is $HOME/.hive)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HIVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

// app holds the wired store layers for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *docstore.Store
	events   *eventlog.Log
	manager  *session.Manager
	projects *project.Area
	queue    *mailbox.Queue
}

// newApp builds the store stack from the loaded configuration.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Root, cfg.Log.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, err
	}

	sessionsDir := filepath.Join(cfg.Root, "sessions")
	store, err := docstore.New(sessionsDir,
		docstore.WithLockTimeout(cfg.Lock.Timeout),
		docstore.WithRetryInterval(cfg.Lock.RetryInterval),
		docstore.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	events, err := eventlog.New(sessionsDir)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithInlineTail(cfg.Events.InlineTail),
	}
	for mode, ttl := range cfg.TTLOverrides() {
		opts = append(opts, session.WithTTL(session.Mode(mode), ttl))
	}
	manager := session.NewManager(store, events, opts...)

	projects, err := project.NewArea(filepath.Join(cfg.Root, "projects"), project.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		events:   events,
		manager:  manager,
		projects: projects,
		queue:    mailbox.NewQueue(filepath.Join(cfg.Root, "queue")),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Close()
}
