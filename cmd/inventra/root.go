package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/inventra/internal/config"
	"github.com/kimhsiao/inventra/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dataDir    string
	backend    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "inventra",
		Short: "Offline-first inventory data service",
		Long: `Inventra keeps client, inventory and schedule data in a local store,
records changes made while offline and replays them to a remote endpoint
when connectivity returns.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides config)")
	pf.StringVar(&flags.backend, "backend", "", "storage backend: sqlite, bolt or memory (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides config)")

	root.AddCommand(
		newServeCmd(flags),
		newStatusCmd(flags),
		newSyncCmd(flags),
		newQueueCmd(flags),
		newResourcesCmd(flags),
		newMigrateCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads the config file and applies command-line overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}
