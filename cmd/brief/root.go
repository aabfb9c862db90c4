package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfg "github.com/Kocoro-lab/Shannon/go/briefing/internal/config"
)

type rootOptions struct {
	configPath string
	timeout    time.Duration
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Fan a research question out to deep research engines",
		Long: `brief plans subquestions for a research question, dispatches them to every
registered deep research engine and prints the consolidated briefing.

Engines without credentials contribute a guided fallback brief instead of
live findings. Credentials come from engines.yaml next to the config file
and from {PREFIX}_ENDPOINT, {PREFIX}_API_KEY and {PREFIX}_MODEL variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to briefing.yaml (default $CONFIG_PATH or ./config/briefing.yaml)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "per-engine timeout, overrides engines.timeout")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(
		newRunCmd(opts),
		newPlanCmd(),
		newEnginesCmd(opts),
		newReplayCmd(opts),
	)
	return cmd
}

// load resolves service config, logger and the engine credential store
func (o *rootOptions) load() (*cfg.Config, *cfg.EngineStore, *zap.Logger, error) {
	conf, err := cfg.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.timeout < 0 {
		return nil, nil, nil, fmt.Errorf("--timeout must not be negative")
	}
	if o.timeout > 0 {
		conf.Engines.Timeout = o.timeout
	}
	logger, err := o.logger()
	if err != nil {
		return nil, nil, nil, err
	}
	store := cfg.NewEngineStore(logger)
	if path := conf.EnginesFile(); path != "" {
		file, err := cfg.LoadEngineFile(path)
		if err != nil {
			return nil, nil, nil, err
		}
		store.Replace(file)
	}
	return conf, store, logger, nil
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return cfg.LoggingConfig{Level: o.logLevel, Format: "console"}.NewLogger()
}
