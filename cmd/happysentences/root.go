package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/app"
	"github.com/MrWong99/happysentences/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "happysentences",
		Short:         "Daily encouraging sentences, read aloud",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `happysentences generates three short encouraging sentences from a word or
a feeling, reads them aloud with an emotion-aware voice and keeps one
sentence per day in a small library.

Run "happysentences serve" for the HTTP API, or use the subcommands to do
the same work from the terminal.`,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newGenerateCmd(opts),
		newSpeakCmd(opts),
		newSelfTestCmd(opts),
		newLibraryCmd(opts),
		newPremiumCmd(opts),
		newEntitlementCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file. A missing file falls back to the
// defaults so the CLI works without any setup.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		config.ApplyEnv(cfg, os.LookupEnv)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		lvl := config.LogLevel(o.logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q; valid values: debug, info, warn, error", o.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	return cfg, nil
}

// setup loads the config, installs the logger and builds the application.
// The returned cleanup shuts the application down.
func (o *rootOptions) setup(ctx context.Context) (*config.Config, *app.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(newLogger(cfg.Server, nil))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, nil, nil, err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}
	return cfg, application, cleanup, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "happysentences", version)
		},
	}
}
