package main

import (
	"context"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/hivetrack/dirsync/config"
	"github.com/hivetrack/dirsync/reconcile"
	"github.com/hivetrack/dirsync/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		logLevel   string
		modes      reconcile.Modes
	)

	cmd := &cobra.Command{
		Use:   "dirsync",
		Short: "reconcile directory accounts into the local user store",
		Long: `dirsync drains every configured directory source and synchronizes its
account records into the local user store: new identities are created,
drifted logins are repaired, and accounts absent from every source are
disabled.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile, logLevel, modes)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile,
		"run configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info",
		"log verbosity: trace, debug, info, warn or error")
	cmd.Flags().BoolVar(&modes.DumpOnly, "dump", false,
		"write raw directory entries to stdout and do nothing else")
	cmd.Flags().BoolVar(&modes.NoApply, "no-apply", false,
		"run the full decision logic without writing anything to the store")
	cmd.Flags().BoolVar(&modes.NoUpdate, "no-update", false,
		"report login conflicts without repairing them")
	cmd.Flags().BoolVar(&modes.ReportAll, "report-all", false,
		"also report accounts that are already present")
	return cmd
}

func run(ctx context.Context, configFile, logLevel string, modes reconcile.Modes) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "dirsync",
		Level: hclog.LevelFromString(logLevel),
	})

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return err
	}
	bindings, err := cfg.Bindings(logger)
	if err != nil {
		return err
	}

	if modes.DumpOnly {
		return reconcile.Dump(ctx, os.Stdout, bindings)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}

	stat, err := reconcile.New(st, logger, modes, cfg.LocalUsers).Run(ctx, bindings)
	if err != nil {
		return err
	}
	reconcile.WriteReport(os.Stdout, stat)
	return nil
}
