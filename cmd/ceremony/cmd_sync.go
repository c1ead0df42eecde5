package main

import (
	"github.com/spf13/cobra"

	"ceremony/internal/logging"
	"ceremony/internal/pipeline"
)

var syncFlags struct {
	remote   remoteFlags
	workers  int
	noLedger bool
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download new contributions without verifying them",
	RunE:  runSync,
}

func init() {
	f := syncCmd.Flags()
	syncFlags.remote.register(f)
	f.IntVar(&syncFlags.workers, "workers", 0, "Parallel downloads (default from config)")
	f.BoolVar(&syncFlags.noLedger, "no-ledger", false, "Do not record this run in the ledger")
}

func runSync(cmd *cobra.Command, _ []string) error {
	syncFlags.remote.apply(cfg)
	if syncFlags.workers > 0 {
		cfg.DownloadWorkers = syncFlags.workers
	}
	ctx := cmd.Context()
	st, err := openS3(ctx, cfg)
	if err != nil {
		return err
	}
	led, err := openLedger(cfg, syncFlags.noLedger)
	if err != nil {
		return err
	}
	opts := pipeline.Options{
		Config: cfg,
		Remote: st,
		Out:    cmd.OutOrStdout(),
		Logger: logging.New("pipeline"),
	}
	if led != nil {
		defer led.Close()
		opts.Ledger = led
	}
	res, err := pipeline.Sync(ctx, opts)
	if err != nil {
		return err
	}
	return exitWith(res.ExitCode)
}
