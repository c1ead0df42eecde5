package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ceremony/internal/logging"
	"ceremony/internal/metrics"
	"ceremony/internal/pipeline"
	"ceremony/internal/verify"
)

var verifyFlags struct {
	remote          remoteFlags
	local           bool
	chainMode       string
	exitPolicy      string
	workers         int
	downloadWorkers int
	toolPath        string
	timeout         time.Duration
	metricsFile     string
	noLedger        bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Sync new contributions and verify the whole chain",
	Long: `Verify lists the bucket, downloads every artifact and receipt not yet present
under contributions/, then checks each contribution N against its anchor
(N-1 in chain mode, 0 in global mode) with the external verifier.

Exit status: 0 when no internal error occurred, 1 on an internal error,
2 under --exit-policy=strict when a contribution or a download failed.`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	verifyFlags.remote.register(f)
	f.BoolVar(&verifyFlags.local, "local", false, "Verify contributions already on disk without contacting the bucket")
	f.StringVar(&verifyFlags.chainMode, "chain-mode", "", "Anchor selection: chain (N-1) or global (0); default from config")
	f.StringVar(&verifyFlags.exitPolicy, "exit-policy", "", "errors or strict; default from config")
	f.IntVar(&verifyFlags.workers, "workers", 0, "Parallel verifications (default: one per CPU)")
	f.IntVar(&verifyFlags.downloadWorkers, "download-workers", 0, "Parallel downloads (default from config)")
	f.StringVar(&verifyFlags.toolPath, "tool", "", "Verifier binary (default from config)")
	f.DurationVar(&verifyFlags.timeout, "timeout", 0, "Per-artifact verifier timeout (default from config)")
	f.StringVar(&verifyFlags.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	f.BoolVar(&verifyFlags.noLedger, "no-ledger", false, "Do not record this run in the ledger")
}

func applyVerifyFlags() error {
	v := &verifyFlags
	v.remote.apply(cfg)
	if v.chainMode != "" {
		cfg.ChainMode = v.chainMode
	}
	if v.exitPolicy != "" {
		cfg.ExitPolicy = v.exitPolicy
	}
	if v.workers > 0 {
		cfg.VerifyWorkers = v.workers
	}
	if v.downloadWorkers > 0 {
		cfg.DownloadWorkers = v.downloadWorkers
	}
	if v.toolPath != "" {
		cfg.Tool.Path = v.toolPath
	}
	if v.timeout != 0 {
		secs, err := timeoutSeconds(v.timeout)
		if err != nil {
			return err
		}
		cfg.Tool.TimeoutSeconds = secs
	}
	if v.metricsFile != "" {
		cfg.MetricsPath = v.metricsFile
	}
	return cfg.Validate()
}

// timeoutSeconds converts --timeout to whole seconds, rounding up.
func timeoutSeconds(d time.Duration) (int, error) {
	if d < time.Second {
		return 0, fmt.Errorf("--timeout must be at least 1s, got %s", d)
	}
	return int((d + time.Second - 1) / time.Second), nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	if err := applyVerifyFlags(); err != nil {
		return err
	}
	ctx := cmd.Context()

	tool := verify.NewExecTool(cfg.Tool.Path, cfg.Tool.Subcommand, cfg.Tool.Timeout())
	if err := tool.Check(); err != nil {
		return fmt.Errorf("%w (install it or pass --tool)", err)
	}

	opts := pipeline.Options{
		Config: cfg,
		Tool:   tool,
		Out:    cmd.OutOrStdout(),
		Table:  tableMode(),
		Logger: logging.New("pipeline"),
	}
	if !verifyFlags.local {
		st, err := openS3(ctx, cfg)
		if err != nil {
			return err
		}
		opts.Remote = st
	}
	if cfg.MetricsPath != "" {
		opts.Metrics = metrics.New()
	}
	led, err := openLedger(cfg, verifyFlags.noLedger)
	if err != nil {
		return err
	}
	if led != nil {
		defer led.Close()
		opts.Ledger = led
	}

	res, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}
	return exitWith(res.ExitCode)
}

