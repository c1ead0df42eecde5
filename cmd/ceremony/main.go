// ceremony mirrors a trusted-setup ceremony bucket and verifies every
// contribution against the one before it.
//
// Usage:
//
//	ceremony verify --bucket=<bucket> --region=<region> [--chain-mode=chain|global] [--exit-policy=errors|strict]
//	ceremony verify --local
//	ceremony sync   --bucket=<bucket> --region=<region>
//	ceremony urls   --user=<next> --last-number=<n> --last-user=<name> --bucket=<bucket> --region=<region>
//	ceremony status [--run=<id>]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ceremony/internal/config"
	"ceremony/internal/format"
	"ceremony/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	table      string
}

// cfg is loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ceremony",
	Short: "Sync and verify trusted-setup ceremony contributions",
	Long: `ceremony mirrors contribution artifacts from the shared S3 bucket into
contributions/, then runs the verifier on every contribution against its
anchor and writes one log per contribution to verify_logs/.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", config.DefaultPath, "Config file (YAML or JSON); missing default file is ignored")
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")
	f.StringVar(&rootFlags.table, "format", "ascii", "Table format (ascii, markdown)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(urlsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, rootFlags.logFormat, cmd.ErrOrStderr())

	if cmd.Flags().Changed("config") {
		cfg, err = config.LoadFromPath(rootFlags.configPath)
	} else {
		cfg, err = config.LoadOptional(rootFlags.configPath)
	}
	if err != nil {
		return err
	}
	slog.Debug("config loaded", "path", rootFlags.configPath, "chain_mode", cfg.ChainMode, "exit_policy", cfg.ExitPolicy)
	return nil
}

func tableMode() format.Mode { return format.ParseMode(rootFlags.table) }

// exitError carries a process exit code out of RunE without printing.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
