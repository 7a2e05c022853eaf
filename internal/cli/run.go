package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recon/internal/datahive/models"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Class      string
	File       string
	FailOnCase bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile one batch of notices and print the run summary",
		Long: `Reconcile one batch of notices of a single identifier class.

The notices file is JSON ({"notices": [...]}) or CSV with the header
identifier,notice_no,offence_date,owner_driver_indicator.

Example:
  recon run --class FIN --file notices.csv
  recon run --class UEN --file notices.json --fail-on-case-errors`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "", "identifier class (NRIC|FIN|UEN)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "notices file, - for stdin")
	cmd.Flags().BoolVar(&opts.FailOnCase, "fail-on-case-errors", false, "exit non-zero when any case failed")
	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runBatch(cmd *cobra.Command, opts *RunOptions) error {
	class, ok := models.ParseClass(opts.Class)
	if !ok {
		return fmt.Errorf("unknown identifier class %q", opts.Class)
	}

	var in io.Reader = cmd.InOrStdin()
	name := "stdin.json"
	if opts.File != "-" {
		f, err := os.Open(opts.File)
		if err != nil {
			return fmt.Errorf("opening notices: %w", err)
		}
		defer func() { _ = f.Close() }()
		in, name = f, opts.File
	}
	notices, err := LoadNotices(in, name)
	if err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	log := opts.logger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := opts.Factory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building reconciler: %w", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Error("closing resources", "error", err)
		}
	}()

	summary, err := runner.Run(ctx, class, notices)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	if opts.FailOnCase && len(summary.Errors) > 0 {
		return fmt.Errorf("%d case(s) failed", len(summary.Errors))
	}
	return nil
}
