package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"PDFAnnouncer/internal/app"
	"PDFAnnouncer/internal/config"
	"PDFAnnouncer/internal/logging"
)

var (
	cfgFile    string
	dryRun     bool
	noPost     bool
	localState string
	interval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pdfannouncer",
	Short: "Announce newly published PDFs on social platforms",
	Long: `pdfannouncer lists PDFs in a bucket (or on a web index page), extracts their
text, and posts an announcement for each unseen document to every configured platform.
The ledger of announced documents is written back at the end of the run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOnce,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one announcement cycle and exit",
	RunE:  runOnce,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run a cycle now and then on every interval until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cfg, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		every := interval
		if every <= 0 {
			every = cfg.Schedule.Interval
		}
		return a.Schedule(cmd.Context(), every)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $PDFANNOUNCER_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print posts instead of publishing; the ledger is not written")
	rootCmd.PersistentFlags().BoolVar(&noPost, "no-post", false, "record documents as announced without posting")
	rootCmd.PersistentFlags().StringVar(&localState, "local-state", "", "keep the ledger in this local JSON file")
	scheduleCmd.Flags().DurationVar(&interval, "interval", 0, "time between runs (default schedule.interval)")

	rootCmd.AddCommand(runCmd, scheduleCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		stop()
		os.Exit(1)
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, _, err := build(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run %s: %w", report.RunID, err)
	}
	return nil
}

func build(ctx context.Context) (*app.Application, config.Config, error) {
	if dryRun && noPost {
		return nil, config.Config{}, errors.New("--dry-run and --no-post are mutually exclusive")
	}

	cfg, err := config.Load(cfgFile, func(c *config.Config) {
		if localState != "" {
			c.State.LocalPath = localState
		}
	})
	if err != nil {
		return nil, config.Config{}, err
	}
	logger := logging.New(cfg.LogLevel)

	a, err := app.New(ctx, cfg, app.Flags{
		DryRun:     dryRun,
		NoPost:     noPost,
		LocalState: localState,
		Out:        os.Stdout,
	}, logger)
	if err != nil {
		return nil, config.Config{}, err
	}
	return a, cfg, nil
}
