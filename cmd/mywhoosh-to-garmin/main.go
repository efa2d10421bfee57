package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/config"
	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/fitfile"
	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/garmin"
	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/mywhoosh"
	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/processor"
)

var Version = "dev"

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// errNothingToSync marks a completed pass that found no activity to move.
// One-shot runs exit nonzero on it; the periodic loop treats it as normal.
var errNothingToSync = errors.New("no activities to sync")

type options struct {
	limit           int
	checkDuplicates bool
	envFile         string
	every           time.Duration
	metricsAddr     string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts := &options{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, domain.ErrConfig):
			log.Printf("%v", err)
			return exitConfig
		case errors.Is(err, context.Canceled):
			log.Printf("interrupted")
			return exitInterrupted
		default:
			log.Printf("%v", err)
			return exitFailure
		}
	}
	return exitOK
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mywhoosh-to-garmin",
		Short:         "Sync MyWhoosh activities to Garmin Connect",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sync(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 1, "number of recent activities to sync")
	cmd.Flags().BoolVar(&opts.checkDuplicates, "check-duplicates", true, "skip activities already on Garmin Connect")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "path to a dotenv file with credentials")
	cmd.Flags().DurationVar(&opts.every, "every", 0, "run continuously with this interval between passes")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", ":9184", "Prometheus listen address in continuous mode")

	return cmd
}

func sync(ctx context.Context, opts *options) error {
	if opts.limit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}

	flags := log.LstdFlags
	if cfg.Debug() {
		flags |= log.Lshortfile
	}

	scratch := osfs.New(os.TempDir())

	source := mywhoosh.New(cfg.MyWhooshEmail, cfg.MyWhooshPassword,
		mywhoosh.WithFilesystem(scratch),
		mywhoosh.WithLogger(log.New(log.Writer(), "[mywhoosh] ", flags)),
		mywhoosh.WithDebug(cfg.Debug()),
	)
	patcher := fitfile.New(
		fitfile.WithFilesystem(scratch),
		fitfile.WithLogger(log.New(log.Writer(), "[fitfile] ", flags)),
	)
	destination := garmin.New(cfg.GarminUsername, cfg.GarminPassword,
		garmin.WithFilesystem(scratch),
		garmin.WithLogger(log.New(log.Writer(), "[garmin] ", flags)),
	)
	p := processor.New(source, patcher, destination,
		processor.WithLogger(log.New(log.Writer(), "[processor] ", flags)),
	)

	log.Printf("mywhoosh-to-garmin %s starting (limit=%d, checkDuplicates=%t)", Version, opts.limit, opts.checkDuplicates)

	if opts.every > 0 {
		return runPeriodic(ctx, p, opts)
	}
	return runOnce(ctx, p, opts)
}

func runOnce(ctx context.Context, p *processor.Processor, opts *options) error {
	if opts.limit == 1 {
		outcome, err := p.ProcessLatest(ctx, opts.checkDuplicates)
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return err
		}
		if outcome == processor.OutcomeNoActivity {
			return errNothingToSync
		}
		return nil
	}

	summary, err := p.ProcessMany(ctx, opts.limit, opts.checkDuplicates)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d activities failed", summary.Errors, summary.Total)
	}
	return nil
}

// runPeriodic keeps syncing on an interval until a shutdown signal
// arrives, exposing the Prometheus registry while it runs.
func runPeriodic(ctx context.Context, p *processor.Processor, opts *options) error {
	metricsSrv := &http.Server{Addr: opts.metricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Printf("metrics listening on %s", opts.metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown error: %v", err)
		}
	}()

	ticker := time.NewTicker(opts.every)
	defer ticker.Stop()

	log.Printf("syncing every %s", opts.every)
	for {
		runPass(ctx, p, opts)
		select {
		case <-ctx.Done():
			log.Printf("received shutdown signal")
			return nil
		case <-ticker.C:
		}
	}
}

func runPass(ctx context.Context, p *processor.Processor, opts *options) {
	err := runOnce(ctx, p, opts)
	if err == nil || errors.Is(err, errNothingToSync) || errors.Is(err, context.Canceled) {
		return
	}
	log.Printf("sync pass: %v", err)
}
