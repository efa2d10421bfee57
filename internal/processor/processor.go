// Package processor drives activities through the sync pipeline: list
// from the source, duplicate-check, download, patch, upload.
package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

// Source lists and downloads activities from the trainer platform.
type Source interface {
	Authenticate(ctx context.Context) error
	Activities(ctx context.Context, limit int) ([]domain.Activity, error)
	Download(ctx context.Context, activity domain.Activity) (string, error)
}

// Patcher rewrites device identity on downloaded files and disposes of
// scratch files.
type Patcher interface {
	PatchDeviceIdentity(path string) (string, error)
	Cleanup(path string)
}

// Destination answers duplicate queries and accepts uploads.
type Destination interface {
	Authenticate(ctx context.Context) error
	IsAuthenticated() bool
	CheckDuplicate(ctx context.Context, startedAt time.Time, name string) (bool, error)
	Upload(ctx context.Context, path string) (domain.UploadReceipt, error)
}

// Outcome classifies how a sync pass ended.
type Outcome string

const (
	OutcomeSynced     Outcome = "synced"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeNoActivity Outcome = "no-activity"
	OutcomeFailed     Outcome = "failed"
)

func (o Outcome) String() string {
	return string(o)
}

// Summary aggregates a batch run.
type Summary struct {
	Total   int
	Synced  int
	Skipped int
	Errors  int
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor owns the order of operations for a sync run. It holds no
// session state of its own; the clients carry their tokens.
type Processor struct {
	source      Source
	patcher     Patcher
	destination Destination
	logger      *log.Logger
}

// New constructs a Processor over the given clients.
func New(source Source, patcher Patcher, destination Destination, opts ...Option) *Processor {
	p := &Processor{
		source:      source,
		patcher:     patcher,
		destination: destination,
		logger:      log.New(log.Writer(), "[processor] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessLatest syncs the most recent source activity. It reports
// OutcomeNoActivity when the source has nothing to offer, OutcomeDuplicate
// when the destination already has the ride, and OutcomeSynced on upload.
func (p *Processor) ProcessLatest(ctx context.Context, checkDuplicates bool) (Outcome, error) {
	started := time.Now()
	outcome, err := p.processLatest(ctx, checkDuplicates)
	recordSync(outcome, time.Since(started))
	return outcome, err
}

func (p *Processor) processLatest(ctx context.Context, checkDuplicates bool) (Outcome, error) {
	if err := p.source.Authenticate(ctx); err != nil {
		return OutcomeFailed, fmt.Errorf("authenticating with source: %w", err)
	}
	activities, err := p.source.Activities(ctx, 1)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("listing activities: %w", err)
	}
	if len(activities) == 0 {
		p.logger.Printf("no activities to sync")
		return OutcomeNoActivity, nil
	}
	return p.syncOne(ctx, activities[0], checkDuplicates)
}

// ProcessMany syncs up to limit activities, newest first. Failures are
// isolated: one bad activity is counted and the rest still run. The
// returned error is non-nil only when the batch cannot start, or when the
// context is cancelled mid-run.
func (p *Processor) ProcessMany(ctx context.Context, limit int, checkDuplicates bool) (Summary, error) {
	if err := p.source.Authenticate(ctx); err != nil {
		return Summary{}, fmt.Errorf("authenticating with source: %w", err)
	}
	activities, err := p.source.Activities(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("listing activities: %w", err)
	}

	summary := Summary{Total: len(activities)}
	for _, activity := range activities {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		started := time.Now()
		outcome, err := p.syncOne(ctx, activity, checkDuplicates)
		recordSync(outcome, time.Since(started))
		if err != nil {
			p.logger.Printf("error: syncing %s: %v", activity.ID, err)
			summary.Errors++
			continue
		}
		switch outcome {
		case OutcomeSynced:
			summary.Synced++
		case OutcomeDuplicate:
			summary.Skipped++
		}
	}

	p.logger.Printf("batch done: %d total, %d synced, %d skipped, %d errors",
		summary.Total, summary.Synced, summary.Skipped, summary.Errors)
	return summary, nil
}

func (p *Processor) syncOne(ctx context.Context, activity domain.Activity, checkDuplicates bool) (Outcome, error) {
	p.logger.Printf("syncing %q (id %s)", activity.DisplayName(), activity.ID)

	if checkDuplicates {
		duplicate, err := p.isDuplicate(ctx, activity)
		if err != nil {
			return OutcomeFailed, err
		}
		if duplicate {
			p.logger.Printf("skipping %q, already on the destination", activity.DisplayName())
			return OutcomeDuplicate, nil
		}
	}

	downloaded, err := p.source.Download(ctx, activity)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("downloading %s: %w", activity.ID, err)
	}
	defer p.patcher.Cleanup(downloaded)

	patched, err := p.patcher.PatchDeviceIdentity(downloaded)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("patching %s: %w", downloaded, err)
	}
	defer p.patcher.Cleanup(patched)

	if err := p.ensureDestinationAuth(ctx); err != nil {
		return OutcomeFailed, err
	}
	receipt, err := p.destination.Upload(ctx, patched)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("uploading %s: %w", patched, err)
	}

	if receipt.UploadID != 0 {
		p.logger.Printf("synced %q, upload id %d", activity.DisplayName(), receipt.UploadID)
	} else {
		p.logger.Printf("synced %q", activity.DisplayName())
	}
	return OutcomeSynced, nil
}

// isDuplicate normalizes the start time and asks the destination. An
// unparseable start time skips the check rather than blocking the sync.
func (p *Processor) isDuplicate(ctx context.Context, activity domain.Activity) (bool, error) {
	startedAt, err := domain.ParseStartTime(activity.StartTime)
	if err != nil {
		p.logger.Printf("warning: %v, skipping duplicate check", err)
		return false, nil
	}
	if err := p.ensureDestinationAuth(ctx); err != nil {
		return false, err
	}
	return p.destination.CheckDuplicate(ctx, startedAt, activity.Name)
}

func (p *Processor) ensureDestinationAuth(ctx context.Context) error {
	if p.destination.IsAuthenticated() {
		return nil
	}
	if err := p.destination.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticating with destination: %w", err)
	}
	return nil
}
