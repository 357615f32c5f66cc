package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jarvisms/godcs/dcs"
)

// ReadingsClient is the slice of the DCS client the archiver uses.
type ReadingsClient interface {
	LargeReadings(ctx context.Context, q dcs.ReadingsQuery, maxWindow time.Duration) (*dcs.ReadingsResult, error)
}

// Options tunes a sync run.
type Options struct {
	// Channels to archive, e.g. R123 or VM45.
	Channels []dcs.Channel

	// Period selects the reading resolution. Defaults to half hourly.
	Period dcs.Period

	// MaxWindow bounds how much data a single server request may cover.
	MaxWindow time.Duration

	// Backfill is how far back the first sync of a channel reaches when
	// the database holds nothing for it yet.
	Backfill time.Duration

	// BatchSize is how many readings are written per transaction.
	BatchSize int
}

// Archiver incrementally copies channel readings into a Repository.
type Archiver struct {
	client ReadingsClient
	repo   Repository
	log    *logrus.Logger
	opts   Options
}

// New builds an Archiver. Zero option fields get sensible defaults.
func New(client ReadingsClient, repo Repository, log *logrus.Logger, opts Options) *Archiver {
	if opts.Period == "" {
		opts.Period = dcs.PeriodHalfHour
	}
	if opts.MaxWindow <= 0 {
		opts.MaxWindow = 14 * 24 * time.Hour
	}
	if opts.Backfill <= 0 {
		opts.Backfill = 365 * 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	return &Archiver{client: client, repo: repo, log: log, opts: opts}
}

// Sync brings every configured channel up to date. Channels are synced
// independently; a failure on one does not stop the others, and all
// failures are reported together.
func (a *Archiver) Sync(ctx context.Context) error {
	var errs []error
	for _, ch := range a.opts.Channels {
		if err := a.syncChannel(ctx, ch); err != nil {
			a.log.WithFields(logrus.Fields{
				"channel": string(ch),
				"error":   err,
			}).Error("channel sync failed")
			errs = append(errs, fmt.Errorf("channel %s: %w", ch, err))
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return errors.Join(errs...)
}

func (a *Archiver) syncChannel(ctx context.Context, ch dcs.Channel) error {
	end := time.Now().UTC().Truncate(time.Minute)

	start, err := a.repo.LatestTimestamp(ctx, string(ch))
	if err != nil {
		return fmt.Errorf("latest timestamp: %w", err)
	}
	if start.IsZero() {
		start = end.Add(-a.opts.Backfill)
	}
	if !start.Before(end) {
		a.log.WithField("channel", string(ch)).Debug("channel already up to date")
		return nil
	}

	q := dcs.NewReadingsQuery(ch, start, end)
	q.Period = a.opts.Period
	q.Stream = true

	result, err := a.client.LargeReadings(ctx, q, a.opts.MaxWindow)
	if err != nil {
		return err
	}
	defer result.Close()

	var (
		batch  = make([]dcs.Reading, 0, a.opts.BatchSize)
		stored int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := a.repo.UpsertReadings(ctx, string(ch), batch); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		stored += len(batch)
		batch = batch[:0]
		return nil
	}

	for result.Next() {
		batch = append(batch, result.Reading())
		if len(batch) >= a.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := result.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"channel":  string(ch),
		"readings": stored,
		"start":    start,
		"end":      end,
	}).Info("channel synced")
	return nil
}
