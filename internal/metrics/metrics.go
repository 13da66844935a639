package metrics

import (
	"context"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
)

type service struct {
	repo Repository
	log  logger.Logger
}

// noopCollector discards everything; used when recording is disabled.
type noopCollector struct{}

// NewService returns a Collector for cfg. A disabled config yields a
// collector that records nothing and never touches the filesystem.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Metrics disabled")
		return noopCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics recording to database")

	return &service{repo: repo, log: log}, nil
}

func (s *service) RecordReading(ctx context.Context, snapshot *ReadingSnapshot) error {
	if snapshot == nil {
		return errors.New().New(ErrInvalidMetrics)
	}

	return s.record(ctx, func() error { return s.repo.RecordReading(snapshot) })
}

func (s *service) RecordModeChange(ctx context.Context, change *ModeChange) error {
	if change == nil {
		return errors.New().New(ErrInvalidMetrics)
	}

	return s.record(ctx, func() error { return s.repo.RecordModeChange(change) })
}

func (s *service) record(ctx context.Context, write func() error) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrOperationTimeout, err)
	}
	if err := write(); err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (noopCollector) RecordReading(context.Context, *ReadingSnapshot) error { return nil }
func (noopCollector) RecordModeChange(context.Context, *ModeChange) error   { return nil }
func (noopCollector) Close() error                                          { return nil }
