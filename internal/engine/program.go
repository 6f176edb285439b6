package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmartinez0/rewards/internal/domain/settings"
)

// ProgramService manages the program settings row.
type ProgramService struct {
	logger   *slog.Logger
	settings settings.Repository
}

// NewProgramService creates a settings service.
func NewProgramService(logger *slog.Logger, settingsRepo settings.Repository) *ProgramService {
	return &ProgramService{logger: logger, settings: settingsRepo}
}

// Get returns the current program configuration.
func (s *ProgramService) Get(ctx context.Context) (*settings.Settings, error) {
	return s.settings.Get(ctx)
}

// Update validates and persists new program settings. Changes only affect
// future activity: existing lots keep the rate and expiration they were
// created under.
func (s *ProgramService) Update(ctx context.Context, next *settings.Settings) (*settings.Settings, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}

	next.UpdatedAt = time.Now()
	if err := s.settings.Upsert(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Info("Program settings updated",
		"earn_rate", next.EarnRate,
		"enabled", next.Enabled,
	)
	return next, nil
}
