package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// SettingsRepository implements the settings.Repository interface for PostgreSQL
type SettingsRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSettingsRepository creates a new PostgreSQL settings repository.
func NewSettingsRepository(logger *slog.Logger, db *persistence.PostgresDB) settings.Repository {
	return &SettingsRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SettingsRepository) WithTx(tx pgx.Tx) settings.Repository {
	return &SettingsRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Get returns the stored program settings, or the defaults when the merchant
// has not saved settings yet.
func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	query := `SELECT earn_rate, expiration_days, enabled, updated_at FROM program_settings WHERE id = 1`

	var s settings.Settings
	err := r.querier.QueryRow(ctx, query).Scan(&s.EarnRate, &s.ExpirationDays, &s.Enabled, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settings.Default(), nil
		}
		r.logger.Error("Failed to get program settings", "error", err)
		return nil, fmt.Errorf("failed to get program settings: %w", err)
	}

	return &s, nil
}

// Upsert stores the program settings in the single settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, s *settings.Settings) error {
	query := `
		INSERT INTO program_settings (id, earn_rate, expiration_days, enabled, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET earn_rate = EXCLUDED.earn_rate,
		    expiration_days = EXCLUDED.expiration_days,
		    enabled = EXCLUDED.enabled,
		    updated_at = NOW()
	`

	if _, err := r.querier.Exec(ctx, query, s.EarnRate, s.ExpirationDays, s.Enabled); err != nil {
		r.logger.Error("Failed to upsert program settings", "error", err)
		return fmt.Errorf("failed to upsert program settings: %w", err)
	}

	return nil
}
