package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"club-ledger/internal/models"
	"club-ledger/internal/util"
)

type managementRepository struct {
	client *ScyllaClient
}

func NewManagementRepository(client *ScyllaClient) ManagementRepository {
	return &managementRepository{client: client}
}

// SeedDefault inserts the singleton row if it does not exist yet. The LWT
// keeps concurrent first-boot instances from racing to a second row.
func (r *managementRepository) SeedDefault(ctx context.Context) error {
	def := models.DefaultManagementConfig()

	applied, err := r.client.Session.Query(`
        INSERT INTO management (config_id, keycode, address, welcome, youtube_url,
            notification, playwhen, fee, venmo, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		def.ID, def.Keycode, def.Address, def.Welcome, def.YoutubeURL,
		def.Notification, def.Playwhen, def.Fee, def.Venmo, time.Now().UTC()).
		WithContext(ctx).ScanCAS(nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to seed management config: %w", err)
	}

	if applied {
		util.Info("Management config seeded with defaults")
	}
	return nil
}

func (r *managementRepository) Fetch(ctx context.Context) (*models.ManagementConfig, error) {
	cfg := &models.ManagementConfig{}

	query := r.client.Prepared.SelectManagement.Bind(models.ManagementRowID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&cfg.ID, &cfg.Keycode, &cfg.Address, &cfg.Welcome, &cfg.YoutubeURL,
		&cfg.Notification, &cfg.Playwhen, &cfg.Fee, &cfg.Venmo, &cfg.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			// Absent row means first boot raced ahead of seeding; seed and retry once.
			if seedErr := r.SeedDefault(ctx); seedErr != nil {
				return nil, seedErr
			}
			return r.fetchOnce(ctx)
		}
		util.Error("Failed to fetch management config", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch management config: %w", err)
	}

	return cfg, nil
}

func (r *managementRepository) fetchOnce(ctx context.Context) (*models.ManagementConfig, error) {
	cfg := &models.ManagementConfig{}
	query := r.client.Prepared.SelectManagement.Bind(models.ManagementRowID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&cfg.ID, &cfg.Keycode, &cfg.Address, &cfg.Welcome, &cfg.YoutubeURL,
		&cfg.Notification, &cfg.Playwhen, &cfg.Fee, &cfg.Venmo, &cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch management config: %w", err)
	}
	return cfg, nil
}

func (r *managementRepository) Update(ctx context.Context, cfg *models.ManagementConfig) error {
	now := time.Now().UTC()
	cfg.ID = models.ManagementRowID
	cfg.UpdatedAt = &now

	query := r.client.Prepared.UpdateManagement.Bind(
		cfg.Keycode, cfg.Address, cfg.Welcome, cfg.YoutubeURL,
		cfg.Notification, cfg.Playwhen, cfg.Fee, cfg.Venmo, cfg.UpdatedAt,
		cfg.ID)

	if err := query.WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update management config", zap.Error(err))
		return fmt.Errorf("failed to update management config: %w", err)
	}

	util.Info("Management config updated", zap.Int("fee", cfg.Fee))
	return nil
}
