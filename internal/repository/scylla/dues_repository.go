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

type duesRepository struct {
	client *ScyllaClient
}

func NewDuesRepository(client *ScyllaClient) DuesRepository {
	return &duesRepository{client: client}
}

// GetMonthlyFields returns exactly 12 cells, zero-padded. A member without a
// dues row reads as an all-zero year, not an error.
func (r *duesRepository) GetMonthlyFields(ctx context.Context, username string) ([]int, error) {
	var (
		name      string
		paid      []int
		updatedAt *time.Time
	)

	query := r.client.Prepared.SelectDues.Bind(username).WithContext(ctx)
	if err := r.client.ScanWithRetry(query, &name, &paid, &updatedAt); err != nil {
		if err == gocql.ErrNotFound {
			return make([]int, models.MonthsPerYear), nil
		}
		util.Error("Failed to get dues record",
			zap.String("username", username),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get dues record: %w", err)
	}

	return models.PadMonths(paid), nil
}

func (r *duesRepository) SetMonthlyFields(ctx context.Context, username string, values []int) error {
	padded := models.PadMonths(values)
	now := time.Now().UTC()

	query := r.client.Prepared.UpsertDues.Bind(padded, now, username)
	if err := query.WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to set dues record",
			zap.String("username", username),
			zap.Error(err))
		return fmt.Errorf("failed to set dues record: %w", err)
	}

	return nil
}

func (r *duesRepository) DeleteRecord(ctx context.Context, username string) error {
	if err := r.client.Prepared.DeleteDues.Bind(username).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to delete dues record: %w", err)
	}
	return nil
}
