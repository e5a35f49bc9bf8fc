package analytics

import (
	"context"
	"time"

	"club-ledger/internal/client"
	"club-ledger/internal/models"
)

const insertSnapshotQuery = `
	INSERT INTO dues_snapshots (username, month, paid, recorded_at)
	VALUES (?, ?, ?, ?)`

// DuesSink writes dues snapshots to ClickHouse, one row per month cell, for
// season-over-season reporting. Callers treat failures as non-fatal.
type DuesSink struct {
	ch *client.ClickHouseClient
}

func NewDuesSink(ch *client.ClickHouseClient) *DuesSink {
	return &DuesSink{ch: ch}
}

func (s *DuesSink) RecordSnapshot(ctx context.Context, username string, paid []int) error {
	now := time.Now().UTC()
	padded := models.PadMonths(paid)

	data := make([][]interface{}, 0, models.MonthsPerYear)
	for month, amount := range padded {
		data = append(data, []interface{}{username, int32(month), int32(amount), now})
	}

	return s.ch.BatchInsert(ctx, insertSnapshotQuery, data)
}
