package service

import (
	"context"

	"club-ledger/internal/models"
)

// RosterIndexer maintains the search index over synced members. The
// Elasticsearch adapter satisfies it; indexing is best effort, the primary
// store remains the source of truth.
type RosterIndexer interface {
	IndexMember(ctx context.Context, member *models.Member) error
	RemoveMember(ctx context.Context, memberID string) error
	SearchMemberIDs(ctx context.Context, query string) ([]string, error)
}
