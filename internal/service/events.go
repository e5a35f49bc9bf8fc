package service

import (
	"context"

	"club-ledger/internal/client"
)

// EventPublisher emits audit events for member mutations. The Kafka producer
// satisfies it; tests substitute a recorder. Publishing is best effort
// everywhere: an unreachable broker never fails a domain write.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *client.ClubEvent) error
}
