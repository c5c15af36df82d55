package alerting

import (
	"context"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
)

// Ledger exposes the audit view over dispatched alert events.
type Ledger struct {
	events repository.AlertEventRepository
}

// NewLedger creates an alert history ledger.
func NewLedger(events repository.AlertEventRepository) *Ledger {
	return &Ledger{events: events}
}

// History returns a subscription's alert events, most recent first. limit
// bounds the result; zero or negative means the repository default.
func (l *Ledger) History(ctx context.Context, subscriptionID uint, limit int) ([]entities.AlertEvent, error) {
	return l.events.ListBySubscription(ctx, subscriptionID, limit)
}

// Stats returns event counts grouped by delivery status. Statuses with no
// events are present with a zero count so dashboards always see the full
// set.
func (l *Ledger) Stats(ctx context.Context) (map[string]int64, error) {
	counts, err := l.events.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, status := range []string{
		entities.AlertStatusPending,
		entities.AlertStatusInflight,
		entities.AlertStatusSent,
		entities.AlertStatusFailed,
	} {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}
