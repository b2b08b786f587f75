package postgres

import (
	"context"
	"fmt"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

// SaveEvents persists events one prepared insert at a time and stops at the
// first failure, so the returned count is the stored prefix.
func (a *Adapter) SaveEvents(ctx context.Context, events []*v1.Event) (int, error) {
	for i, event := range events {
		if err := a.saveEvent(ctx, event); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

func (a *Adapter) saveEvent(ctx context.Context, event *v1.Event) error {
	metadataJSON, err := marshalMetadata(event)
	if err != nil {
		return err
	}

	var id int64
	err = a.stmtSaveEvent.QueryRowContext(
		ctx,
		event.DedupKey,
		event.EventType,
		event.SessionID,
		nullString(event.WaiTag),
		nullString(event.Domain),
		nullString(event.URL),
		nullCustomerID(event.CustomerID),
		event.Timestamp.Time,
		event.Timestamp.String(),
		event.IngestedAt,
		metadataJSON,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}
