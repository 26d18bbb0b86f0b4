package eventstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/noetl/noetl/internal/model"
)

// Filter selects a subset of an execution's event log. A zero-value Filter
// with ExecutionID set returns every event for that execution, oldest
// first.
type Filter struct {
	ExecutionID int64
	NodeID      *int64
	EventTypes  []model.EventType
	SinceID     int64 // exclusive lower bound on event_id, for tailing
	Limit       int
}

// GetEvents returns events matching the filter, ordered by event_id.
func (s *Store) GetEvents(ctx context.Context, f Filter) ([]*model.Event, error) {
	var b strings.Builder
	b.WriteString(`SELECT event_id, execution_id, catalog_id, parent_event_id, node_id, node_name,
		event_type, status, timestamp, current_index, attempt, context, result, meta
		FROM events WHERE execution_id = $1`)
	args := []any{f.ExecutionID}

	if f.NodeID != nil {
		args = append(args, *f.NodeID)
		fmt.Fprintf(&b, " AND node_id = $%d", len(args))
	}
	if len(f.EventTypes) > 0 {
		args = append(args, f.EventTypes)
		fmt.Fprintf(&b, " AND event_type = ANY($%d)", len(args))
	}
	if f.SinceID > 0 {
		args = append(args, f.SinceID)
		fmt.Fprintf(&b, " AND event_id > $%d", len(args))
	}
	b.WriteString(" ORDER BY event_id ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: get events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		ev := &model.Event{}
		if err := rows.Scan(
			&ev.EventID, &ev.ExecutionID, &ev.CatalogID, &ev.ParentEventID, &ev.NodeID, &ev.NodeName,
			&ev.EventType, &ev.Status, &ev.Timestamp, &ev.CurrentIndex, &ev.Attempt, &ev.Context, &ev.Result, &ev.Meta,
		); err != nil {
			return nil, fmt.Errorf("eventstore: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: iterate events: %w", err)
	}
	return events, nil
}

// GetByID loads a single event by its primary key.
func (s *Store) GetByID(ctx context.Context, eventID int64) (*model.Event, error) {
	ev := &model.Event{}
	err := s.db.QueryRow(ctx, `SELECT event_id, execution_id, catalog_id, parent_event_id, node_id, node_name,
		event_type, status, timestamp, current_index, attempt, context, result, meta
		FROM events WHERE event_id = $1`, eventID).Scan(
		&ev.EventID, &ev.ExecutionID, &ev.CatalogID, &ev.ParentEventID, &ev.NodeID, &ev.NodeName,
		&ev.EventType, &ev.Status, &ev.Timestamp, &ev.CurrentIndex, &ev.Attempt, &ev.Context, &ev.Result, &ev.Meta,
	)
	if err != nil {
		return nil, fmt.Errorf("eventstore: get event %d: %w", eventID, err)
	}
	return ev, nil
}
