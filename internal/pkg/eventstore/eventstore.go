// Package eventstore is the append-only audit log behind every mutation in
// shepherd. Each aggregate (member, household, service sheet, gift,
// invitation) has a versioned stream; appends use optimistic concurrency and
// can join the caller's transaction so the log and the read model commit
// together.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shepherd/internal/pkg/apperr"
)

var (
	ErrConcurrencyConflict = apperr.New(apperr.ErrConflict, "concurrent update, reload and retry")
	ErrNoEvents            = errors.New("no events to append")
)

// Event is one entry in an aggregate's stream.
type Event struct {
	ID            int64           `json:"id"`
	ChurchID      uuid.UUID       `json:"churchId"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	Data          json.RawMessage `json:"data"`
	ActorID       *uuid.UUID      `json:"actorId,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewEvent marshals payload into an event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{EventType: eventType, Data: data}, nil
}

// Stream identifies the aggregate an append targets.
type Stream struct {
	ChurchID      uuid.UUID
	AggregateID   uuid.UUID
	AggregateType string
	ActorID       *uuid.UUID
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store appends to and reads from the events table.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("shepherd/eventstore"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append writes events to s in their own serializable transaction.
// expectedVersion is the stream version the caller last saw (0 for a new
// aggregate).
func (es *Store) Append(ctx context.Context, s Stream, expectedVersion int, events ...Event) error {
	tx, err := es.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := es.AppendTx(ctx, tx, s, expectedVersion, events...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AppendTx is Append inside the caller's transaction. Nothing is committed.
func (es *Store) AppendTx(ctx context.Context, tx *sql.Tx, s Stream, expectedVersion int, events ...Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("church.id", s.ChurchID.String()),
			attribute.String("aggregate.id", s.AggregateID.String()),
			attribute.String("aggregate.type", s.AggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if len(events) == 0 {
		return ErrNoEvents
	}

	current, err := currentVersion(ctx, tx, s.AggregateID)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	for i, ev := range events {
		version := expectedVersion + i + 1
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO events (church_id, aggregate_id, aggregate_type, event_type, event_data, actor_id, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, s.ChurchID, s.AggregateID, s.AggregateType, ev.EventType, []byte(ev.Data), s.ActorID, version, es.now()).Scan(&id)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}
		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", id),
			attribute.Int("event.version", version),
			attribute.String("event.type", ev.EventType),
		))
	}
	return nil
}

// Load returns an aggregate's events with fromVersion <= version, and
// version <= toVersion when toVersion is positive.
func (es *Store) Load(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := `
		SELECT id, church_id, aggregate_id, aggregate_type, event_type, event_data, actor_id, version, created_at
		FROM events
		WHERE aggregate_id = $1 AND version >= $2`
	args := []any{aggregateID, fromVersion}
	if toVersion > 0 {
		query += " AND version <= $3"
		args = append(args, toVersion)
	}
	query += " ORDER BY version ASC"

	events, err := scanEvents(es.db.QueryContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// Version returns the latest version of an aggregate's stream, 0 if empty.
func (es *Store) Version(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.version",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()
	return currentVersion(ctx, es.db, aggregateID)
}

// Feed pages through a church's events newest first. Pass beforeID 0 for
// the first page.
func (es *Store) Feed(ctx context.Context, churchID uuid.UUID, beforeID int64, limit int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.feed",
		trace.WithAttributes(
			attribute.String("church.id", churchID.String()),
			attribute.Int64("before.id", beforeID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if beforeID <= 0 {
		beforeID = 1<<63 - 1
	}
	events, err := scanEvents(es.db.QueryContext(ctx, `
		SELECT id, church_id, aggregate_id, aggregate_type, event_type, event_data, actor_id, version, created_at
		FROM events
		WHERE church_id = $1 AND id < $2
		ORDER BY id DESC
		LIMIT $3
	`, churchID, beforeID, limit))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.returned", len(events)))
	return events, nil
}

func currentVersion(ctx context.Context, q querier, aggregateID uuid.UUID) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}

func scanEvents(rows *sql.Rows, err error) ([]Event, error) {
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev    Event
			data  []byte
			actor uuid.NullUUID
		)
		if err := rows.Scan(&ev.ID, &ev.ChurchID, &ev.AggregateID, &ev.AggregateType,
			&ev.EventType, &data, &actor, &ev.Version, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Data = json.RawMessage(data)
		if actor.Valid {
			id := actor.UUID
			ev.ActorID = &id
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
