package aggregate

import (
	"context"
	"errors"

	"github.com/aneshas/closebook/eventstore"
)

// ErrAggregateNotFound is returned by ByID when the aggregate's stream is
// empty - a missing aggregate is distinct from a present-but-zero one
var ErrAggregateNotFound = errors.New("aggregate not found")

// EventStore represents the event log surface the store needs
type EventStore interface {
	AppendStream(ctx context.Context, stream string, expectedVer int, events []eventstore.EventToStore) ([]eventstore.StoredEvent, error)
	ReadStream(ctx context.Context, stream string) ([]eventstore.StoredEvent, error)
}

// Rooter is implemented by any aggregate embedding Root
type Rooter interface {
	Rehydrate(aggregatePtr any, events ...Event)
	StringID() string
	Version() int
	Events() []Event
}

// NewStore constructs a new event sourced aggregate store
func NewStore[T Rooter](eventStore EventStore) *Store[T] {
	return &Store[T]{
		eventStore: eventStore,
	}
}

// Store loads and saves event sourced aggregates of type T
type Store[T Rooter] struct {
	eventStore EventStore
}

// Save appends the aggregate's uncommitted events to its stream at the
// version observed during rehydration. The stored events (with their global
// sequence assigned) are returned so the caller can feed them to projections.
func (s *Store[T]) Save(ctx context.Context, aggregate T) ([]eventstore.StoredEvent, error) {
	var events []eventstore.EventToStore

	meta := MetaFromCtx(ctx)

	for _, evt := range aggregate.Events() {
		events = append(events, eventstore.EventToStore{
			Event:      evt.E,
			ID:         evt.ID,
			OccurredOn: evt.OccurredOn,
			Meta:       meta,
		})
	}

	return s.eventStore.AppendStream(
		ctx,
		aggregate.StringID(),
		aggregate.Version(),
		events,
	)
}

// ByID reads the aggregate's stream and folds it onto the provided zero
// aggregate. Returns ErrAggregateNotFound for an empty stream.
func (s *Store[T]) ByID(ctx context.Context, id string, into T) error {
	storedEvents, err := s.eventStore.ReadStream(ctx, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrStreamNotFound) {
			return ErrAggregateNotFound
		}

		return err
	}

	var events []Event

	for _, evt := range storedEvents {
		events = append(events, Event{
			ID:         evt.ID,
			E:          evt.Event,
			OccurredOn: evt.OccurredOn,
			Meta:       evt.Meta,
		})
	}

	into.Rehydrate(into, events...)

	return nil
}
