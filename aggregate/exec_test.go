package aggregate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aneshas/closebook/aggregate"
	"github.com/aneshas/closebook/eventstore"
	"github.com/stretchr/testify/assert"
)

// retryingEventStore fails the first n appends with a concurrency conflict
type retryingEventStore struct {
	fakeEventStore

	conflicts int
	attempts  int
}

func (r *retryingEventStore) AppendStream(ctx context.Context, stream string, version int, events []eventstore.EventToStore) ([]eventstore.StoredEvent, error) {
	r.attempts++

	if r.attempts <= r.conflicts {
		return nil, &eventstore.ConflictError{Stream: stream, Expected: version, Actual: version + 1}
	}

	return r.fakeEventStore.AppendStream(ctx, stream, version, events)
}

func openedAccount() []eventstore.StoredEvent {
	return []eventstore.StoredEvent{
		{Event: accountOpened{ID: "acc-1", Owner: "john"}, StreamVersion: 1},
	}
}

func TestShould_Execute_Command_Against_Rehydrated_Aggregate(t *testing.T) {
	es := retryingEventStore{
		fakeEventStore: fakeEventStore{storedEvents: openedAccount()},
	}

	store := aggregate.NewStore[*account](&es)

	stored, err := aggregate.Exec(
		context.Background(), store, "acc-1", aggregate.DefaultConflictRetries,
		func() *account { return &account{} },
		func(a *account) error {
			a.Apply(amountDeposited{Amount: 100})

			return nil
		},
	)

	assert.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 1, es.attempts)
	assert.Equal(t, 1, es.version)
}

func TestShould_Retry_On_Concurrency_Conflict_With_Fresh_State(t *testing.T) {
	es := retryingEventStore{
		fakeEventStore: fakeEventStore{storedEvents: openedAccount()},
		conflicts:      2,
	}

	store := aggregate.NewStore[*account](&es)

	var seen []int

	_, err := aggregate.Exec(
		context.Background(), store, "acc-1", aggregate.DefaultConflictRetries,
		func() *account { return &account{} },
		func(a *account) error {
			// every attempt re-validates against freshly rehydrated state
			seen = append(seen, len(a.Events()))

			a.Apply(amountDeposited{Amount: 100})

			return nil
		},
	)

	assert.NoError(t, err)
	assert.Equal(t, 3, es.attempts)
	assert.Equal(t, []int{0, 0, 0}, seen)
}

func TestShould_Surface_Conflict_Once_Retries_Are_Exhausted(t *testing.T) {
	es := retryingEventStore{
		fakeEventStore: fakeEventStore{storedEvents: openedAccount()},
		conflicts:      5,
	}

	store := aggregate.NewStore[*account](&es)

	_, err := aggregate.Exec(
		context.Background(), store, "acc-1", 2,
		func() *account { return &account{} },
		func(a *account) error {
			a.Apply(amountDeposited{Amount: 100})

			return nil
		},
	)

	assert.ErrorIs(t, err, eventstore.ErrConcurrencyCheckFailed)
	assert.Equal(t, 3, es.attempts)
}

func TestShould_Not_Retry_Command_Rejections(t *testing.T) {
	es := retryingEventStore{
		fakeEventStore: fakeEventStore{storedEvents: openedAccount()},
	}

	store := aggregate.NewStore[*account](&es)

	errRejected := errors.New("rejected")

	_, err := aggregate.Exec(
		context.Background(), store, "acc-1", aggregate.DefaultConflictRetries,
		func() *account { return &account{} },
		func(a *account) error { return errRejected },
	)

	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, 0, es.attempts)
}

func TestShould_Not_Retry_Missing_Aggregate(t *testing.T) {
	es := retryingEventStore{
		fakeEventStore: fakeEventStore{readErr: eventstore.ErrStreamNotFound},
	}

	store := aggregate.NewStore[*account](&es)

	_, err := aggregate.Exec(
		context.Background(), store, "acc-404", aggregate.DefaultConflictRetries,
		func() *account { return &account{} },
		func(a *account) error { return nil },
	)

	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}
