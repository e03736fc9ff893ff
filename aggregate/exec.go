package aggregate

import (
	"context"
	"errors"

	"github.com/aneshas/closebook/eventstore"
)

// DefaultConflictRetries bounds how many times Exec re-rehydrates and re-runs
// a command after losing the optimistic concurrency race before the conflict
// is surfaced as terminal
const DefaultConflictRetries = 3

// Exec loads the aggregate by id onto a freshly constructed instance, runs
// the command against it and saves the produced events.
//
// If the append loses the optimistic concurrency race the whole
// rehydrate-decide-append cycle is repeated (with a fresh aggregate, so the
// command re-validates against current state) up to retries times; concurrent
// writes are never merged. Any other failure - including a command rejection -
// aborts immediately with nothing appended.
func Exec[T Rooter](
	ctx context.Context,
	store *Store[T],
	id string,
	retries int,
	fresh func() T,
	cmd func(a T) error) ([]eventstore.StoredEvent, error) {

	if retries < 0 {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		a := fresh()

		if err := store.ByID(ctx, id, a); err != nil {
			return nil, err
		}

		if err := cmd(a); err != nil {
			return nil, err
		}

		stored, err := store.Save(ctx, a)
		if err == nil {
			return stored, nil
		}

		if !errors.Is(err, eventstore.ErrConcurrencyCheckFailed) || attempt >= retries {
			return nil, err
		}
	}
}
