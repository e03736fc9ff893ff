package app

import (
	"errors"

	"github.com/aneshas/closebook/aggregate"
	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/ledger"
)

// ErrValidation indicates malformed input at the command boundary - it is
// raised before rehydration even begins and nothing is persisted
var ErrValidation = errors.New("validation failed")

// ErrNotFound indicates the referenced journal entry does not exist
var ErrNotFound = errors.New("journal entry not found")

// IsValidation reports a boundary validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvariantViolation reports a domain rule failure (balance mismatch,
// invalid reversal/correction target, bad status transition) - nothing
// was persisted
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ledger.ErrInvariantViolation)
}

// IsConflict reports a terminal concurrency conflict - the handler's bounded
// retries were exhausted
func IsConflict(err error) bool {
	return errors.Is(err, eventstore.ErrConcurrencyCheckFailed)
}

// IsNotFound reports that the referenced entry does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, aggregate.ErrAggregateNotFound)
}
