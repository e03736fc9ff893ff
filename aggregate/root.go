// Package aggregate provides an event sourced aggregate base type along with
// a store that rehydrates aggregates from the event log and appends their
// uncommitted events back to it under the optimistic concurrency check.
package aggregate

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMissingAggregateEventHandler is raised when the aggregate is missing
	// an On{EventName} method for an event it is asked to fold
	ErrMissingAggregateEventHandler = fmt.Errorf("missing aggregate event handler")

	// ErrAggregateRootNotAPointer is raised when the supplied aggregate root is not a pointer
	ErrAggregateRootNotAPointer = fmt.Errorf("aggregate needs to be a pointer")

	// ErrAggregateRootNotRehydrated is raised when the aggregate is used before
	// Rehydrate has been called on it
	ErrAggregateRootNotRehydrated = fmt.Errorf("aggregate needs to be rehydrated")
)

// Root represents a reusable event sourced aggregate base type which provides
// rehydration via a pure event fold and event handler dispatch.
//
// The same fold runs whether events come from the log during rehydration or
// from Apply during command handling, so an aggregate's state is always
// exactly the cumulative effect of its stream.
type Root[T fmt.Stringer] struct {
	id T

	version      int
	domainEvents []Event

	ptr reflect.Value
}

// Rehydrate constructs the aggregate state by folding the provided events
// in order over the zero aggregate. It must be called (with the aggregate's
// own pointer) before any command method uses Apply.
func (a *Root[T]) Rehydrate(aggregatePtr any, events ...Event) {
	a.ptr = reflect.ValueOf(aggregatePtr)

	if a.ptr.Kind() != reflect.Ptr {
		panic(ErrAggregateRootNotAPointer)
	}

	for _, evt := range events {
		a.mutate(evt.E)

		a.version++
	}
}

// SetID sets the aggregate identity (meant to be called from the
// event handler of the aggregate's creation event)
func (a *Root[T]) SetID(id T) { a.id = id }

// ID returns the aggregate identity
func (a *Root[T]) ID() T { return a.id }

// StringID returns the string form of the aggregate identity
func (a *Root[T]) StringID() string { return a.id.String() }

// Version returns the version the aggregate had when it was rehydrated,
// which is the expected version used for the optimistic concurrency check
// when its uncommitted events are appended
func (a *Root[T]) Version() int { return a.version }

// Events returns uncommitted domain events produced by Apply
func (a *Root[T]) Events() []Event {
	if a.domainEvents == nil {
		return []Event{}
	}

	return a.domainEvents
}

// Apply folds the events onto the aggregate (calling the respective On{Event}
// handlers) and records them as uncommitted so the store can append them.
//
// For an event of type SomethingImportantHappened the aggregate needs
// to implement:
//
//	func (a *SomeAggregate) OnSomethingImportantHappened(e SomethingImportantHappened)
func (a *Root[T]) Apply(events ...any) {
	if !a.ptr.IsValid() {
		panic(ErrAggregateRootNotRehydrated)
	}

	for _, evt := range events {
		a.mutate(evt)

		a.domainEvents = append(a.domainEvents, Event{
			ID:         newEventID(),
			E:          evt,
			OccurredOn: time.Now().UTC(),
		})
	}
}

func (a *Root[T]) mutate(evt any) {
	ev := reflect.TypeOf(evt)

	h := a.ptr.MethodByName(fmt.Sprintf("On%s", ev.Name()))

	if !h.IsValid() {
		panic(ErrMissingAggregateEventHandler)
	}

	h.Call([]reflect.Value{
		reflect.ValueOf(evt),
	})
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}

	return id.String()
}
