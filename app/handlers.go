package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aneshas/closebook/aggregate"
	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/ledger"
	"github.com/aneshas/closebook/metrics"
	"github.com/aneshas/closebook/projection"
)

// Result reports a successfully handled command: the id of the affected
// entry and its stream version after the append
type Result struct {
	EntryID string
	Version int
}

// ReversalResult reports a handled reversal - the original entry and the
// newly created reversal entry
type ReversalResult struct {
	OriginalEntryID string
	ReversalEntryID string
}

// CorrectionResult reports a handled correction - the original entry and the
// newly created replacement entry
type CorrectionResult struct {
	OriginalEntryID    string
	ReplacementEntryID string
}

// HandlerOpt configures the handlers
type HandlerOpt func(*Handlers)

// WithConflictRetries bounds how often a command is re-run after losing the
// optimistic concurrency race before the conflict becomes terminal
func WithConflictRetries(n int) HandlerOpt {
	return func(h *Handlers) {
		h.retries = n
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) HandlerOpt {
	return func(h *Handlers) {
		h.log = log
	}
}

// WithMetrics wires the prometheus collectors
func WithMetrics(m *metrics.Ledger) HandlerOpt {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// NewHandlers constructs the command handlers
func NewHandlers(es aggregate.EventStore, projector *projection.Projector, opts ...HandlerOpt) *Handlers {
	h := Handlers{
		store:     aggregate.NewStore[*ledger.JournalEntry](es),
		projector: projector,
		log:       slog.Default(),
		retries:   aggregate.DefaultConflictRetries,
	}

	for _, opt := range opts {
		opt(&h)
	}

	return &h
}

// Handlers orchestrates every state-changing use case: convert the plain
// request to domain types, rehydrate, run the aggregate operation (which in
// turn runs the invariant rules), append the produced events under the
// optimistic concurrency check and dispatch them to the projections
// synchronously. A command either fully succeeds (events durable,
// projections current or marked stale) or fully fails with nothing written.
type Handlers struct {
	store     *aggregate.Store[*ledger.JournalEntry]
	projector *projection.Projector
	log       *slog.Logger
	metrics   *metrics.Ledger
	retries   int
}

// RegisterEntry creates a new draft journal entry
func (h *Handlers) RegisterEntry(ctx context.Context, req RegisterEntryRequest) (*Result, error) {
	lines, err := toLines(req.Lines)
	if err != nil {
		return nil, err
	}

	date, err := parseDate(req.TransactionDate)
	if err != nil {
		return nil, err
	}

	entry, err := ledger.New(ledger.NewEntryID(), req.VoucherNo, date, lines, req.RegisteredBy)
	if err != nil {
		return nil, err
	}

	return h.save(ctx, entry)
}

// UpdateDraft replaces a draft's lines
func (h *Handlers) UpdateDraft(ctx context.Context, req UpdateDraftRequest) (*Result, error) {
	lines, err := toLines(req.Lines)
	if err != nil {
		return nil, err
	}

	return h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.UpdateDraft(lines, req.UpdatedBy)
	})
}

// DeleteDraft removes a draft before it was ever posted
func (h *Handlers) DeleteDraft(ctx context.Context, req DeleteDraftRequest) (*Result, error) {
	return h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.DeleteDraft(req.DeletedBy)
	})
}

// SubmitForApproval queues a draft for approval
func (h *Handlers) SubmitForApproval(ctx context.Context, req SubmitForApprovalRequest) (*Result, error) {
	return h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.SubmitForApproval(req.RequestedBy)
	})
}

// RejectEntry sends a pending entry back to draft
func (h *Handlers) RejectEntry(ctx context.Context, req RejectEntryRequest) (*Result, error) {
	return h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.Reject(req.Reason, req.RejectedBy)
	})
}

// PostEntry books an entry into the ledger
func (h *Handlers) PostEntry(ctx context.Context, req PostEntryRequest) (*Result, error) {
	return h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.Post(req.EntryNo, req.PostedBy)
	})
}

// CloseEntry locks a posted entry for the closed period
func (h *Handlers) CloseEntry(ctx context.Context, req CloseEntryRequest) (*Result, error) {
	return h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.Close(req.ClosedBy)
	})
}

// ReverseEntry creates the reversal entry (inverted lines, on its own
// stream) and then marks the original reversed. The two appends are separate
// streams - if marking the original fails the reversal entry stays posted
// and the command surfaces the error.
func (h *Handlers) ReverseEntry(ctx context.Context, req ReverseEntryRequest) (*ReversalResult, error) {
	if _, err := parseEntryID(req.EntryID); err != nil {
		return nil, err
	}

	date, err := parseDate(req.TransactionDate)
	if err != nil {
		return nil, err
	}

	var original ledger.JournalEntry

	if err := h.store.ByID(ctx, req.EntryID, &original); err != nil {
		return nil, h.classify(err)
	}

	reversal, err := ledger.NewReversal(ledger.NewEntryID(), &original, req.VoucherNo, date, req.RequestedBy)
	if err != nil {
		return nil, err
	}

	if _, err := h.save(ctx, reversal); err != nil {
		return nil, err
	}

	_, err = h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.MarkReversed(reversal.StringID(), req.Reason, req.RequestedBy)
	})
	if err != nil {
		return nil, err
	}

	return &ReversalResult{
		OriginalEntryID: req.EntryID,
		ReversalEntryID: reversal.StringID(),
	}, nil
}

// CorrectEntry validates the corrected lines, creates the replacement entry
// on its own stream and marks the original corrected
func (h *Handlers) CorrectEntry(ctx context.Context, req CorrectEntryRequest) (*CorrectionResult, error) {
	if _, err := parseEntryID(req.EntryID); err != nil {
		return nil, err
	}

	lines, err := toLines(req.Lines)
	if err != nil {
		return nil, err
	}

	date, err := parseDate(req.TransactionDate)
	if err != nil {
		return nil, err
	}

	var original ledger.JournalEntry

	if err := h.store.ByID(ctx, req.EntryID, &original); err != nil {
		return nil, h.classify(err)
	}

	replacement, err := ledger.NewReplacement(ledger.NewEntryID(), &original, lines, req.VoucherNo, date, req.RequestedBy)
	if err != nil {
		return nil, err
	}

	if _, err := h.save(ctx, replacement); err != nil {
		return nil, err
	}

	_, err = h.exec(ctx, req.EntryID, func(e *ledger.JournalEntry) error {
		return e.MarkCorrected(replacement.StringID(), req.Reason, req.RequestedBy)
	})
	if err != nil {
		return nil, err
	}

	return &CorrectionResult{
		OriginalEntryID:    req.EntryID,
		ReplacementEntryID: replacement.StringID(),
	}, nil
}

// save appends a freshly created aggregate's events and dispatches them
func (h *Handlers) save(ctx context.Context, entry *ledger.JournalEntry) (*Result, error) {
	stored, err := h.store.Save(ctx, entry)
	if err != nil {
		return nil, h.classify(err)
	}

	return h.acknowledge(ctx, stored), nil
}

// exec runs a command against an existing aggregate with bounded conflict
// retries and dispatches the resulting events
func (h *Handlers) exec(ctx context.Context, entryID string, cmd func(*ledger.JournalEntry) error) (*Result, error) {
	if _, err := parseEntryID(entryID); err != nil {
		return nil, err
	}

	stored, err := aggregate.Exec(
		ctx, h.store, entryID, h.retries,
		func() *ledger.JournalEntry { return &ledger.JournalEntry{} },
		cmd,
	)
	if err != nil {
		return nil, h.classify(err)
	}

	return h.acknowledge(ctx, stored), nil
}

// acknowledge counts the durable events and applies them to every
// registered projection in the same logical unit of work. A projection
// failure is reported and the projection marked stale - but the command has
// already succeeded, the log is the source of truth.
func (h *Handlers) acknowledge(ctx context.Context, stored []eventstore.StoredEvent) *Result {
	if h.metrics != nil {
		h.metrics.EventsAppended.Add(float64(len(stored)))
	}

	if err := h.projector.Dispatch(ctx, stored); err != nil {
		var stale *projection.StaleError

		if errors.As(err, &stale) {
			h.log.Warn("event committed but projections lag behind",
				"stale", stale.Projections,
				"err", err,
			)
		} else {
			h.log.Error("projection dispatch failed", "err", err)
		}
	}

	res := Result{}

	if len(stored) > 0 {
		last := stored[len(stored)-1]

		res.EntryID = last.StreamID
		res.Version = last.StreamVersion
	}

	return &res
}

func (h *Handlers) classify(err error) error {
	if errors.Is(err, aggregate.ErrAggregateNotFound) {
		return ErrNotFound
	}

	if errors.Is(err, eventstore.ErrConcurrencyCheckFailed) {
		if h.metrics != nil {
			h.metrics.AppendConflicts.Inc()
		}

		if c, ok := eventstore.AsConflict(err); ok {
			return fmt.Errorf("concurrent update detected (stream at version %d): %w", c.Actual, err)
		}
	}

	return err
}
