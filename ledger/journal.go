package ledger

import (
	"github.com/aneshas/closebook/aggregate"
)

// JournalEntry is the journal entry aggregate. It is never persisted
// directly - it is rehydrated by folding its event stream and mutated only
// through Apply, so its state is always the cumulative effect of the stream.
type JournalEntry struct {
	aggregate.Root[EntryID]

	Status          Status
	VoucherNo       string
	EntryNo         string
	TransactionDate string
	Lines           []Line
	History         []Transition

	// ReversalOf / ReplacementOf are set on entries born from a reversal or
	// correction; ReversedBy / CorrectedBy point the other way from the
	// original entry.
	ReversalOf    string
	ReplacementOf string
	ReversedBy    string
	CorrectedBy   string
}

// New creates a new draft journal entry. The line rules and the debit/credit
// balance are validated first - on failure no event is produced at all.
func New(id EntryID, voucherNo, transactionDate string, lines []Line, createdBy string) (*JournalEntry, error) {
	if err := ValidateLines(lines); err != nil {
		return nil, err
	}

	if err := ValidateBalance(lines); err != nil {
		return nil, err
	}

	var e JournalEntry

	e.Rehydrate(&e)

	e.Apply(
		JournalEntryDrafted{
			EntryID:         id.String(),
			VoucherNo:       voucherNo,
			TransactionDate: transactionDate,
			Lines:           linesToData(lines),
			CreatedBy:       createdBy,
		},
	)

	return &e, nil
}

// NewReversal creates the reversal entry for a posted original: a new entry
// on its own stream, born posted, with every original line's debit/credit
// designator inverted. The original itself is marked via MarkReversed.
func NewReversal(id EntryID, original *JournalEntry, voucherNo, transactionDate, createdBy string) (*JournalEntry, error) {
	if !original.Status.IsPosted() {
		return nil, ErrNotReversible
	}

	lines := ReversalLines(original.Lines)

	if err := ValidateBalance(lines); err != nil {
		return nil, err
	}

	var e JournalEntry

	e.Rehydrate(&e)

	e.Apply(
		ReversalEntryCreated{
			EntryID:         id.String(),
			ReversesEntryID: original.StringID(),
			VoucherNo:       voucherNo,
			TransactionDate: transactionDate,
			Lines:           linesToData(lines),
			CreatedBy:       createdBy,
		},
	)

	return &e, nil
}

// NewReplacement creates the replacement entry carrying a correction's line
// set. ValidateCorrection must have accepted the correction beforehand; the
// corrected lines are validated here again since this constructor is the last
// gate before events exist.
func NewReplacement(id EntryID, original *JournalEntry, correctedLines []Line, voucherNo, transactionDate, createdBy string) (*JournalEntry, error) {
	if err := ValidateCorrection(original.Status, correctedLines); err != nil {
		return nil, err
	}

	var e JournalEntry

	e.Rehydrate(&e)

	e.Apply(
		ReplacementEntryCreated{
			EntryID:         id.String(),
			ReplacesEntryID: original.StringID(),
			VoucherNo:       voucherNo,
			TransactionDate: transactionDate,
			Lines:           linesToData(correctedLines),
			CreatedBy:       createdBy,
		},
	)

	return &e, nil
}

// UpdateDraft replaces the line set of a draft, revalidating balance
func (e *JournalEntry) UpdateDraft(lines []Line, updatedBy string) error {
	if !e.Status.IsEditable() {
		return ErrInvalidStatusTransition
	}

	if err := ValidateLines(lines); err != nil {
		return err
	}

	if err := ValidateBalance(lines); err != nil {
		return err
	}

	e.Apply(
		DraftUpdated{
			EntryID:   e.StringID(),
			Lines:     linesToData(lines),
			UpdatedBy: updatedBy,
		},
	)

	return nil
}

// DeleteDraft removes a draft before it was ever posted
func (e *JournalEntry) DeleteDraft(deletedBy string) error {
	if !e.Status.CanTransitionTo(StatusDeleted) {
		return ErrInvalidStatusTransition
	}

	e.Apply(
		DraftDeleted{
			EntryID:   e.StringID(),
			DeletedBy: deletedBy,
		},
	)

	return nil
}

// SubmitForApproval queues a draft for approval
func (e *JournalEntry) SubmitForApproval(requestedBy string) error {
	if !e.Status.CanTransitionTo(StatusPendingApproval) {
		return ErrInvalidStatusTransition
	}

	e.Apply(
		ApprovalRequested{
			EntryID:     e.StringID(),
			RequestedBy: requestedBy,
		},
	)

	return nil
}

// Reject sends a pending entry back to draft
func (e *JournalEntry) Reject(reason, rejectedBy string) error {
	if e.Status != StatusPendingApproval {
		return ErrInvalidStatusTransition
	}

	e.Apply(
		ApprovalRejected{
			EntryID:    e.StringID(),
			Reason:     reason,
			RejectedBy: rejectedBy,
		},
	)

	return nil
}

// Post books the entry into the ledger under the assigned entry number.
// Allowed from Draft (direct posting) and from PendingApproval (approval).
// The balance is re-checked right before the posting event is built - the
// invariant engine is the single authority barring unbalanced entries from
// the log.
func (e *JournalEntry) Post(entryNo, postedBy string) error {
	if !e.Status.CanTransitionTo(StatusPosted) {
		return ErrInvalidStatusTransition
	}

	if err := ValidateBalance(e.Lines); err != nil {
		return err
	}

	debit, credit := Totals(e.Lines)

	e.Apply(
		JournalEntryPosted{
			EntryID:     e.StringID(),
			EntryNo:     entryNo,
			Lines:       linesToData(e.Lines),
			DebitTotal:  debit,
			CreditTotal: credit,
			Currency:    e.Lines[0].Currency,
			PostedBy:    postedBy,
		},
	)

	return nil
}

// MarkReversed records that the entry has been offset by the reversal entry
func (e *JournalEntry) MarkReversed(reversalEntryID, reason, reversedBy string) error {
	if !e.Status.IsPosted() {
		return ErrNotReversible
	}

	e.Apply(
		JournalEntryReversed{
			EntryID:         e.StringID(),
			ReversalEntryID: reversalEntryID,
			Reason:          reason,
			ReversedBy:      reversedBy,
		},
	)

	return nil
}

// MarkCorrected records that the entry has been superseded by the
// replacement entry
func (e *JournalEntry) MarkCorrected(replacementEntryID, reason, correctedBy string) error {
	if e.Status != StatusPosted {
		return ErrNotCorrectable
	}

	e.Apply(
		JournalEntryCorrected{
			EntryID:            e.StringID(),
			ReplacementEntryID: replacementEntryID,
			Reason:             reason,
			CorrectedBy:        correctedBy,
		},
	)

	return nil
}

// Close locks a posted entry for the closed period
func (e *JournalEntry) Close(closedBy string) error {
	if !e.Status.CanTransitionTo(StatusClosed) {
		return ErrInvalidStatusTransition
	}

	e.Apply(
		JournalEntryClosed{
			EntryID:  e.StringID(),
			ClosedBy: closedBy,
		},
	)

	return nil
}

func (e *JournalEntry) record(to Status, by, reason string) {
	e.History = append(e.History, Transition{
		From:   e.Status,
		To:     to,
		By:     by,
		Reason: reason,
	})

	e.Status = to
}

// OnJournalEntryDrafted handler
func (e *JournalEntry) OnJournalEntryDrafted(evt JournalEntryDrafted) {
	e.SetID(mustParseEntryID(evt.EntryID))

	e.VoucherNo = evt.VoucherNo
	e.TransactionDate = evt.TransactionDate
	e.Lines = linesFromData(evt.Lines)

	e.record(StatusDraft, evt.CreatedBy, "")
}

// OnDraftUpdated handler
func (e *JournalEntry) OnDraftUpdated(evt DraftUpdated) {
	e.Lines = linesFromData(evt.Lines)

	e.record(StatusDraft, evt.UpdatedBy, "")
}

// OnDraftDeleted handler
func (e *JournalEntry) OnDraftDeleted(evt DraftDeleted) {
	e.record(StatusDeleted, evt.DeletedBy, "")
}

// OnApprovalRequested handler
func (e *JournalEntry) OnApprovalRequested(evt ApprovalRequested) {
	e.record(StatusPendingApproval, evt.RequestedBy, "")
}

// OnApprovalRejected handler
func (e *JournalEntry) OnApprovalRejected(evt ApprovalRejected) {
	e.record(StatusDraft, evt.RejectedBy, evt.Reason)
}

// OnJournalEntryPosted handler
func (e *JournalEntry) OnJournalEntryPosted(evt JournalEntryPosted) {
	e.EntryNo = evt.EntryNo
	e.Lines = linesFromData(evt.Lines)

	e.record(StatusPosted, evt.PostedBy, "")
}

// OnReversalEntryCreated handler
func (e *JournalEntry) OnReversalEntryCreated(evt ReversalEntryCreated) {
	e.SetID(mustParseEntryID(evt.EntryID))

	e.VoucherNo = evt.VoucherNo
	e.TransactionDate = evt.TransactionDate
	e.Lines = linesFromData(evt.Lines)
	e.ReversalOf = evt.ReversesEntryID

	e.record(StatusPosted, evt.CreatedBy, "")
}

// OnJournalEntryReversed handler
func (e *JournalEntry) OnJournalEntryReversed(evt JournalEntryReversed) {
	e.ReversedBy = evt.ReversalEntryID

	e.record(StatusReversed, evt.ReversedBy, evt.Reason)
}

// OnReplacementEntryCreated handler
func (e *JournalEntry) OnReplacementEntryCreated(evt ReplacementEntryCreated) {
	e.SetID(mustParseEntryID(evt.EntryID))

	e.VoucherNo = evt.VoucherNo
	e.TransactionDate = evt.TransactionDate
	e.Lines = linesFromData(evt.Lines)
	e.ReplacementOf = evt.ReplacesEntryID

	e.record(StatusPosted, evt.CreatedBy, "")
}

// OnJournalEntryCorrected handler
func (e *JournalEntry) OnJournalEntryCorrected(evt JournalEntryCorrected) {
	e.CorrectedBy = evt.ReplacementEntryID

	e.record(StatusCorrected, evt.CorrectedBy, evt.Reason)
}

// OnJournalEntryClosed handler
func (e *JournalEntry) OnJournalEntryClosed(evt JournalEntryClosed) {
	e.record(StatusClosed, evt.ClosedBy, "")
}

func mustParseEntryID(id string) EntryID {
	parsed, err := ParseEntryID(id)
	if err != nil {
		panic(err)
	}

	return parsed
}
