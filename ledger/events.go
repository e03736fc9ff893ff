package ledger

// Domain events for the journal entry stream. These are the persisted facts -
// field changes here are event schema changes and need to stay backward
// compatible with whatever is already in the log.

// JournalEntryDrafted records the creation of a new draft entry together
// with its full (already balanced) line set
type JournalEntryDrafted struct {
	EntryID         string     `json:"entry_id"`
	VoucherNo       string     `json:"voucher_no"`
	TransactionDate string     `json:"transaction_date"`
	Lines           []LineData `json:"lines"`
	CreatedBy       string     `json:"created_by"`
}

// DraftUpdated records a full line-set replacement on a draft
type DraftUpdated struct {
	EntryID   string     `json:"entry_id"`
	Lines     []LineData `json:"lines"`
	UpdatedBy string     `json:"updated_by"`
}

// DraftDeleted terminally removes a draft from the working set
type DraftDeleted struct {
	EntryID   string `json:"entry_id"`
	DeletedBy string `json:"deleted_by"`
}

// ApprovalRequested moves a draft into the approval queue
type ApprovalRequested struct {
	EntryID     string `json:"entry_id"`
	RequestedBy string `json:"requested_by"`
}

// ApprovalRejected sends a pending entry back to draft
type ApprovalRejected struct {
	EntryID    string `json:"entry_id"`
	Reason     string `json:"reason"`
	RejectedBy string `json:"rejected_by"`
}

// JournalEntryPosted books the entry into the ledger. It carries a snapshot
// of the lines and totals so ledger projections can fold it without looking
// anything else up.
type JournalEntryPosted struct {
	EntryID     string     `json:"entry_id"`
	EntryNo     string     `json:"entry_no"`
	Lines       []LineData `json:"lines"`
	DebitTotal  int64      `json:"debit_total"`
	CreditTotal int64      `json:"credit_total"`
	Currency    string     `json:"currency"`
	PostedBy    string     `json:"posted_by"`
}

// ReversalEntryCreated starts the stream of a reversal entry - born posted,
// with the original entry's lines inverted
type ReversalEntryCreated struct {
	EntryID         string     `json:"entry_id"`
	ReversesEntryID string     `json:"reverses_entry_id"`
	VoucherNo       string     `json:"voucher_no"`
	TransactionDate string     `json:"transaction_date"`
	Lines           []LineData `json:"lines"`
	CreatedBy       string     `json:"created_by"`
}

// JournalEntryReversed marks the original entry reversed, referencing the
// reversal entry that offsets it
type JournalEntryReversed struct {
	EntryID         string `json:"entry_id"`
	ReversalEntryID string `json:"reversal_entry_id"`
	Reason          string `json:"reason"`
	ReversedBy      string `json:"reversed_by"`
}

// ReplacementEntryCreated starts the stream of a replacement entry created by
// a correction - born posted, with the corrected line set
type ReplacementEntryCreated struct {
	EntryID         string     `json:"entry_id"`
	ReplacesEntryID string     `json:"replaces_entry_id"`
	VoucherNo       string     `json:"voucher_no"`
	TransactionDate string     `json:"transaction_date"`
	Lines           []LineData `json:"lines"`
	CreatedBy       string     `json:"created_by"`
}

// JournalEntryCorrected marks the original entry corrected, referencing the
// replacement entry carrying the corrected lines
type JournalEntryCorrected struct {
	EntryID            string `json:"entry_id"`
	ReplacementEntryID string `json:"replacement_entry_id"`
	Reason             string `json:"reason"`
	CorrectedBy        string `json:"corrected_by"`
}

// JournalEntryClosed locks a posted entry for the closed period - no further
// reversal or correction is possible
type JournalEntryClosed struct {
	EntryID  string `json:"entry_id"`
	ClosedBy string `json:"closed_by"`
}

// Events lists every journal entry event type for encoder registration
func Events() []any {
	return []any{
		JournalEntryDrafted{},
		DraftUpdated{},
		DraftDeleted{},
		ApprovalRequested{},
		ApprovalRejected{},
		JournalEntryPosted{},
		ReversalEntryCreated{},
		JournalEntryReversed{},
		ReplacementEntryCreated{},
		JournalEntryCorrected{},
		JournalEntryClosed{},
	}
}
