// Package app is the use-case layer: plain-data requests come in, domain
// types exist only inside, plain-data views go out. Command handlers
// orchestrate rehydration, invariant checks, the append and the synchronous
// projection dispatch; the query service reads exclusively from the
// read models.
package app

import (
	"fmt"
	"time"

	"github.com/aneshas/closebook/ledger"
)

// LineRequest is the wire form of one journal entry line
type LineRequest struct {
	No          int    `json:"no"`
	Side        string `json:"side"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Tax         string `json:"tax,omitempty"`
	Description string `json:"description,omitempty"`
}

// RegisterEntryRequest creates a new draft journal entry
type RegisterEntryRequest struct {
	VoucherNo       string
	TransactionDate string
	Lines           []LineRequest
	RegisteredBy    string
}

// UpdateDraftRequest replaces a draft's lines
type UpdateDraftRequest struct {
	EntryID   string
	Lines     []LineRequest
	UpdatedBy string
}

// DeleteDraftRequest removes a draft
type DeleteDraftRequest struct {
	EntryID   string
	DeletedBy string
}

// SubmitForApprovalRequest queues a draft for approval
type SubmitForApprovalRequest struct {
	EntryID     string
	RequestedBy string
}

// RejectEntryRequest sends a pending entry back to draft
type RejectEntryRequest struct {
	EntryID    string
	Reason     string
	RejectedBy string
}

// PostEntryRequest books an entry into the ledger (direct posting from draft
// or approval of a pending entry)
type PostEntryRequest struct {
	EntryID  string
	EntryNo  string
	PostedBy string
}

// ReverseEntryRequest creates a reversal entry for a posted original and
// marks the original reversed
type ReverseEntryRequest struct {
	EntryID         string
	VoucherNo       string
	TransactionDate string
	Reason          string
	RequestedBy     string
}

// CorrectEntryRequest replaces a posted entry's lines by creating a
// replacement entry and marking the original corrected
type CorrectEntryRequest struct {
	EntryID         string
	VoucherNo       string
	TransactionDate string
	Lines           []LineRequest
	Reason          string
	RequestedBy     string
}

// CloseEntryRequest locks a posted entry for the closed period
type CloseEntryRequest struct {
	EntryID  string
	ClosedBy string
}

const dateLayout = "2006-01-02"

func toLines(reqs []LineRequest) ([]ledger.Line, error) {
	lines := make([]ledger.Line, len(reqs))

	for i, r := range reqs {
		side := ledger.Side(r.Side)

		if side != ledger.Debit && side != ledger.Credit {
			return nil, fmt.Errorf("%w: line %d: side must be %q or %q", ErrValidation, r.No, ledger.Debit, ledger.Credit)
		}

		tax := ledger.TaxCode(r.Tax)

		switch tax {
		case ledger.TaxStandard, ledger.TaxExempt, ledger.TaxOutOfScope:
		case "":
			tax = ledger.TaxOutOfScope
		default:
			return nil, fmt.Errorf("%w: line %d: unknown tax code %q", ErrValidation, r.No, r.Tax)
		}

		lines[i] = ledger.Line{
			No:          r.No,
			Side:        side,
			Account:     r.Account,
			Amount:      r.Amount,
			Currency:    r.Currency,
			Tax:         tax,
			Description: r.Description,
		}
	}

	return lines, nil
}

func parseDate(date string) (string, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("%w: transaction date must be YYYY-MM-DD: %q", ErrValidation, date)
	}

	return date, nil
}

func parseEntryID(id string) (ledger.EntryID, error) {
	parsed, err := ledger.ParseEntryID(id)
	if err != nil {
		return ledger.EntryID{}, fmt.Errorf("%w: malformed entry id %q", ErrValidation, id)
	}

	return parsed, nil
}
