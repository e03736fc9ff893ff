package app

import (
	"context"
	"errors"

	"github.com/aneshas/closebook/readmodel"
)

// LineView is the plain-data form of one entry line
type LineView struct {
	No          int
	Side        string
	Account     string
	Amount      int64
	Currency    string
	Tax         string
	Description string
}

// EntryView is the plain-data form of one journal entry as served by the
// query service - never a domain entity
type EntryView struct {
	EntryID         string
	VoucherNo       string
	EntryNo         string
	Status          string
	TransactionDate string
	Currency        string
	DebitTotal      int64
	CreditTotal     int64
	Lines           []LineView
	ReversalOf      string
	ReplacementOf   string
	ReversedBy      string
	CorrectedBy     string
	CreatedBy       string
}

// BalanceView is one trial balance account row
type BalanceView struct {
	Account     string
	Currency    string
	DebitTotal  int64
	CreditTotal int64
	Net         int64
}

// ListEntriesQuery filters the entry list
type ListEntriesQuery struct {
	Status string
	Limit  int
	Offset int
}

// NewQueries constructs the query service
func NewQueries(entries *readmodel.EntryList, balances *readmodel.TrialBalance) *Queries {
	return &Queries{
		entries:  entries,
		balances: balances,
	}
}

// Queries is the read-only facade over the projection stores. It is
// stateless between calls and never opens a transaction against the
// event log.
type Queries struct {
	entries  *readmodel.EntryList
	balances *readmodel.TrialBalance
}

// Entry returns a single journal entry view
func (q *Queries) Entry(ctx context.Context, entryID string) (*EntryView, error) {
	row, err := q.entries.ByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, readmodel.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return toEntryView(row)
}

// Entries lists journal entries, optionally filtered by status
func (q *Queries) Entries(ctx context.Context, query ListEntriesQuery) ([]EntryView, error) {
	rows, err := q.entries.List(ctx, query.Status, query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}

	views := make([]EntryView, len(rows))

	for i := range rows {
		view, err := toEntryView(&rows[i])
		if err != nil {
			return nil, err
		}

		views[i] = *view
	}

	return views, nil
}

// TrialBalance returns every account's posted debit/credit totals
func (q *Queries) TrialBalance(ctx context.Context) ([]BalanceView, error) {
	rows, err := q.balances.Balances(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]BalanceView, len(rows))

	for i, row := range rows {
		views[i] = BalanceView{
			Account:     row.Account,
			Currency:    row.Currency,
			DebitTotal:  row.DebitTotal,
			CreditTotal: row.CreditTotal,
			Net:         row.Net(),
		}
	}

	return views, nil
}

func toEntryView(row *readmodel.EntryRow) (*EntryView, error) {
	lines, err := row.LineRows()
	if err != nil {
		return nil, err
	}

	view := EntryView{
		EntryID:         row.EntryID,
		VoucherNo:       row.VoucherNo,
		EntryNo:         row.EntryNo,
		Status:          row.Status,
		TransactionDate: row.TransactionDate,
		Currency:        row.Currency,
		DebitTotal:      row.DebitTotal,
		CreditTotal:     row.CreditTotal,
		ReversalOf:      row.ReversalOf,
		ReplacementOf:   row.ReplacementOf,
		ReversedBy:      row.ReversedBy,
		CorrectedBy:     row.CorrectedBy,
		CreatedBy:       row.CreatedBy,
	}

	for _, l := range lines {
		view.Lines = append(view.Lines, LineView{
			No:          l.No,
			Side:        l.Side,
			Account:     l.Account,
			Amount:      l.Amount,
			Currency:    l.Currency,
			Tax:         l.Tax,
			Description: l.Description,
		})
	}

	return &view, nil
}
