// Package readmodel holds the query-optimized projections derived from the
// event log. Every read model is disposable - truncating it and replaying
// the log regenerates it exactly - and is written to by its own projection
// applier only. Queries never touch the event log.
package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/ledger"
	"github.com/aneshas/closebook/projection"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates the requested record does not exist in the read model
var ErrNotFound = errors.New("record not found")

// EntryListID is the registered projection id of the entry list
const EntryListID = "journal_entry_list"

// EntryRow is one denormalized journal entry as the list/detail
// queries want it
type EntryRow struct {
	EntryID         string `gorm:"primaryKey"`
	VoucherNo       string
	EntryNo         string
	Status          string `gorm:"index"`
	TransactionDate string
	Currency        string
	DebitTotal      int64
	CreditTotal     int64
	Lines           string // json line snapshot
	ReversalOf      string
	ReplacementOf   string
	ReversedBy      string
	CorrectedBy     string
	CreatedBy       string
	UpdatedAt       time.Time
}

// TableName returns the gorm table name
func (EntryRow) TableName() string { return "journal_entry_list" }

// LineRows decodes the line snapshot
func (r *EntryRow) LineRows() ([]ledger.LineData, error) {
	var lines []ledger.LineData

	if r.Lines == "" {
		return lines, nil
	}

	return lines, json.Unmarshal([]byte(r.Lines), &lines)
}

// NewEntryList constructs the journal entry list read model
func NewEntryList(db *gorm.DB) (*EntryList, error) {
	return &EntryList{db: db}, db.AutoMigrate(&EntryRow{})
}

// EntryList maintains one row per journal entry, folded from the entry's
// lifecycle events, and serves the list/detail queries
type EntryList struct {
	db *gorm.DB
}

// Projection returns the applier registered with the projector
func (l *EntryList) Projection() projection.Projection {
	return projection.Projection{
		ID:       EntryListID,
		Apply:    l.apply,
		Truncate: l.truncate,
	}
}

func (l *EntryList) truncate(ctx context.Context, tx *gorm.DB) error {
	return tx.WithContext(ctx).Where("1 = 1").Delete(&EntryRow{}).Error
}

func (l *EntryList) apply(ctx context.Context, tx *gorm.DB, evt eventstore.StoredEvent) error {
	tx = tx.WithContext(ctx)

	switch e := evt.Event.(type) {
	case ledger.JournalEntryDrafted:
		return l.insert(tx, EntryRow{
			EntryID:         e.EntryID,
			VoucherNo:       e.VoucherNo,
			Status:          string(ledger.StatusDraft),
			TransactionDate: e.TransactionDate,
			CreatedBy:       e.CreatedBy,
		}, e.Lines)

	case ledger.DraftUpdated:
		return l.updateLines(tx, e.EntryID, e.Lines)

	case ledger.DraftDeleted:
		return tx.Where("entry_id = ?", e.EntryID).Delete(&EntryRow{}).Error

	case ledger.ApprovalRequested:
		return l.setStatus(tx, e.EntryID, ledger.StatusPendingApproval, nil)

	case ledger.ApprovalRejected:
		return l.setStatus(tx, e.EntryID, ledger.StatusDraft, nil)

	case ledger.JournalEntryPosted:
		return l.setStatus(tx, e.EntryID, ledger.StatusPosted, map[string]any{
			"entry_no": e.EntryNo,
		})

	case ledger.ReversalEntryCreated:
		return l.insert(tx, EntryRow{
			EntryID:         e.EntryID,
			VoucherNo:       e.VoucherNo,
			Status:          string(ledger.StatusPosted),
			TransactionDate: e.TransactionDate,
			ReversalOf:      e.ReversesEntryID,
			CreatedBy:       e.CreatedBy,
		}, e.Lines)

	case ledger.JournalEntryReversed:
		return l.setStatus(tx, e.EntryID, ledger.StatusReversed, map[string]any{
			"reversed_by": e.ReversalEntryID,
		})

	case ledger.ReplacementEntryCreated:
		return l.insert(tx, EntryRow{
			EntryID:         e.EntryID,
			VoucherNo:       e.VoucherNo,
			Status:          string(ledger.StatusPosted),
			TransactionDate: e.TransactionDate,
			ReplacementOf:   e.ReplacesEntryID,
			CreatedBy:       e.CreatedBy,
		}, e.Lines)

	case ledger.JournalEntryCorrected:
		return l.setStatus(tx, e.EntryID, ledger.StatusCorrected, map[string]any{
			"corrected_by": e.ReplacementEntryID,
		})

	case ledger.JournalEntryClosed:
		return l.setStatus(tx, e.EntryID, ledger.StatusClosed, nil)
	}

	// other event types don't concern this projection
	return nil
}

func (l *EntryList) insert(tx *gorm.DB, row EntryRow, lines []ledger.LineData) error {
	if err := encodeLines(&row, lines); err != nil {
		return err
	}

	// upsert keeps replays idempotent
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (l *EntryList) updateLines(tx *gorm.DB, entryID string, lines []ledger.LineData) error {
	var row EntryRow

	if err := encodeLines(&row, lines); err != nil {
		return err
	}

	return tx.Model(&EntryRow{}).
		Where("entry_id = ?", entryID).
		Updates(map[string]any{
			"lines":        row.Lines,
			"currency":     row.Currency,
			"debit_total":  row.DebitTotal,
			"credit_total": row.CreditTotal,
		}).Error
}

func (l *EntryList) setStatus(tx *gorm.DB, entryID string, status ledger.Status, extra map[string]any) error {
	updates := map[string]any{"status": string(status)}

	for k, v := range extra {
		updates[k] = v
	}

	return tx.Model(&EntryRow{}).
		Where("entry_id = ?", entryID).
		Updates(updates).Error
}

func encodeLines(row *EntryRow, lines []ledger.LineData) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}

	row.Lines = string(data)

	for _, l := range lines {
		row.Currency = l.Currency

		switch ledger.Side(l.Side) {
		case ledger.Debit:
			row.DebitTotal += l.Amount
		case ledger.Credit:
			row.CreditTotal += l.Amount
		}
	}

	return nil
}

// ByID returns a single entry or ErrNotFound
func (l *EntryList) ByID(ctx context.Context, entryID string) (*EntryRow, error) {
	var row EntryRow

	res := l.db.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return &row, nil
}

// List returns entries, optionally filtered by status, newest first
func (l *EntryList) List(ctx context.Context, status string, limit, offset int) ([]EntryRow, error) {
	var rows []EntryRow

	q := l.db.WithContext(ctx).Order("transaction_date desc, entry_id desc")

	if status != "" {
		q = q.Where("status = ?", status)
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	return rows, q.Find(&rows).Error
}
