package readmodel

import (
	"context"

	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/ledger"
	"github.com/aneshas/closebook/projection"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrialBalanceID is the registered projection id of the trial balance
const TrialBalanceID = "trial_balance"

// BalanceRow accumulates the posted debit and credit totals of one account
type BalanceRow struct {
	Account     string `gorm:"primaryKey"`
	Currency    string
	DebitTotal  int64
	CreditTotal int64
}

// TableName returns the gorm table name
func (BalanceRow) TableName() string { return "trial_balance" }

// Net returns the account's net balance (debits minus credits)
func (r BalanceRow) Net() int64 { return r.DebitTotal - r.CreditTotal }

// NewTrialBalance constructs the trial balance read model
func NewTrialBalance(db *gorm.DB) (*TrialBalance, error) {
	return &TrialBalance{db: db}, db.AutoMigrate(&BalanceRow{})
}

// TrialBalance folds posted ledger activity into per-account debit/credit
// totals. Only events that actually book lines move the balance: direct
// postings, reversal entries and replacement entries (all of which carry
// their line snapshot). A reversed original needs no special handling - its
// offset arrives as the reversal entry's own posting.
type TrialBalance struct {
	db *gorm.DB
}

// Projection returns the applier registered with the projector
func (t *TrialBalance) Projection() projection.Projection {
	return projection.Projection{
		ID:       TrialBalanceID,
		Apply:    t.apply,
		Truncate: t.truncate,
	}
}

func (t *TrialBalance) truncate(ctx context.Context, tx *gorm.DB) error {
	return tx.WithContext(ctx).Where("1 = 1").Delete(&BalanceRow{}).Error
}

func (t *TrialBalance) apply(ctx context.Context, tx *gorm.DB, evt eventstore.StoredEvent) error {
	var lines []ledger.LineData

	switch e := evt.Event.(type) {
	case ledger.JournalEntryPosted:
		lines = e.Lines
	case ledger.ReversalEntryCreated:
		lines = e.Lines
	case ledger.ReplacementEntryCreated:
		lines = e.Lines
	default:
		return nil
	}

	tx = tx.WithContext(ctx)

	for _, l := range lines {
		if err := t.book(tx, l); err != nil {
			return err
		}
	}

	return nil
}

func (t *TrialBalance) book(tx *gorm.DB, l ledger.LineData) error {
	row := BalanceRow{
		Account:  l.Account,
		Currency: l.Currency,
	}

	switch ledger.Side(l.Side) {
	case ledger.Debit:
		row.DebitTotal = l.Amount
	case ledger.Credit:
		row.CreditTotal = l.Amount
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]any{
			"debit_total":  gorm.Expr("debit_total + ?", row.DebitTotal),
			"credit_total": gorm.Expr("credit_total + ?", row.CreditTotal),
		}),
	}).Create(&row).Error
}

// Balances returns every account's totals ordered by account code
func (t *TrialBalance) Balances(ctx context.Context) ([]BalanceRow, error) {
	var rows []BalanceRow

	return rows, t.db.WithContext(ctx).Order("account asc").Find(&rows).Error
}

// Balance returns a single account's totals or ErrNotFound
func (t *TrialBalance) Balance(ctx context.Context, account string) (*BalanceRow, error) {
	var row BalanceRow

	res := t.db.WithContext(ctx).
		Where("account = ?", account).
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
