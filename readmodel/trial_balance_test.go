package readmodel_test

import (
	"context"
	"testing"

	"github.com/aneshas/closebook/ledger"
	"github.com/aneshas/closebook/readmodel"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func trialBalance(t *testing.T, db *gorm.DB) *readmodel.TrialBalance {
	t.Helper()

	tb, err := readmodel.NewTrialBalance(db)

	assert.NoError(t, err)

	return tb
}

func TestShould_Accumulate_Posted_Totals_Per_Account(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	apply(t, db, tb.Projection(),
		ledger.JournalEntryPosted{EntryID: "entry-1", Lines: lineData()},
		ledger.JournalEntryPosted{EntryID: "entry-2", Lines: lineData()},
	)

	expense, err := tb.Balance(context.Background(), "7010")

	assert.NoError(t, err)
	assert.Equal(t, int64(20000), expense.DebitTotal)
	assert.Equal(t, int64(0), expense.CreditTotal)
	assert.Equal(t, int64(20000), expense.Net())

	bank, err := tb.Balance(context.Background(), "1910")

	assert.NoError(t, err)
	assert.Equal(t, int64(20000), bank.CreditTotal)
	assert.Equal(t, int64(-20000), bank.Net())
}

func TestShould_Ignore_Events_That_Book_Nothing(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	apply(t, db, tb.Projection(),
		ledger.JournalEntryDrafted{EntryID: "entry-1", Lines: lineData()},
		ledger.ApprovalRequested{EntryID: "entry-1"},
		ledger.JournalEntryReversed{EntryID: "entry-1", ReversalEntryID: "entry-2"},
		ledger.JournalEntryClosed{EntryID: "entry-1"},
	)

	rows, err := tb.Balances(context.Background())

	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestShould_Offset_Reversed_Posting_Through_The_Reversal_Entry(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	flipped := []ledger.LineData{
		{No: 1, Side: "credit", Account: "7010", Amount: 10000, Currency: "EUR"},
		{No: 2, Side: "debit", Account: "1910", Amount: 10000, Currency: "EUR"},
	}

	apply(t, db, tb.Projection(),
		ledger.JournalEntryPosted{EntryID: "entry-1", Lines: lineData()},
		ledger.ReversalEntryCreated{EntryID: "entry-2", ReversesEntryID: "entry-1", Lines: flipped},
	)

	rows, err := tb.Balances(context.Background())

	assert.NoError(t, err)
	assert.Len(t, rows, 2)

	for _, row := range rows {
		assert.Equal(t, int64(0), row.Net())
		assert.Equal(t, int64(10000), row.DebitTotal)
		assert.Equal(t, int64(10000), row.CreditTotal)
	}
}

func TestShould_Book_Replacement_Entry_Lines(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	corrected := lineData()
	corrected[0].Account = "7020"

	apply(t, db, tb.Projection(),
		ledger.ReplacementEntryCreated{EntryID: "entry-2", ReplacesEntryID: "entry-1", Lines: corrected},
	)

	row, err := tb.Balance(context.Background(), "7020")

	assert.NoError(t, err)
	assert.Equal(t, int64(10000), row.DebitTotal)
}

func TestShould_Order_Balances_By_Account(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	apply(t, db, tb.Projection(),
		ledger.JournalEntryPosted{EntryID: "entry-1", Lines: []ledger.LineData{
			{No: 1, Side: "debit", Account: "7010", Amount: 100, Currency: "EUR"},
			{No: 2, Side: "credit", Account: "1910", Amount: 100, Currency: "EUR"},
		}},
	)

	rows, err := tb.Balances(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, "1910", rows[0].Account)
	assert.Equal(t, "7010", rows[1].Account)
}

func TestShould_Report_Missing_Account(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	_, err := tb.Balance(context.Background(), "9999")

	assert.ErrorIs(t, err, readmodel.ErrNotFound)
}

func TestShould_Start_Empty_After_Trial_Balance_Truncate(t *testing.T) {
	db := testDB(t)
	tb := trialBalance(t, db)

	p := tb.Projection()

	apply(t, db, p, ledger.JournalEntryPosted{EntryID: "entry-1", Lines: lineData()})

	assert.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return p.Truncate(context.Background(), tx)
	}))

	rows, err := tb.Balances(context.Background())

	assert.NoError(t, err)
	assert.Empty(t, rows)
}
