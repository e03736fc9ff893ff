package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aneshas/closebook/app"
	"github.com/aneshas/closebook/eventstore"
	"github.com/aneshas/closebook/ledger"
	"github.com/aneshas/closebook/projection"
	"github.com/aneshas/closebook/readmodel"
	"github.com/stretchr/testify/assert"
)

type harness struct {
	store     *eventstore.EventStore
	projector *projection.Projector
	handlers  *app.Handlers
	queries   *app.Queries
}

func setup(t *testing.T) *harness {
	t.Helper()

	es, err := eventstore.New(
		eventstore.NewJSONEncoder(ledger.Events()...),
		eventstore.WithSQLiteDB(filepath.Join(t.TempDir(), "test.db")),
	)
	if err != nil {
		t.Fatalf("error creating es: %v", err)
	}

	t.Cleanup(func() {
		assert.NoError(t, es.Close())
	})

	projector, err := projection.NewProjector(es.DB(), es)

	assert.NoError(t, err)

	entries, err := readmodel.NewEntryList(es.DB())

	assert.NoError(t, err)

	balances, err := readmodel.NewTrialBalance(es.DB())

	assert.NoError(t, err)

	projector.Register(entries.Projection(), balances.Projection())

	return &harness{
		store:     es,
		projector: projector,
		handlers:  app.NewHandlers(es, projector),
		queries:   app.NewQueries(entries, balances),
	}
}

func lineRequests() []app.LineRequest {
	return []app.LineRequest{
		{No: 1, Side: "debit", Account: "7010", Amount: 10000, Currency: "EUR", Tax: "standard"},
		{No: 2, Side: "credit", Account: "1910", Amount: 10000, Currency: "EUR"},
	}
}

func registerEntry(t *testing.T, h *harness) string {
	t.Helper()

	res, err := h.handlers.RegisterEntry(context.Background(), app.RegisterEntryRequest{
		VoucherNo:       "V-2026-001",
		TransactionDate: "2026-08-01",
		Lines:           lineRequests(),
		RegisteredBy:    "alice",
	})

	assert.NoError(t, err)

	return res.EntryID
}

func postEntry(t *testing.T, h *harness) string {
	t.Helper()

	id := registerEntry(t, h)

	_, err := h.handlers.PostEntry(context.Background(), app.PostEntryRequest{
		EntryID:  id,
		EntryNo:  "JE-1001",
		PostedBy: "bob",
	})

	assert.NoError(t, err)

	return id
}

func TestShould_Register_Entry_And_Serve_It_From_The_Read_Model(t *testing.T) {
	h := setup(t)

	id := registerEntry(t, h)

	view, err := h.queries.Entry(context.Background(), id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusDraft), view.Status)
	assert.Equal(t, "V-2026-001", view.VoucherNo)
	assert.Equal(t, "2026-08-01", view.TransactionDate)
	assert.Equal(t, int64(10000), view.DebitTotal)
	assert.Equal(t, int64(10000), view.CreditTotal)
	assert.Len(t, view.Lines, 2)

	// omitted tax code defaults to out of scope
	assert.Equal(t, string(ledger.TaxOutOfScope), view.Lines[1].Tax)
}

func TestShould_Write_Nothing_When_Registration_Violates_Balance(t *testing.T) {
	h := setup(t)

	lines := lineRequests()
	lines[0].Amount += 100

	_, err := h.handlers.RegisterEntry(context.Background(), app.RegisterEntryRequest{
		VoucherNo:       "V-2026-001",
		TransactionDate: "2026-08-01",
		Lines:           lines,
		RegisteredBy:    "alice",
	})

	assert.True(t, app.IsInvariantViolation(err))

	var imbalance *ledger.ImbalanceError

	assert.ErrorAs(t, err, &imbalance)
	assert.Equal(t, int64(100), imbalance.Diff())

	// the log stays empty - no partial writes on a rejected command
	seq, err := h.store.LastSequence(context.Background())

	assert.NoError(t, err)
	assert.Zero(t, seq)

	views, err := h.queries.Entries(context.Background(), app.ListEntriesQuery{})

	assert.NoError(t, err)
	assert.Empty(t, views)
}

func TestShould_Reject_Malformed_Line_Input(t *testing.T) {
	h := setup(t)

	lines := lineRequests()
	lines[0].Side = "both"

	_, err := h.handlers.RegisterEntry(context.Background(), app.RegisterEntryRequest{
		VoucherNo:       "V-2026-001",
		TransactionDate: "2026-08-01",
		Lines:           lines,
		RegisteredBy:    "alice",
	})

	assert.True(t, app.IsValidation(err))
}

func TestShould_Reject_Malformed_Transaction_Date(t *testing.T) {
	h := setup(t)

	_, err := h.handlers.RegisterEntry(context.Background(), app.RegisterEntryRequest{
		VoucherNo:       "V-2026-001",
		TransactionDate: "01.08.2026",
		Lines:           lineRequests(),
		RegisteredBy:    "alice",
	})

	assert.True(t, app.IsValidation(err))
}

func TestShould_Reject_Malformed_Entry_ID(t *testing.T) {
	h := setup(t)

	_, err := h.handlers.PostEntry(context.Background(), app.PostEntryRequest{
		EntryID:  "not-a-uuid",
		EntryNo:  "JE-1001",
		PostedBy: "bob",
	})

	assert.True(t, app.IsValidation(err))
}

func TestShould_Report_Unknown_Entry(t *testing.T) {
	h := setup(t)

	_, err := h.handlers.PostEntry(context.Background(), app.PostEntryRequest{
		EntryID:  "0190b1a2-0000-7000-8000-000000000000",
		EntryNo:  "JE-1001",
		PostedBy: "bob",
	})

	assert.True(t, app.IsNotFound(err))

	_, err = h.queries.Entry(context.Background(), "0190b1a2-0000-7000-8000-000000000000")

	assert.ErrorIs(t, err, app.ErrNotFound)
}

func TestShould_Post_Entry_And_Move_The_Trial_Balance(t *testing.T) {
	h := setup(t)

	id := postEntry(t, h)

	view, err := h.queries.Entry(context.Background(), id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPosted), view.Status)
	assert.Equal(t, "JE-1001", view.EntryNo)

	balances, err := h.queries.TrialBalance(context.Background())

	assert.NoError(t, err)
	assert.Len(t, balances, 2)

	var debits, credits int64

	for _, b := range balances {
		debits += b.DebitTotal
		credits += b.CreditTotal
	}

	assert.Equal(t, debits, credits)
}

func TestShould_Run_The_Approval_Flow(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := registerEntry(t, h)

	_, err := h.handlers.SubmitForApproval(ctx, app.SubmitForApprovalRequest{EntryID: id, RequestedBy: "alice"})

	assert.NoError(t, err)

	view, err := h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPendingApproval), view.Status)

	_, err = h.handlers.RejectEntry(ctx, app.RejectEntryRequest{EntryID: id, Reason: "missing receipt", RejectedBy: "bob"})

	assert.NoError(t, err)

	view, err = h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusDraft), view.Status)

	_, err = h.handlers.SubmitForApproval(ctx, app.SubmitForApprovalRequest{EntryID: id, RequestedBy: "alice"})

	assert.NoError(t, err)

	_, err = h.handlers.PostEntry(ctx, app.PostEntryRequest{EntryID: id, EntryNo: "JE-1002", PostedBy: "bob"})

	assert.NoError(t, err)
}

func TestShould_Update_And_Delete_Draft(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := registerEntry(t, h)

	lines := lineRequests()
	lines[0].Amount = 5000
	lines[1].Amount = 5000

	_, err := h.handlers.UpdateDraft(ctx, app.UpdateDraftRequest{EntryID: id, Lines: lines, UpdatedBy: "alice"})

	assert.NoError(t, err)

	view, err := h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, int64(5000), view.DebitTotal)

	_, err = h.handlers.DeleteDraft(ctx, app.DeleteDraftRequest{EntryID: id, DeletedBy: "alice"})

	assert.NoError(t, err)

	_, err = h.queries.Entry(ctx, id)

	assert.ErrorIs(t, err, app.ErrNotFound)
}

func TestShould_Reverse_Posted_Entry(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := postEntry(t, h)

	res, err := h.handlers.ReverseEntry(ctx, app.ReverseEntryRequest{
		EntryID:         id,
		VoucherNo:       "V-2026-002",
		TransactionDate: "2026-08-15",
		Reason:          "wrong period",
		RequestedBy:     "carol",
	})

	assert.NoError(t, err)
	assert.Equal(t, id, res.OriginalEntryID)
	assert.NotEqual(t, id, res.ReversalEntryID)

	original, err := h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusReversed), original.Status)
	assert.Equal(t, res.ReversalEntryID, original.ReversedBy)

	reversal, err := h.queries.Entry(ctx, res.ReversalEntryID)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPosted), reversal.Status)
	assert.Equal(t, id, reversal.ReversalOf)
	assert.Equal(t, "credit", reversal.Lines[0].Side)
	assert.Equal(t, "debit", reversal.Lines[1].Side)

	// the original stream carries exactly the drafted, posted and
	// reversed facts
	events, err := h.store.ReadStream(ctx, id)

	assert.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, "JournalEntryReversed", events[2].Type)

	// posting and reversal cancel out account by account
	balances, err := h.queries.TrialBalance(ctx)

	assert.NoError(t, err)

	for _, b := range balances {
		assert.Zero(t, b.Net)
	}
}

func TestShould_Not_Reverse_Twice(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := postEntry(t, h)

	req := app.ReverseEntryRequest{
		EntryID:         id,
		VoucherNo:       "V-2026-002",
		TransactionDate: "2026-08-15",
		Reason:          "wrong period",
		RequestedBy:     "carol",
	}

	_, err := h.handlers.ReverseEntry(ctx, req)

	assert.NoError(t, err)

	_, err = h.handlers.ReverseEntry(ctx, req)

	assert.True(t, app.IsInvariantViolation(err))
	assert.ErrorIs(t, err, ledger.ErrNotReversible)
}

func TestShould_Correct_Posted_Entry(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := postEntry(t, h)

	corrected := lineRequests()
	corrected[0].Account = "7020"

	res, err := h.handlers.CorrectEntry(ctx, app.CorrectEntryRequest{
		EntryID:         id,
		VoucherNo:       "V-2026-003",
		TransactionDate: "2026-08-20",
		Lines:           corrected,
		Reason:          "wrong account",
		RequestedBy:     "carol",
	})

	assert.NoError(t, err)

	original, err := h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusCorrected), original.Status)
	assert.Equal(t, res.ReplacementEntryID, original.CorrectedBy)

	replacement, err := h.queries.Entry(ctx, res.ReplacementEntryID)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPosted), replacement.Status)
	assert.Equal(t, id, replacement.ReplacementOf)
	assert.Equal(t, "7020", replacement.Lines[0].Account)
}

func TestShould_Not_Correct_With_Unbalanced_Lines(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := postEntry(t, h)

	corrected := lineRequests()
	corrected[0].Amount += 100

	_, err := h.handlers.CorrectEntry(ctx, app.CorrectEntryRequest{
		EntryID:         id,
		VoucherNo:       "V-2026-003",
		TransactionDate: "2026-08-20",
		Lines:           corrected,
		Reason:          "wrong account",
		RequestedBy:     "carol",
	})

	assert.True(t, app.IsInvariantViolation(err))

	// the original is untouched, no replacement stream was started
	view, err := h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusPosted), view.Status)

	seq, err := h.store.LastSequence(ctx)

	assert.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestShould_Close_Posted_Entry_And_Lock_It(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := postEntry(t, h)

	_, err := h.handlers.CloseEntry(ctx, app.CloseEntryRequest{EntryID: id, ClosedBy: "dave"})

	assert.NoError(t, err)

	view, err := h.queries.Entry(ctx, id)

	assert.NoError(t, err)
	assert.Equal(t, string(ledger.StatusClosed), view.Status)

	_, err = h.handlers.ReverseEntry(ctx, app.ReverseEntryRequest{
		EntryID:         id,
		VoucherNo:       "V-2026-004",
		TransactionDate: "2026-08-31",
		RequestedBy:     "carol",
	})

	assert.True(t, app.IsInvariantViolation(err))
}

func TestShould_Report_Stream_Version_In_Result(t *testing.T) {
	h := setup(t)

	ctx := context.Background()
	id := registerEntry(t, h)

	res, err := h.handlers.PostEntry(ctx, app.PostEntryRequest{EntryID: id, EntryNo: "JE-1001", PostedBy: "bob"})

	assert.NoError(t, err)
	assert.Equal(t, id, res.EntryID)
	assert.Equal(t, 2, res.Version)
}
