package ledger

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is the common ancestor of every domain rule failure.
// A command that trips any of these rules produces no event at all.
var ErrInvariantViolation = errors.New("invariant violation")

var (
	// ErrNoLines - a journal entry needs at least one debit and one credit line
	ErrNoLines = fmt.Errorf("%w: journal entry has no lines", ErrInvariantViolation)

	// ErrNonPositiveAmount - line amounts must be positive
	ErrNonPositiveAmount = fmt.Errorf("%w: line amount must be positive", ErrInvariantViolation)

	// ErrInvalidSide - a line must be designated debit or credit
	ErrInvalidSide = fmt.Errorf("%w: line side must be debit or credit", ErrInvariantViolation)

	// ErrMissingAccount - every line references an account
	ErrMissingAccount = fmt.Errorf("%w: line account must be provided", ErrInvariantViolation)

	// ErrMixedCurrencies - multi currency entries are rejected outright, there
	// is no conversion policy
	ErrMixedCurrencies = fmt.Errorf("%w: journal entry lines must share a single currency", ErrInvariantViolation)

	// ErrNotCorrectable - corrections may only target posted entries
	ErrNotCorrectable = fmt.Errorf("%w: entry not in correctable status", ErrInvariantViolation)

	// ErrNotReversible - reversals may only target posted entries
	ErrNotReversible = fmt.Errorf("%w: entry not in reversible status", ErrInvariantViolation)

	// ErrInvalidStatusTransition - the requested lifecycle step is not allowed
	// from the entry's current status
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrInvariantViolation)
)

// ImbalanceError reports by how much an entry's debit and credit
// totals disagree
type ImbalanceError struct {
	DebitTotal  int64
	CreditTotal int64
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf(
		"%v: debit total %d and credit total %d differ by %d",
		ErrInvariantViolation, e.DebitTotal, e.CreditTotal, e.Diff(),
	)
}

// Diff returns the signed difference (debits minus credits)
func (e *ImbalanceError) Diff() int64 {
	return e.DebitTotal - e.CreditTotal
}

// Is makes errors.Is(err, ErrInvariantViolation) hold for imbalance errors
func (e *ImbalanceError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// ValidateLines checks the structural line rules: at least one line, positive
// amounts, valid sides, accounts present, a single currency across the entry
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return ErrNoLines
	}

	currency := lines[0].Currency

	for _, l := range lines {
		if l.Amount <= 0 {
			return ErrNonPositiveAmount
		}

		if l.Side != Debit && l.Side != Credit {
			return ErrInvalidSide
		}

		if l.Account == "" {
			return ErrMissingAccount
		}

		if l.Currency != currency {
			return ErrMixedCurrencies
		}
	}

	return nil
}

// ValidateBalance accepts the lines iff the sum of debit amounts equals the
// sum of credit amounts, otherwise it reports the signed difference
func ValidateBalance(lines []Line) error {
	var debit, credit int64

	for _, l := range lines {
		switch l.Side {
		case Debit:
			debit += l.Amount
		case Credit:
			credit += l.Amount
		}
	}

	if debit != credit {
		return &ImbalanceError{
			DebitTotal:  debit,
			CreditTotal: credit,
		}
	}

	return nil
}

// ReversalLines derives the lines of a reversal entry: every line keeps its
// account, amount, currency and tax classification but swaps the debit/credit
// designator. The output balances whenever the input does.
func ReversalLines(original []Line) []Line {
	reversed := make([]Line, len(original))

	for i, l := range original {
		l.Side = l.Side.Flip()
		reversed[i] = l
	}

	return reversed
}

// ValidateCorrection checks that a correction may be applied: the corrected
// lines must independently satisfy the line and balance rules, and the entry
// being corrected must still be posted - an entry that was already reversed
// or corrected is not correctable again.
func ValidateCorrection(originalStatus Status, corrected []Line) error {
	if originalStatus != StatusPosted {
		return ErrNotCorrectable
	}

	if err := ValidateLines(corrected); err != nil {
		return err
	}

	return ValidateBalance(corrected)
}

// Totals sums the debit and credit columns
func Totals(lines []Line) (debit, credit int64) {
	for _, l := range lines {
		switch l.Side {
		case Debit:
			debit += l.Amount
		case Credit:
			credit += l.Amount
		}
	}

	return debit, credit
}
