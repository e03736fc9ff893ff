// Package ledger holds the double-entry accounting domain: journal entry
// value objects, the pure invariant rules that gate every state change, the
// domain events and the event sourced JournalEntry aggregate itself.
package ledger

// Side designates whether a journal entry line hits the debit
// or the credit column
type Side string

const (
	// Debit side
	Debit Side = "debit"

	// Credit side
	Credit Side = "credit"
)

// Flip returns the opposite side
func (s Side) Flip() Side {
	if s == Debit {
		return Credit
	}

	return Debit
}

// TaxCode classifies a line for tax purposes
type TaxCode string

const (
	// TaxStandard marks a line subject to standard rate tax
	TaxStandard TaxCode = "standard"

	// TaxExempt marks a tax exempt line
	TaxExempt TaxCode = "exempt"

	// TaxOutOfScope marks a line outside the scope of taxation
	TaxOutOfScope TaxCode = "out_of_scope"
)

// Line is a single journal entry line - an account reference, a debit or
// credit designator, a monetary amount in minor units of a currency and a
// tax classification. Lines are value objects and never change once the
// entry holding them is posted.
type Line struct {
	No          int
	Side        Side
	Account     string
	Amount      int64
	Currency    string
	Tax         TaxCode
	Description string
}

// LineData is the wire form of a Line carried inside event payloads.
// Kept separate from Line so the persisted event schema does not silently
// drift with the domain type.
type LineData struct {
	No          int    `json:"no"`
	Side        string `json:"side"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Tax         string `json:"tax"`
	Description string `json:"description,omitempty"`
}

func linesToData(lines []Line) []LineData {
	out := make([]LineData, len(lines))

	for i, l := range lines {
		out[i] = LineData{
			No:          l.No,
			Side:        string(l.Side),
			Account:     l.Account,
			Amount:      l.Amount,
			Currency:    l.Currency,
			Tax:         string(l.Tax),
			Description: l.Description,
		}
	}

	return out
}

func linesFromData(data []LineData) []Line {
	out := make([]Line, len(data))

	for i, d := range data {
		out[i] = Line{
			No:          d.No,
			Side:        Side(d.Side),
			Account:     d.Account,
			Amount:      d.Amount,
			Currency:    d.Currency,
			Tax:         TaxCode(d.Tax),
			Description: d.Description,
		}
	}

	return out
}
