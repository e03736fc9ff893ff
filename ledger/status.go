package ledger

// Status is the lifecycle state of a journal entry
type Status string

const (
	// StatusDraft - editable, not yet part of the ledger
	StatusDraft Status = "Draft"

	// StatusPendingApproval - submitted, waiting for approval
	StatusPendingApproval Status = "PendingApproval"

	// StatusPosted - booked into the ledger
	StatusPosted Status = "Posted"

	// StatusReversed - offset by a reversal entry
	StatusReversed Status = "Reversed"

	// StatusCorrected - superseded by a replacement entry
	StatusCorrected Status = "Corrected"

	// StatusClosed - locked by period close
	StatusClosed Status = "Closed"

	// StatusDeleted - draft removed before ever being posted
	StatusDeleted Status = "Deleted"
)

var transitions = map[Status][]Status{
	StatusDraft:           {StatusDraft, StatusPendingApproval, StatusPosted, StatusDeleted},
	StatusPendingApproval: {StatusPosted, StatusDraft},
	StatusPosted:          {StatusReversed, StatusCorrected, StatusClosed},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to target.
// Reversed, Corrected, Closed and Deleted are terminal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}

	return false
}

// IsEditable reports whether the entry's lines may still change
func (s Status) IsEditable() bool { return s == StatusDraft }

// IsPosted reports whether the entry is booked into the ledger
func (s Status) IsPosted() bool { return s == StatusPosted }

// Transition is one recorded status change of an entry
type Transition struct {
	From   Status
	To     Status
	By     string
	Reason string
}
