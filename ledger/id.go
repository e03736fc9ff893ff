package ledger

import "github.com/google/uuid"

// EntryID identifies a journal entry (and its event stream)
type EntryID struct {
	uuid.UUID
}

// NewEntryID generates a new journal entry ID
func NewEntryID() EntryID {
	return EntryID{uuid.New()}
}

// ParseEntryID parses a journal entry ID from its string form
func ParseEntryID(id string) (EntryID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return EntryID{}, err
	}

	return EntryID{u}, nil
}
