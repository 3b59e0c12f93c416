package events

import "github.com/google/uuid"

// BatchValidated fires after every validate or dry-run pass.
type BatchValidated struct {
	BatchID  uuid.UUID
	Kind     string
	Total    int
	Valid    int
	Invalid  int
	Warnings int
}

// BatchCommitted fires once per non-dry-run process call that reached the
// commit phase.
type BatchCommitted struct {
	BatchID uuid.UUID
	Kind    string
	Created int
	Updated int
	Failed  int
}
