package audit

import (
	"encoding/json"
	"time"
)

// Entry is one element of the audit trail carried on every registry document.
// Bulk ingests share a single reason of the form "BULK_INGEST:<batchId>".
type Entry struct {
	When   time.Time      `json:"when"`
	Actor  string         `json:"actor"`
	Kind   string         `json:"kind"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

const (
	KindCreate     = "create"
	KindUpdate     = "update"
	KindTransition = "state_transition"
	KindBackRef    = "backref"
	KindDelete     = "delete"
)

func NewEntry(actor, kind, reason string) Entry {
	return Entry{When: time.Now().UTC(), Actor: actor, Kind: kind, Reason: reason}
}

func (e Entry) WithChange(field string, before, after any) Entry {
	if e.Before == nil {
		e.Before = map[string]any{}
	}
	if e.After == nil {
		e.After = map[string]any{}
	}
	if before != nil {
		e.Before[field] = before
	}
	if after != nil {
		e.After[field] = after
	}
	return e
}

// JSON marshals the entry for a jsonb append. Marshalling an Entry cannot
// fail; the error path covers future field additions.
func (e Entry) JSON() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
