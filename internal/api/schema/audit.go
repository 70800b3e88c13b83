package schema

import (
	"encoding/json"
	"time"
)

// AuditLog is one recorded change. Secret config values are already redacted
// when the change is written.
type AuditLog struct {
	ID         int64           `json:"id"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action" enum:"add,update,delete"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId"`
	AppliedAt  time.Time       `json:"appliedAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Summary    string          `json:"summary"`
	DiffURL    string          `json:"diffUrl"`
}

// AuditDiff is the unified diff between the before and after of a change.
type AuditDiff struct {
	Unified string `json:"unified"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}
