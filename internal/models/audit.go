package models

import "time"

// AuditEntry is one append-only audit-log row. MemberID is zero for
// system-initiated actions such as scheduled interest runs.
type AuditEntry struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
