package domain

import "time"

// AuditEntry is one immutable lifecycle event. Entries are only ever
// appended; together with the SuccessorID/PredecessorID chain they
// answer "which secret was valid at time T".
type AuditEntry struct {
	ID         string // ULID
	KeyID      string
	FromStatus Status // empty for issuance
	ToStatus   Status
	Actor      string
	Reason     string
	CreatedAt  time.Time
}
