package domain

import "time"

// Status is the lifecycle state of a KeyRecord.
//
// Durable states are active, grace, revoked, compromised and expired.
// A rotation moves the predecessor straight from active to grace inside
// one transaction, so no reader ever observes an intermediate state.
type Status string

const (
	StatusActive      Status = "active"
	StatusGrace       Status = "grace"
	StatusRevoked     Status = "revoked"
	StatusCompromised Status = "compromised"
	StatusExpired     Status = "expired"
)

// ValidStatus reports whether s is a known durable status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusGrace, StatusRevoked, StatusCompromised, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted out of s.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked || s == StatusCompromised || s == StatusExpired
}

// transitions holds the permitted state machine edges. Terminal states
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusActive: {StatusGrace, StatusRevoked, StatusCompromised, StatusExpired},
	StatusGrace:  {StatusRevoked, StatusCompromised, StatusExpired},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// KeyRecord is an exchange API credential tracked by the lifecycle
// manager. The manager never holds the plaintext secret after issuance;
// SecretRef points at the external secret store and SecretDigest lets a
// collaborator verify a presented secret without plaintext.
type KeyRecord struct {
	ID           string // ULID
	Exchange     string // target exchange/service the credential authorizes
	Description  string // free-text label
	SecretRef    string // opaque reference into the external secret store
	SecretDigest string // argon2id PHC digest of the plaintext secret
	Scopes       []string
	Status       Status

	// Version increments on every mutation and is the compare-and-swap
	// token for optimistic concurrency.
	Version int64

	CreatedAt time.Time
	ExpiresAt time.Time

	// Set when a rotation made this record the predecessor.
	RotatedAt       *time.Time
	GracePeriodEnds *time.Time

	RevokedAt        *time.Time
	RevocationReason string

	// Compromise always implies revocation: CompromisedAt == RevokedAt.
	CompromisedAt     *time.Time
	CompromiseDetails string

	// Advisory, written by the external usage-tracking collaborator.
	LastUsedAt *time.Time

	// Scanner bookkeeping: last expiry warning, deduped per UTC day.
	LastWarnedAt *time.Time

	// Rotation chain back-references (no ownership).
	SuccessorID   string
	PredecessorID string
}

// IsExpired reports whether the record's hard expiry has been reached.
// The boundary is inclusive, matching the scanner's listing query.
func (k *KeyRecord) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// ExpiresWithin reports whether an active record will hit its expiry
// inside the window. Expired records are excluded; they transition
// instead of warning.
func (k *KeyRecord) ExpiresWithin(now time.Time, window time.Duration) bool {
	if k.Status != StatusActive || k.IsExpired(now) {
		return false
	}
	return !k.ExpiresAt.After(now.Add(window))
}

// GraceElapsed reports whether a grace record has outlived its grace
// period and is eligible for automatic revocation.
func (k *KeyRecord) GraceElapsed(now time.Time) bool {
	return k.Status == StatusGrace && k.GracePeriodEnds != nil && !k.GracePeriodEnds.After(now)
}

// WarnedOn reports whether an expiry warning was already sent on the
// given UTC calendar day.
func (k *KeyRecord) WarnedOn(day time.Time) bool {
	if k.LastWarnedAt == nil {
		return false
	}
	y1, m1, d1 := k.LastWarnedAt.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
