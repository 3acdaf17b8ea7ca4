package http

import (
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
)

// ErrorResponse is the uniform error payload for every endpoint.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// IssueKeyRequest is the body of POST /v1/keys.
type IssueKeyRequest struct {
	Exchange     string   `json:"exchange"`
	Description  string   `json:"description,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	LifetimeDays int      `json:"lifetime_days,omitempty"` // 0 uses the configured default
}

// RotateKeyRequest is the body of POST /v1/keys/{id}/rotate. Omitting
// expected_version skips the caller-side optimistic concurrency check;
// any supplied value, zero included, is validated against the record.
type RotateKeyRequest struct {
	GracePeriodHours int    `json:"grace_period_hours"`
	ExpectedVersion  *int64 `json:"expected_version,omitempty"`
}

// RevokeKeyRequest is the body of POST /v1/keys/{id}/revoke.
type RevokeKeyRequest struct {
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// CompromiseKeyRequest is the body of POST /v1/keys/{id}/compromise.
type CompromiseKeyRequest struct {
	Details string `json:"details,omitempty"`
}

// KeyInfo is the external view of a key record. Secret material never
// appears here; SecretRef stays internal too.
type KeyInfo struct {
	ID                string     `json:"id"`
	Exchange          string     `json:"exchange"`
	Description       string     `json:"description,omitempty"`
	Scopes            []string   `json:"scopes,omitempty"`
	Status            string     `json:"status"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RotatedAt         *time.Time `json:"rotated_at,omitempty"`
	GracePeriodEnds   *time.Time `json:"grace_period_ends,omitempty"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	RevocationReason  string     `json:"revocation_reason,omitempty"`
	CompromisedAt     *time.Time `json:"compromised_at,omitempty"`
	CompromiseDetails string     `json:"compromise_details,omitempty"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	SuccessorID       string     `json:"successor_id,omitempty"`
	PredecessorID     string     `json:"predecessor_id,omitempty"`
}

// IssueKeyResponse returns the new record and the one-time plaintext
// secret. The secret is not retrievable again.
type IssueKeyResponse struct {
	Key    KeyInfo `json:"key"`
	Secret string  `json:"secret"`
}

// RotateKeyResponse returns the successor (with its one-time secret)
// and the predecessor now in its grace period.
type RotateKeyResponse struct {
	Key         KeyInfo `json:"key"`
	Secret      string  `json:"secret"`
	Predecessor KeyInfo `json:"predecessor"`
}

// RevokeKeyResponse returns the revoked record. Warning is set when
// the revocation left the exchange without an active key.
type RevokeKeyResponse struct {
	Key     KeyInfo `json:"key"`
	Warning string  `json:"warning,omitempty"`
}

// ListKeysResponse wraps key listings.
type ListKeysResponse struct {
	Keys []KeyInfo `json:"keys"`
}

// AuditEntryInfo is one history event.
type AuditEntryInfo struct {
	ID         string    `json:"id"`
	KeyID      string    `json:"key_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryResponse wraps a key's audit trail.
type HistoryResponse struct {
	Entries []AuditEntryInfo `json:"entries"`
}

// HealthResponse is shared by the livez and readyz probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database    string `json:"database"`
	SecretStore string `json:"secret_store"`
}

func keyInfo(rec domain.KeyRecord) KeyInfo {
	return KeyInfo{
		ID:                rec.ID,
		Exchange:          rec.Exchange,
		Description:       rec.Description,
		Scopes:            rec.Scopes,
		Status:            string(rec.Status),
		Version:           rec.Version,
		CreatedAt:         rec.CreatedAt,
		ExpiresAt:         rec.ExpiresAt,
		RotatedAt:         rec.RotatedAt,
		GracePeriodEnds:   rec.GracePeriodEnds,
		RevokedAt:         rec.RevokedAt,
		RevocationReason:  rec.RevocationReason,
		CompromisedAt:     rec.CompromisedAt,
		CompromiseDetails: rec.CompromiseDetails,
		LastUsedAt:        rec.LastUsedAt,
		SuccessorID:       rec.SuccessorID,
		PredecessorID:     rec.PredecessorID,
	}
}

func keyInfos(recs []domain.KeyRecord) []KeyInfo {
	infos := make([]KeyInfo, len(recs))
	for i, rec := range recs {
		infos[i] = keyInfo(rec)
	}
	return infos
}

func auditEntryInfos(entries []domain.AuditEntry) []AuditEntryInfo {
	infos := make([]AuditEntryInfo, len(entries))
	for i, e := range entries {
		infos[i] = AuditEntryInfo{
			ID:         e.ID,
			KeyID:      e.KeyID,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Actor:      e.Actor,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt,
		}
	}
	return infos
}
