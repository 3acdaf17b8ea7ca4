package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
	"github.com/fluxtrade/keymgr/internal/keymgr/metrics"
	"github.com/fluxtrade/keymgr/internal/keymgr/notify"
	"github.com/fluxtrade/keymgr/internal/keymgr/secret"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/pkg/cryptox"
	"github.com/fluxtrade/keymgr/pkg/idx"
)

// compromiseRetries bounds the compare-and-swap retry loop for
// MarkCompromised. Compromise must win races against routine writers,
// but an unbounded loop against a pathological writer is worse than a
// surfaced conflict.
const compromiseRetries = 3

// LifecycleService owns every key record state transition. All writes
// go through the store's compare-and-swap update so concurrent
// controllers cannot silently overwrite each other.
type LifecycleService struct {
	Store   store.Store
	Secrets secret.Store
	Gateway notify.Gateway
	Logger  *slog.Logger

	// DefaultLifetime applies when an issue request omits a lifetime.
	DefaultLifetime time.Duration

	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time

	// Backlogs hold audit entries and notification events whose first
	// write failed. The scanner drains them each pass; ordering within
	// a backlog is preserved.
	mu            sync.Mutex
	auditBacklog  []domain.AuditEntry
	notifyBacklog []notify.Event
}

func NewLifecycleService(st store.Store, secrets secret.Store, gateway notify.Gateway, logger *slog.Logger, defaultLifetime time.Duration) *LifecycleService {
	if defaultLifetime <= 0 {
		defaultLifetime = 90 * 24 * time.Hour
	}
	return &LifecycleService{
		Store:           st,
		Secrets:         secrets,
		Gateway:         gateway,
		Logger:          logger,
		DefaultLifetime: defaultLifetime,
		Now:             time.Now,
	}
}

// IssueKeyRequest carries the inputs for issuing a fresh credential.
type IssueKeyRequest struct {
	Exchange    string
	Description string
	Scopes      []string
	Lifetime    time.Duration // 0 means DefaultLifetime
	Actor       string
}

// IssueKeyResponse returns the committed record and the plaintext
// secret. The plaintext is never retrievable again through this
// service; only the digest and the secret store reference persist.
type IssueKeyResponse struct {
	Record domain.KeyRecord
	Secret string
}

// Issue creates a new active key record for an exchange. At most one
// active record may exist per exchange; a second issue attempt returns
// ErrConflict until the current key is rotated, revoked or expired.
func (s *LifecycleService) Issue(ctx context.Context, req IssueKeyRequest) (*IssueKeyResponse, error) {
	if req.Exchange == "" {
		return nil, fmt.Errorf("%w: exchange is required", ErrValidation)
	}
	if req.Lifetime < 0 {
		return nil, fmt.Errorf("%w: lifetime must not be negative", ErrValidation)
	}

	lifetime := req.Lifetime
	if lifetime == 0 {
		lifetime = s.DefaultLifetime
	}

	// Fast pre-check. The partial unique index remains the backstop for
	// two issuers racing past this read.
	if _, err := s.Store.Keys().GetActiveKeyRecord(ctx, req.Exchange); err == nil {
		return nil, fmt.Errorf("%w: exchange %q already has an active key", ErrConflict, req.Exchange)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking active key: %w", err)
	}

	rec, plaintext, err := s.mintRecord(ctx, req.Exchange, req.Description, req.Scopes, lifetime)
	if err != nil {
		return nil, err
	}

	if err := s.Store.Keys().CreateKeyRecord(ctx, rec); err != nil {
		s.destroySecret(ctx, rec.SecretRef)
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: exchange %q already has an active key", ErrConflict, req.Exchange)
		}
		return nil, fmt.Errorf("creating key record: %w", err)
	}

	s.audit(ctx, domain.AuditEntry{
		KeyID:    rec.ID,
		ToStatus: domain.StatusActive,
		Actor:    req.Actor,
		Reason:   "issued",
	})
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusActive)).Inc()

	s.Logger.Info("key issued",
		"key_id", rec.ID,
		"exchange", rec.Exchange,
		"expires_at", rec.ExpiresAt,
		"actor", req.Actor,
	)
	return &IssueKeyResponse{Record: rec, Secret: plaintext}, nil
}

// RotateKeyResponse returns both sides of a completed rotation plus the
// successor's one-time plaintext secret.
type RotateKeyResponse struct {
	Successor   domain.KeyRecord
	Predecessor domain.KeyRecord
	Secret      string
}

// Rotate replaces an active key with a fresh successor in a single
// transaction. The predecessor enters grace and keeps authorizing until
// its grace period ends; a grace period of zero makes it eligible for
// revocation on the scanner's next pass. No observer ever sees an
// exchange without a usable key mid-rotation.
//
// A non-nil expectedVersion pins the write to the version the caller
// last observed; nil skips the caller-side check and races only
// against writers inside the transaction. The supplied version is
// never trusted: the transaction re-reads and re-validates it.
func (s *LifecycleService) Rotate(ctx context.Context, keyID string, expectedVersion *int64, gracePeriod time.Duration, actor string) (*RotateKeyResponse, error) {
	if gracePeriod < 0 {
		return nil, fmt.Errorf("%w: grace period must not be negative", ErrValidation)
	}

	// Fetch outside the transaction just to fail fast and to mint the
	// successor's secret before holding a write transaction open.
	current, err := s.Store.Keys().GetKeyRecord(ctx, keyID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	if current.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: cannot rotate a %s key", ErrInvalidState, current.Status)
	}
	if expectedVersion != nil && current.Version != *expectedVersion {
		return nil, fmt.Errorf("%w: expected version %d, record is at %d", ErrConflict, *expectedVersion, current.Version)
	}

	successor, plaintext, err := s.mintRecord(ctx, current.Exchange, current.Description, current.Scopes, s.DefaultLifetime)
	if err != nil {
		return nil, err
	}
	successor.PredecessorID = current.ID

	now := s.Now().UTC()
	graceEnds := now.Add(gracePeriod)

	var predecessor domain.KeyRecord
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Re-read inside the transaction; the record may have moved
		// since the pre-check.
		rec, err := tx.Keys().GetKeyRecord(ctx, keyID)
		if err != nil {
			return err
		}
		if rec.Status != domain.StatusActive {
			return fmt.Errorf("%w: cannot rotate a %s key", ErrInvalidState, rec.Status)
		}
		if expectedVersion != nil && rec.Version != *expectedVersion {
			return store.ErrVersionConflict
		}

		rec.Status = domain.StatusGrace
		rec.RotatedAt = &now
		rec.GracePeriodEnds = &graceEnds
		rec.SuccessorID = successor.ID

		// Predecessor leaves active before the successor is inserted so
		// the one-active-per-exchange index never trips.
		if err := tx.Keys().UpdateKeyRecord(ctx, rec, rec.Version); err != nil {
			return err
		}
		rec.Version++
		predecessor = rec

		return tx.Keys().CreateKeyRecord(ctx, successor)
	})
	if err != nil {
		s.destroySecret(ctx, successor.SecretRef)
		if errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		return nil, s.mapStoreErr(err)
	}

	s.audit(ctx, domain.AuditEntry{
		KeyID:      predecessor.ID,
		FromStatus: domain.StatusActive,
		ToStatus:   domain.StatusGrace,
		Actor:      actor,
		Reason:     "rotated",
	})
	s.audit(ctx, domain.AuditEntry{
		KeyID:    successor.ID,
		ToStatus: domain.StatusActive,
		Actor:    actor,
		Reason:   "issued by rotation",
	})
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusGrace)).Inc()
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusActive)).Inc()

	s.notifyAsync(ctx, notify.Event{
		KeyID:    predecessor.ID,
		Exchange: predecessor.Exchange,
		Kind:     notify.KindRotated,
		Payload: map[string]any{
			"successor_id":      successor.ID,
			"grace_period_ends": graceEnds,
		},
		OccurredAt: now,
	})

	s.Logger.Info("key rotated",
		"predecessor_id", predecessor.ID,
		"successor_id", successor.ID,
		"exchange", predecessor.Exchange,
		"grace_period_ends", graceEnds,
		"actor", actor,
	)
	return &RotateKeyResponse{Successor: successor, Predecessor: predecessor, Secret: plaintext}, nil
}

// RevokeKeyResponse reports a completed (or idempotently repeated)
// revocation. ActiveRevoked flags that the exchange just lost its only
// usable key.
type RevokeKeyResponse struct {
	Record        domain.KeyRecord
	ActiveRevoked bool
}

// Revoke permanently disables a key. Revoking a key that is already in
// any terminal state is a no-op returning the record unchanged, with no
// new audit entry, so operators can retry safely. A non-nil
// expectedVersion pins the write to the version the caller last
// observed.
func (s *LifecycleService) Revoke(ctx context.Context, keyID string, expectedVersion *int64, reason, actor string) (*RevokeKeyResponse, error) {
	rec, err := s.Store.Keys().GetKeyRecord(ctx, keyID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	if rec.Status.IsTerminal() {
		return &RevokeKeyResponse{Record: rec}, nil
	}
	if expectedVersion != nil && rec.Version != *expectedVersion {
		return nil, fmt.Errorf("%w: expected version %d, record is at %d", ErrConflict, *expectedVersion, rec.Version)
	}
	if rec.Status == domain.StatusActive {
		// Legal but unusual: the exchange loses its only usable key.
		s.Logger.Warn("revoking active key without rotation",
			"key_id", rec.ID,
			"exchange", rec.Exchange,
			"actor", actor,
		)
	}

	from := rec.Status
	now := s.Now().UTC()
	rec.Status = domain.StatusRevoked
	rec.RevokedAt = &now
	rec.RevocationReason = reason

	if err := s.Store.Keys().UpdateKeyRecord(ctx, rec, rec.Version); err != nil {
		return nil, s.mapStoreErr(err)
	}
	rec.Version++

	s.destroySecret(ctx, rec.SecretRef)
	s.audit(ctx, domain.AuditEntry{
		KeyID:      rec.ID,
		FromStatus: from,
		ToStatus:   domain.StatusRevoked,
		Actor:      actor,
		Reason:     reason,
	})
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusRevoked)).Inc()

	s.notifyAsync(ctx, notify.Event{
		KeyID:      rec.ID,
		Exchange:   rec.Exchange,
		Kind:       notify.KindRevoked,
		Payload:    map[string]any{"reason": reason},
		OccurredAt: now,
	})

	s.Logger.Info("key revoked", "key_id", rec.ID, "exchange", rec.Exchange, "reason", reason, "actor", actor)
	return &RevokeKeyResponse{
		Record:        rec,
		ActiveRevoked: from == domain.StatusActive,
	}, nil
}

// MarkCompromised is the emergency path. It retries lost
// compare-and-swap races so a compromise report beats routine writers;
// unlike Rotate and Revoke it takes no expected version, because a
// stale observation must never block a compromise report. The gateway
// is alerted synchronously: a committed compromise with a failed alert
// returns the record alongside ErrDependency, and the event is retried
// from the backlog.
func (s *LifecycleService) MarkCompromised(ctx context.Context, keyID, details, actor string) (*domain.KeyRecord, error) {
	var (
		rec  domain.KeyRecord
		from domain.Status
		now  time.Time
	)

	committed := false
	for attempt := 0; attempt < compromiseRetries; attempt++ {
		var err error
		rec, err = s.Store.Keys().GetKeyRecord(ctx, keyID)
		if err != nil {
			return nil, s.mapStoreErr(err)
		}

		if rec.Status == domain.StatusCompromised {
			return &rec, nil
		}
		if rec.Status.IsTerminal() {
			if attempt > 0 {
				// A concurrent writer reached a terminal state between
				// our read and write. The key is already unusable, so
				// the losing compromise report is a no-op.
				s.Logger.Warn("compromise raced a terminal transition, treating as no-op",
					"key_id", keyID, "status", rec.Status)
				return &rec, nil
			}
			return nil, fmt.Errorf("%w: cannot mark a %s key compromised", ErrInvalidState, rec.Status)
		}

		from = rec.Status
		now = s.Now().UTC()
		rec.Status = domain.StatusCompromised
		rec.CompromisedAt = &now
		rec.RevokedAt = &now
		rec.CompromiseDetails = details

		err = s.Store.Keys().UpdateKeyRecord(ctx, rec, rec.Version)
		if err == nil {
			rec.Version++
			committed = true
			break
		}
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.VersionConflictsTotal.Inc()
			s.Logger.Warn("compromise lost a version race, retrying", "key_id", keyID, "attempt", attempt+1)
			continue
		}
		return nil, s.mapStoreErr(err)
	}
	if !committed {
		return nil, fmt.Errorf("%w: compromise retries exhausted for %s", ErrConflict, keyID)
	}

	s.destroySecret(ctx, rec.SecretRef)
	s.audit(ctx, domain.AuditEntry{
		KeyID:      rec.ID,
		FromStatus: from,
		ToStatus:   domain.StatusCompromised,
		Actor:      actor,
		Reason:     details,
	})
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusCompromised)).Inc()

	event := notify.Event{
		KeyID:      rec.ID,
		Exchange:   rec.Exchange,
		Kind:       notify.KindCompromised,
		Payload:    map[string]any{"details": details},
		OccurredAt: now,
	}
	if err := s.Gateway.Notify(ctx, event); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "error").Inc()
		s.bufferEvent(event)
		s.Logger.Error("compromise alert delivery failed",
			"key_id", rec.ID, "exchange", rec.Exchange, "error", err)
		return &rec, fmt.Errorf("%w: compromise recorded but alert delivery failed: %v", ErrDependency, err)
	}
	metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "ok").Inc()

	s.Logger.Error("key marked compromised", "key_id", rec.ID, "exchange", rec.Exchange, "actor", actor)
	return &rec, nil
}

// expire moves a record past its hard expiry to the terminal expired
// status. Only the scanner calls this; the guard against not-yet-due
// records keeps a misconfigured pass from expiring healthy keys.
func (s *LifecycleService) expire(ctx context.Context, rec domain.KeyRecord) error {
	if rec.Status.IsTerminal() {
		return nil
	}
	now := s.Now().UTC()
	if !rec.IsExpired(now) {
		return fmt.Errorf("%w: key %s has not reached its expiry", ErrInvalidState, rec.ID)
	}

	from := rec.Status
	rec.Status = domain.StatusExpired
	if err := s.Store.Keys().UpdateKeyRecord(ctx, rec, rec.Version); err != nil {
		return s.mapStoreErr(err)
	}

	s.destroySecret(ctx, rec.SecretRef)
	s.audit(ctx, domain.AuditEntry{
		KeyID:      rec.ID,
		FromStatus: from,
		ToStatus:   domain.StatusExpired,
		Actor:      ScannerActor,
		Reason:     "lifetime elapsed",
	})
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusExpired)).Inc()

	s.Logger.Info("key expired", "key_id", rec.ID, "exchange", rec.Exchange)
	return nil
}

// warnExpiring emits one expiry warning per UTC day for a key
// approaching its expiry, recording the warning time on the record so
// restarts and overlapping passes stay deduplicated.
func (s *LifecycleService) warnExpiring(ctx context.Context, rec domain.KeyRecord) error {
	now := s.Now().UTC()
	if rec.WarnedOn(now) {
		return nil
	}

	event := notify.Event{
		KeyID:    rec.ID,
		Exchange: rec.Exchange,
		Kind:     notify.KindExpiring,
		Payload: map[string]any{
			"expires_at": rec.ExpiresAt,
		},
		OccurredAt: now,
	}
	if err := s.Gateway.Notify(ctx, event); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "error").Inc()
		return fmt.Errorf("delivering expiry warning: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "ok").Inc()

	rec.LastWarnedAt = &now
	if err := s.Store.Keys().UpdateKeyRecord(ctx, rec, rec.Version); err != nil {
		// A lost race here means another writer touched the record; the
		// warning was sent, so at worst tomorrow's pass warns again.
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.VersionConflictsTotal.Inc()
			return nil
		}
		return s.mapStoreErr(err)
	}

	s.Logger.Info("expiry warning sent", "key_id", rec.ID, "exchange", rec.Exchange, "expires_at", rec.ExpiresAt)
	return nil
}

// GetKey returns a single record by id.
func (s *LifecycleService) GetKey(ctx context.Context, keyID string) (*domain.KeyRecord, error) {
	rec, err := s.Store.Keys().GetKeyRecord(ctx, keyID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return &rec, nil
}

// ListKeys returns records matching the filter, newest first.
func (s *LifecycleService) ListKeys(ctx context.Context, filter store.ListFilter) ([]domain.KeyRecord, error) {
	if filter.Status != "" && !domain.ValidStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.Store.Keys().ListKeyRecords(ctx, filter)
}

// ListExpiring returns active records expiring within the given number
// of days, soonest first.
func (s *LifecycleService) ListExpiring(ctx context.Context, withinDays int) ([]domain.KeyRecord, error) {
	if withinDays <= 0 {
		return nil, fmt.Errorf("%w: within_days must be positive", ErrValidation)
	}
	cutoff := s.Now().UTC().Add(time.Duration(withinDays) * 24 * time.Hour)
	return s.Store.Keys().ListExpiringKeyRecords(ctx, cutoff)
}

// History returns a key's audit trail in append order.
func (s *LifecycleService) History(ctx context.Context, keyID string) ([]domain.AuditEntry, error) {
	if _, err := s.Store.Keys().GetKeyRecord(ctx, keyID); err != nil {
		return nil, s.mapStoreErr(err)
	}
	return s.Store.Audit().ListAuditEntries(ctx, keyID)
}

// TouchLastUsed records advisory usage reported by the external
// usage-tracking collaborator.
func (s *LifecycleService) TouchLastUsed(ctx context.Context, keyID string) error {
	if err := s.Store.Keys().TouchLastUsed(ctx, keyID, s.Now().UTC()); err != nil {
		return s.mapStoreErr(err)
	}
	return nil
}

// FlushBacklogs retries buffered audit entries and notification events.
// Entries that fail again go back on the buffer in order.
func (s *LifecycleService) FlushBacklogs(ctx context.Context) {
	s.mu.Lock()
	audits := s.auditBacklog
	events := s.notifyBacklog
	s.auditBacklog = nil
	s.notifyBacklog = nil
	s.mu.Unlock()

	var keptAudits []domain.AuditEntry
	for _, entry := range audits {
		if err := s.Store.Audit().AppendAuditEntry(ctx, entry); err != nil {
			keptAudits = append(keptAudits, entry)
		}
	}

	var keptEvents []notify.Event
	for _, event := range events {
		if err := s.Gateway.Notify(ctx, event); err != nil {
			keptEvents = append(keptEvents, event)
		} else {
			metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "ok").Inc()
		}
	}

	s.mu.Lock()
	// Prepend so replayed entries stay ahead of anything buffered while
	// the flush ran.
	s.auditBacklog = append(keptAudits, s.auditBacklog...)
	s.notifyBacklog = append(keptEvents, s.notifyBacklog...)
	depth := len(s.auditBacklog)
	s.mu.Unlock()

	metrics.AuditBacklogDepth.Set(float64(depth))
	if len(audits) > 0 || len(events) > 0 {
		s.Logger.Info("backlog flush completed",
			"audits_retried", len(audits),
			"audits_remaining", len(keptAudits),
			"events_retried", len(events),
			"events_remaining", len(keptEvents),
		)
	}
}

// mintRecord generates a fresh secret, stores it externally and builds
// the active record around the reference and digest.
func (s *LifecycleService) mintRecord(ctx context.Context, exchange, description string, scopes []string, lifetime time.Duration) (domain.KeyRecord, string, error) {
	plaintext, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.KeyRecord{}, "", fmt.Errorf("generating secret: %w", err)
	}

	ref, err := s.Secrets.CreateSecret(ctx, plaintext)
	if err != nil {
		return domain.KeyRecord{}, "", fmt.Errorf("%w: storing secret: %v", ErrDependency, err)
	}

	digest, err := cryptox.DigestSecret(plaintext)
	if err != nil {
		s.destroySecret(ctx, ref)
		return domain.KeyRecord{}, "", fmt.Errorf("digesting secret: %w", err)
	}

	now := s.Now().UTC()
	rec := domain.KeyRecord{
		ID:           idx.New().String(),
		Exchange:     exchange,
		Description:  description,
		SecretRef:    ref,
		SecretDigest: digest,
		Scopes:       scopes,
		Status:       domain.StatusActive,
		Version:      0,
		CreatedAt:    now,
		ExpiresAt:    now.Add(lifetime),
	}
	return rec, plaintext, nil
}

// destroySecret is best effort. A dangling external secret is
// harmless once the record no longer references an authorized status,
// and the secret store can garbage collect on its own schedule.
func (s *LifecycleService) destroySecret(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.Secrets.DestroySecret(ctx, ref); err != nil && !errors.Is(err, secret.ErrNotFound) {
		s.Logger.Warn("secret destroy failed", "ref", ref, "error", err)
	}
}

// audit appends one trail entry, buffering on failure so a flaky audit
// write never rolls back a committed transition.
func (s *LifecycleService) audit(ctx context.Context, entry domain.AuditEntry) {
	entry.ID = idx.New().String()
	entry.CreatedAt = s.Now().UTC()

	if err := s.Store.Audit().AppendAuditEntry(ctx, entry); err != nil {
		s.Logger.Error("audit append failed, buffering for retry",
			"key_id", entry.KeyID, "to_status", entry.ToStatus, "error", err)
		s.mu.Lock()
		s.auditBacklog = append(s.auditBacklog, entry)
		depth := len(s.auditBacklog)
		s.mu.Unlock()
		metrics.AuditBacklogDepth.Set(float64(depth))
	}
}

// notifyAsync delivers a non-critical event, buffering on failure.
func (s *LifecycleService) notifyAsync(ctx context.Context, event notify.Event) {
	if err := s.Gateway.Notify(ctx, event); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "error").Inc()
		s.Logger.Warn("notification delivery failed, buffering for retry",
			"kind", string(event.Kind), "key_id", event.KeyID, "error", err)
		s.bufferEvent(event)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(event.Kind), "ok").Inc()
}

func (s *LifecycleService) bufferEvent(event notify.Event) {
	s.mu.Lock()
	s.notifyBacklog = append(s.notifyBacklog, event)
	s.mu.Unlock()
}

// mapStoreErr translates storage sentinels into service sentinels.
func (s *LifecycleService) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrVersionConflict):
		metrics.VersionConflictsTotal.Inc()
		return fmt.Errorf("%w: concurrent update detected", ErrConflict)
	case errors.Is(err, store.ErrAlreadyExists):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
