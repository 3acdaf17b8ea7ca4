package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
	"github.com/fluxtrade/keymgr/internal/keymgr/notify"
	"github.com/fluxtrade/keymgr/internal/keymgr/secret"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/internal/keymgr/store/drivers/sqlite"
	"github.com/fluxtrade/keymgr/pkg/cryptox"
	"github.com/fluxtrade/keymgr/pkg/idx"
)

// captureGateway records delivered events and can simulate an outage.
type captureGateway struct {
	mu     sync.Mutex
	fail   bool
	events []notify.Event
}

func (g *captureGateway) Notify(ctx context.Context, event notify.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("gateway down")
	}
	g.events = append(g.events, event)
	return nil
}

func (g *captureGateway) setFail(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

func (g *captureGateway) kinds() []notify.Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	kinds := make([]notify.Kind, len(g.events))
	for i, e := range g.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func expectVersion(v int64) *int64 {
	return &v
}

func newTestService(t *testing.T) (*LifecycleService, *captureGateway) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	gw := &captureGateway{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLifecycleService(st, secret.NewMemoryStore(), gw, logger, 90*24*time.Hour), gw
}

func TestIssueCreatesActiveKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Issue(ctx, IssueKeyRequest{
		Exchange:    "binance",
		Description: "spot trading",
		Scopes:      []string{"trade", "read"},
		Actor:       "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Secret)
	require.Equal(t, domain.StatusActive, resp.Record.Status)
	require.Equal(t, int64(0), resp.Record.Version)
	require.Equal(t, []string{"trade", "read"}, resp.Record.Scopes)

	// The plaintext secret is returned exactly once; the record only
	// carries the reference and the digest.
	require.NoError(t, cryptox.VerifySecret(resp.Secret, resp.Record.SecretDigest))

	stored, err := svc.Secrets.FetchSecret(ctx, resp.Record.SecretRef)
	require.NoError(t, err)
	require.Equal(t, resp.Secret, stored)

	history, err := svc.History(ctx, resp.Record.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.StatusActive, history[0].ToStatus)
	require.Equal(t, "alice", history[0].Actor)
}

func TestIssueRejectsSecondActiveKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "bob"})
	require.ErrorIs(t, err, ErrConflict)

	// A different exchange is unaffected.
	_, err = svc.Issue(ctx, IssueKeyRequest{Exchange: "kraken", Actor: "bob"})
	require.NoError(t, err)
}

func TestIssueValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("exchange required", func(t *testing.T) {
		_, err := svc.Issue(ctx, IssueKeyRequest{Actor: "alice"})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("negative lifetime rejected", func(t *testing.T) {
		_, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Lifetime: -time.Hour})
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestRotateReplacesActiveKey(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, issued.Record.ID, expectVersion(issued.Record.Version), 24*time.Hour, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, rotated.Secret)
	require.NotEqual(t, issued.Secret, rotated.Secret)

	// The predecessor's version bumps with its transition; the successor
	// starts fresh at zero.
	require.Equal(t, issued.Record.Version+1, rotated.Predecessor.Version)
	require.Equal(t, int64(0), rotated.Successor.Version)

	require.Equal(t, domain.StatusGrace, rotated.Predecessor.Status)
	require.NotNil(t, rotated.Predecessor.GracePeriodEnds)
	require.Equal(t, rotated.Successor.ID, rotated.Predecessor.SuccessorID)
	require.Equal(t, issued.Record.ID, rotated.Successor.PredecessorID)
	require.Equal(t, domain.StatusActive, rotated.Successor.Status)

	// Exactly one active key per exchange, before and after.
	active, err := svc.ListKeys(ctx, store.ListFilter{Exchange: "binance", Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, rotated.Successor.ID, active[0].ID)

	require.Contains(t, gw.kinds(), notify.KindRotated)

	// A second issue is still blocked by the successor.
	_, err = svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "bob"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRotateRequiresActiveStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, issued.Record.ID, nil, time.Hour, "alice")
	require.NoError(t, err)

	t.Run("grace key cannot rotate again", func(t *testing.T) {
		_, err := svc.Rotate(ctx, rotated.Predecessor.ID, nil, time.Hour, "alice")
		require.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := svc.Rotate(ctx, idx.New().String(), nil, time.Hour, "alice")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("negative grace period", func(t *testing.T) {
		_, err := svc.Rotate(ctx, rotated.Successor.ID, nil, -time.Minute, "alice")
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	first, err := svc.Revoke(ctx, issued.Record.ID, nil, "decommissioned", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRevoked, first.Record.Status)
	require.Equal(t, "decommissioned", first.Record.RevocationReason)
	require.NotNil(t, first.Record.RevokedAt)
	require.True(t, first.ActiveRevoked)

	// Second revoke is a no-op: same record, no new audit entry.
	second, err := svc.Revoke(ctx, issued.Record.ID, nil, "different reason", "bob")
	require.NoError(t, err)
	require.Equal(t, "decommissioned", second.Record.RevocationReason)
	require.Equal(t, first.Record.Version, second.Record.Version)
	require.False(t, second.ActiveRevoked)

	history, err := svc.History(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.Len(t, history, 2) // issue + revoke

	require.Equal(t, []notify.Kind{notify.KindRevoked}, gw.kinds())

	// The external secret is destroyed on revocation.
	_, err = svc.Secrets.FetchSecret(ctx, issued.Record.SecretRef)
	require.ErrorIs(t, err, secret.ErrNotFound)
}

func TestStaleExpectedVersionIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	// A concurrent writer bumps the version past the caller's read. The
	// stale observation is version zero, which must still be validated,
	// not treated as absent.
	require.NoError(t, svc.TouchLastUsed(ctx, issued.Record.ID))

	_, err = svc.Rotate(ctx, issued.Record.ID, expectVersion(issued.Record.Version), time.Hour, "alice")
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.Revoke(ctx, issued.Record.ID, expectVersion(issued.Record.Version), "cleanup", "alice")
	require.ErrorIs(t, err, ErrConflict)

	// With the current version both operations go through.
	rec, err := svc.GetKey(ctx, issued.Record.ID)
	require.NoError(t, err)
	_, err = svc.Rotate(ctx, rec.ID, expectVersion(rec.Version), time.Hour, "alice")
	require.NoError(t, err)
}

func TestRevokeTerminalStatesIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("compromised key", func(t *testing.T) {
		issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
		require.NoError(t, err)
		marked, err := svc.MarkCompromised(ctx, issued.Record.ID, "leaked", "alice")
		require.NoError(t, err)

		resp, err := svc.Revoke(ctx, issued.Record.ID, nil, "cleanup", "alice")
		require.NoError(t, err)
		require.Equal(t, domain.StatusCompromised, resp.Record.Status)
		require.Equal(t, marked.Version, resp.Record.Version)
		require.Equal(t, "leaked", resp.Record.CompromiseDetails)

		history, err := svc.History(ctx, issued.Record.ID)
		require.NoError(t, err)
		require.Len(t, history, 2) // issue + compromise, no revoke entry
	})

	t.Run("expired key", func(t *testing.T) {
		issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "kraken", Lifetime: time.Hour, Actor: "alice"})
		require.NoError(t, err)

		future := time.Now().UTC().Add(2 * time.Hour)
		svc.Now = func() time.Time { return future }
		rec, err := svc.GetKey(ctx, issued.Record.ID)
		require.NoError(t, err)
		require.NoError(t, svc.expire(ctx, *rec))

		resp, err := svc.Revoke(ctx, issued.Record.ID, nil, "cleanup", "alice")
		require.NoError(t, err)
		require.Equal(t, domain.StatusExpired, resp.Record.Status)

		history, err := svc.History(ctx, issued.Record.ID)
		require.NoError(t, err)
		require.Len(t, history, 2) // issue + expire, no revoke entry
	})
}

func TestMarkCompromisedAlertsSynchronously(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	rec, err := svc.MarkCompromised(ctx, issued.Record.ID, "found in public gist", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompromised, rec.Status)
	require.NotNil(t, rec.CompromisedAt)
	require.Equal(t, rec.CompromisedAt, rec.RevokedAt)
	require.Equal(t, "found in public gist", rec.CompromiseDetails)

	require.Equal(t, []notify.Kind{notify.KindCompromised}, gw.kinds())

	// Idempotent on repeat.
	again, err := svc.MarkCompromised(ctx, issued.Record.ID, "other details", "bob")
	require.NoError(t, err)
	require.Equal(t, "found in public gist", again.CompromiseDetails)
}

func TestMarkCompromisedGatewayOutage(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	gw.setFail(true)
	rec, err := svc.MarkCompromised(ctx, issued.Record.ID, "leaked", "alice")
	require.ErrorIs(t, err, ErrDependency)

	// The transition committed despite the failed alert.
	require.NotNil(t, rec)
	require.Equal(t, domain.StatusCompromised, rec.Status)
	stored, err := svc.GetKey(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompromised, stored.Status)

	// The alert replays once the gateway recovers.
	gw.setFail(false)
	svc.FlushBacklogs(ctx)
	require.Equal(t, []notify.Kind{notify.KindCompromised}, gw.kinds())
}

// racingStore simulates a concurrent writer landing between a read and
// its compare-and-swap write. The writer touches last_used_at by
// default; with revoke set it commits a competing revocation instead.
type racingStore struct {
	store.Store
	races  int
	revoke bool
}

func (s *racingStore) Keys() store.Keys {
	return &racingKeys{Keys: s.Store.Keys(), parent: s}
}

type racingKeys struct {
	store.Keys
	parent *racingStore
}

func (k *racingKeys) UpdateKeyRecord(ctx context.Context, rec domain.KeyRecord, expectedVersion int64) error {
	if k.parent.races > 0 {
		k.parent.races--
		if k.parent.revoke {
			cur, err := k.Keys.GetKeyRecord(ctx, rec.ID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			cur.Status = domain.StatusRevoked
			cur.RevokedAt = &now
			cur.RevocationReason = "concurrent revoke"
			if err := k.Keys.UpdateKeyRecord(ctx, cur, cur.Version); err != nil {
				return err
			}
		} else if err := k.Keys.TouchLastUsed(ctx, rec.ID, time.Now().UTC()); err != nil {
			return err
		}
	}
	return k.Keys.UpdateKeyRecord(ctx, rec, expectedVersion)
}

func TestMarkCompromisedRetriesVersionRaces(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	t.Run("wins after losing one race", func(t *testing.T) {
		svc.Store = &racingStore{Store: svc.Store, races: 1}
		rec, err := svc.MarkCompromised(ctx, issued.Record.ID, "leaked", "alice")
		require.NoError(t, err)
		require.Equal(t, domain.StatusCompromised, rec.Status)
	})
}

func TestMarkCompromisedLosesToConcurrentRevoke(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	// A revocation commits between the compromise's read and write. The
	// retry re-read finds the terminal record and the losing compromise
	// becomes a no-op success.
	svc.Store = &racingStore{Store: svc.Store, races: 1, revoke: true}
	rec, err := svc.MarkCompromised(ctx, issued.Record.ID, "leaked", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRevoked, rec.Status)
	require.Empty(t, rec.CompromiseDetails)

	// No compromise audit entry or alert was produced.
	history, err := svc.History(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.Len(t, history, 1) // issue only; the racing writer bypassed the audit trail
	require.Empty(t, gw.kinds())
}

func TestMarkCompromisedGivesUpAfterBoundedRetries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	svc.Store = &racingStore{Store: svc.Store, races: compromiseRetries}
	_, err = svc.MarkCompromised(ctx, issued.Record.ID, "leaked", "alice")
	require.ErrorIs(t, err, ErrConflict)
}

func TestListExpiringValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ListExpiring(ctx, 0)
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.ListExpiring(ctx, -3)
	require.ErrorIs(t, err, ErrValidation)
}

func TestListExpiringReturnsSoonestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Lifetime: 48 * time.Hour, Actor: "alice"})
	require.NoError(t, err)
	b, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "kraken", Lifetime: 24 * time.Hour, Actor: "alice"})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueKeyRequest{Exchange: "okx", Lifetime: 60 * 24 * time.Hour, Actor: "alice"})
	require.NoError(t, err)

	expiring, err := svc.ListExpiring(ctx, 7)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	require.Equal(t, b.Record.ID, expiring[0].ID)
	require.Equal(t, a.Record.ID, expiring[1].ID)
}

func TestHistoryUnknownKey(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.History(context.Background(), idx.New().String())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryCoversRotationChain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	rotated, err := svc.Rotate(ctx, issued.Record.ID, nil, time.Hour, "bob")
	require.NoError(t, err)

	predecessor, err := svc.History(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.Len(t, predecessor, 2)
	require.Equal(t, domain.StatusActive, predecessor[0].ToStatus)
	require.Equal(t, domain.StatusGrace, predecessor[1].ToStatus)
	require.Equal(t, "bob", predecessor[1].Actor)

	successor, err := svc.History(ctx, rotated.Successor.ID)
	require.NoError(t, err)
	require.Len(t, successor, 1)
	require.Equal(t, "issued by rotation", successor[0].Reason)
}

func TestTouchLastUsed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, IssueKeyRequest{Exchange: "binance", Actor: "alice"})
	require.NoError(t, err)

	require.NoError(t, svc.TouchLastUsed(ctx, issued.Record.ID))

	rec, err := svc.GetKey(ctx, issued.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsedAt)
	require.Equal(t, issued.Record.Version+1, rec.Version)

	require.ErrorIs(t, svc.TouchLastUsed(ctx, idx.New().String()), ErrNotFound)
}
