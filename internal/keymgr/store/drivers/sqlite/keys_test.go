package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newActiveRecord(exchange string) domain.KeyRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.KeyRecord{
		ID:          idx.New().String(),
		Exchange:    exchange,
		Description: "test key",
		SecretRef:   "ref-" + idx.New().String(),
		Status:      domain.StatusActive,
		Version:     0,
		CreatedAt:   now,
		ExpiresAt:   now.Add(90 * 24 * time.Hour),
	}
}

func TestCreateAndGetKeyRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := newActiveRecord("binance")
	rec.Scopes = []string{"trade", "read"}
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, rec))

	got, err := st.Keys().GetKeyRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Exchange, got.Exchange)
	require.Equal(t, domain.StatusActive, got.Status)
	require.Equal(t, int64(0), got.Version)
	require.Equal(t, []string{"trade", "read"}, got.Scopes)
	require.Nil(t, got.RevokedAt)

	_, err = st.Keys().GetKeyRecord(ctx, idx.New().String())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestActivePerExchangeIndex(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Keys().CreateKeyRecord(ctx, newActiveRecord("kraken")))

	// Second active record for the same exchange hits the partial
	// unique index.
	err := st.Keys().CreateKeyRecord(ctx, newActiveRecord("kraken"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	// A non-active record for the same exchange is fine.
	revoked := newActiveRecord("kraken")
	now := time.Now().UTC()
	revoked.Status = domain.StatusRevoked
	revoked.RevokedAt = &now
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, revoked))

	// And another exchange is independent.
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, newActiveRecord("binance")))
}

func TestUpdateKeyRecordCompareAndSwap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := newActiveRecord("binance")
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, rec))

	now := time.Now().UTC().Truncate(time.Second)
	rec.Status = domain.StatusRevoked
	rec.RevokedAt = &now
	rec.RevocationReason = "manual"

	require.NoError(t, st.Keys().UpdateKeyRecord(ctx, rec, 0))

	got, err := st.Keys().GetKeyRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRevoked, got.Status)
	require.Equal(t, int64(1), got.Version)
	require.Equal(t, "manual", got.RevocationReason)

	t.Run("stale version is rejected and record unchanged", func(t *testing.T) {
		rec.RevocationReason = "should not land"
		err := st.Keys().UpdateKeyRecord(ctx, rec, 0)
		require.ErrorIs(t, err, store.ErrVersionConflict)

		got, err := st.Keys().GetKeyRecord(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "manual", got.RevocationReason)
		require.Equal(t, int64(1), got.Version)
	})

	t.Run("unknown id reports not found", func(t *testing.T) {
		missing := newActiveRecord("binance")
		err := st.Keys().UpdateKeyRecord(ctx, missing, 0)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestListKeyRecordsFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := newActiveRecord("binance")
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, a))

	b := newActiveRecord("kraken")
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, b))

	now := time.Now().UTC()
	c := newActiveRecord("binance")
	c.Status = domain.StatusRevoked
	c.RevokedAt = &now
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, c))

	all, err := st.Keys().ListKeyRecords(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	binance, err := st.Keys().ListKeyRecords(ctx, store.ListFilter{Exchange: "binance"})
	require.NoError(t, err)
	require.Len(t, binance, 2)

	active, err := st.Keys().ListKeyRecords(ctx, store.ListFilter{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 2)

	both, err := st.Keys().ListKeyRecords(ctx, store.ListFilter{Exchange: "binance", Status: domain.StatusRevoked})
	require.NoError(t, err)
	require.Len(t, both, 1)
	require.Equal(t, c.ID, both[0].ID)
}

func TestExpiryAndGraceQueries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	expiring := newActiveRecord("binance")
	expiring.ExpiresAt = now.Add(24 * time.Hour)
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, expiring))

	healthy := newActiveRecord("kraken")
	healthy.ExpiresAt = now.Add(60 * 24 * time.Hour)
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, healthy))

	graceDone := newActiveRecord("okx")
	graceDone.Status = domain.StatusGrace
	ends := now.Add(-time.Hour)
	graceDone.GracePeriodEnds = &ends
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, graceDone))

	graceRunning := newActiveRecord("bybit")
	graceRunning.Status = domain.StatusGrace
	later := now.Add(12 * time.Hour)
	graceRunning.GracePeriodEnds = &later
	graceRunning.ExpiresAt = now.Add(48 * time.Hour)
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, graceRunning))

	// Grace records count against expiry too; only the far-out active
	// record stays clear of the cutoff.
	soon, err := st.Keys().ListExpiringKeyRecords(ctx, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, soon, 2)
	require.Equal(t, expiring.ID, soon[0].ID)
	require.Equal(t, graceRunning.ID, soon[1].ID)

	elapsed, err := st.Keys().ListGraceElapsedKeyRecords(ctx, now)
	require.NoError(t, err)
	require.Len(t, elapsed, 1)
	require.Equal(t, graceDone.ID, elapsed[0].ID)
}

func TestTouchLastUsedBumpsVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := newActiveRecord("binance")
	require.NoError(t, st.Keys().CreateKeyRecord(ctx, rec))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.Keys().TouchLastUsed(ctx, rec.ID, at))

	got, err := st.Keys().GetKeyRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	require.Equal(t, int64(1), got.Version)

	require.ErrorIs(t, st.Keys().TouchLastUsed(ctx, idx.New().String(), at), store.ErrNotFound)
}

func TestAuditEntriesAppendOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	keyID := idx.New().String()
	first := domain.AuditEntry{
		ID:        idx.New().String(),
		KeyID:     keyID,
		ToStatus:  domain.StatusActive,
		Actor:     "ops@fluxtrade",
		Reason:    "issued",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	second := domain.AuditEntry{
		ID:         idx.New().String(),
		KeyID:      keyID,
		FromStatus: domain.StatusActive,
		ToStatus:   domain.StatusGrace,
		Actor:      "ops@fluxtrade",
		Reason:     "rotated",
		CreatedAt:  time.Now().UTC().Truncate(time.Second).Add(time.Second),
	}

	require.NoError(t, st.Audit().AppendAuditEntry(ctx, first))
	require.NoError(t, st.Audit().AppendAuditEntry(ctx, second))

	entries, err := st.Audit().ListAuditEntries(ctx, keyID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.Status(""), entries[0].FromStatus)
	require.Equal(t, domain.StatusActive, entries[0].ToStatus)
	require.Equal(t, domain.StatusGrace, entries[1].ToStatus)

	other, err := st.Audit().ListAuditEntries(ctx, idx.New().String())
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := newActiveRecord("binance")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Keys().CreateKeyRecord(ctx, rec); err != nil {
			return err
		}
		return context.Canceled // force rollback
	})
	require.Error(t, err)

	_, err = st.Keys().GetKeyRecord(ctx, rec.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
