package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
)

type keysRepo struct {
	db dbtx
}

const keyRecordColumns = `
	id, exchange, description, secret_ref, secret_digest, scopes, status,
	version, created_at, expires_at, rotated_at, grace_period_ends,
	revoked_at, revocation_reason, compromised_at, compromise_details,
	last_used_at, last_warned_at, successor_id, predecessor_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyRecord(row rowScanner) (domain.KeyRecord, error) {
	var (
		rec           domain.KeyRecord
		scopes        string
		status        string
		rotatedAt     sql.NullTime
		graceEnds     sql.NullTime
		revokedAt     sql.NullTime
		compromisedAt sql.NullTime
		lastUsedAt    sql.NullTime
		lastWarnedAt  sql.NullTime
	)

	err := row.Scan(
		&rec.ID,
		&rec.Exchange,
		&rec.Description,
		&rec.SecretRef,
		&rec.SecretDigest,
		&scopes,
		&status,
		&rec.Version,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rotatedAt,
		&graceEnds,
		&revokedAt,
		&rec.RevocationReason,
		&compromisedAt,
		&rec.CompromiseDetails,
		&lastUsedAt,
		&lastWarnedAt,
		&rec.SuccessorID,
		&rec.PredecessorID,
	)
	if err != nil {
		return domain.KeyRecord{}, err
	}

	rec.Scopes = splitScopes(scopes)
	rec.Status = domain.Status(status)
	rec.RotatedAt = mapNullTimePtr(rotatedAt)
	rec.GracePeriodEnds = mapNullTimePtr(graceEnds)
	rec.RevokedAt = mapNullTimePtr(revokedAt)
	rec.CompromisedAt = mapNullTimePtr(compromisedAt)
	rec.LastUsedAt = mapNullTimePtr(lastUsedAt)
	rec.LastWarnedAt = mapNullTimePtr(lastWarnedAt)
	return rec, nil
}

func collectKeyRecords(rows *sql.Rows) ([]domain.KeyRecord, error) {
	defer rows.Close()

	var recs []domain.KeyRecord
	for rows.Next() {
		rec, err := scanKeyRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *keysRepo) CreateKeyRecord(ctx context.Context, rec domain.KeyRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO key_records (
			id, exchange, description, secret_ref, secret_digest, scopes,
			status, version, created_at, expires_at, rotated_at,
			grace_period_ends, revoked_at, revocation_reason,
			compromised_at, compromise_details, last_used_at,
			last_warned_at, successor_id, predecessor_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Exchange,
		rec.Description,
		rec.SecretRef,
		rec.SecretDigest,
		joinScopes(rec.Scopes),
		string(rec.Status),
		rec.Version,
		rec.CreatedAt,
		rec.ExpiresAt,
		mapOptionalTime(rec.RotatedAt),
		mapOptionalTime(rec.GracePeriodEnds),
		mapOptionalTime(rec.RevokedAt),
		rec.RevocationReason,
		mapOptionalTime(rec.CompromisedAt),
		rec.CompromiseDetails,
		mapOptionalTime(rec.LastUsedAt),
		mapOptionalTime(rec.LastWarnedAt),
		rec.SuccessorID,
		rec.PredecessorID,
	)
	return mapConstraint(err)
}

func (r *keysRepo) GetKeyRecord(ctx context.Context, id string) (domain.KeyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyRecordColumns+` FROM key_records WHERE id = ?`, id)

	rec, err := scanKeyRecord(row)
	if err != nil {
		return domain.KeyRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *keysRepo) GetActiveKeyRecord(ctx context.Context, exchange string) (domain.KeyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyRecordColumns+` FROM key_records WHERE exchange = ? AND status = 'active'`,
		exchange)

	rec, err := scanKeyRecord(row)
	if err != nil {
		return domain.KeyRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *keysRepo) ListKeyRecords(ctx context.Context, filter store.ListFilter) ([]domain.KeyRecord, error) {
	query := `SELECT ` + keyRecordColumns + ` FROM key_records WHERE 1=1`
	args := []any{}

	if filter.Exchange != "" {
		query += ` AND exchange = ?`
		args = append(args, filter.Exchange)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectKeyRecords(rows)
}

func (r *keysRepo) ListExpiringKeyRecords(ctx context.Context, cutoff time.Time) ([]domain.KeyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+keyRecordColumns+` FROM key_records
		WHERE status IN ('active', 'grace') AND expires_at <= ?
		ORDER BY expires_at ASC`,
		cutoff)
	if err != nil {
		return nil, err
	}
	return collectKeyRecords(rows)
}

func (r *keysRepo) ListGraceElapsedKeyRecords(ctx context.Context, now time.Time) ([]domain.KeyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+keyRecordColumns+` FROM key_records
		WHERE status = 'grace' AND grace_period_ends IS NOT NULL AND grace_period_ends <= ?
		ORDER BY grace_period_ends ASC`,
		now)
	if err != nil {
		return nil, err
	}
	return collectKeyRecords(rows)
}

// UpdateKeyRecord is the compare-and-swap write every mutation goes
// through: the UPDATE only matches when the stored version still equals
// expectedVersion, and bumps the version in the same statement.
func (r *keysRepo) UpdateKeyRecord(ctx context.Context, rec domain.KeyRecord, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE key_records SET
			description = ?,
			secret_ref = ?,
			secret_digest = ?,
			scopes = ?,
			status = ?,
			version = version + 1,
			expires_at = ?,
			rotated_at = ?,
			grace_period_ends = ?,
			revoked_at = ?,
			revocation_reason = ?,
			compromised_at = ?,
			compromise_details = ?,
			last_used_at = ?,
			last_warned_at = ?,
			successor_id = ?,
			predecessor_id = ?
		WHERE id = ? AND version = ?`,
		rec.Description,
		rec.SecretRef,
		rec.SecretDigest,
		joinScopes(rec.Scopes),
		string(rec.Status),
		rec.ExpiresAt,
		mapOptionalTime(rec.RotatedAt),
		mapOptionalTime(rec.GracePeriodEnds),
		mapOptionalTime(rec.RevokedAt),
		rec.RevocationReason,
		mapOptionalTime(rec.CompromisedAt),
		rec.CompromiseDetails,
		mapOptionalTime(rec.LastUsedAt),
		mapOptionalTime(rec.LastWarnedAt),
		rec.SuccessorID,
		rec.PredecessorID,
		rec.ID,
		expectedVersion,
	)
	if err != nil {
		return mapConstraint(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a stale version from an unknown id.
	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM key_records WHERE id = ?`, rec.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func (r *keysRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE key_records SET last_used_at = ?, version = version + 1 WHERE id = ?`,
		at, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
