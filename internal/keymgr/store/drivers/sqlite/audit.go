package sqlite

import (
	"context"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) AppendAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, key_id, from_status, to_status, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.KeyID,
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Actor,
		entry.Reason,
		entry.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *auditRepo) ListAuditEntries(ctx context.Context, keyID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, key_id, from_status, to_status, actor, reason, created_at
		FROM audit_entries
		WHERE key_id = ?
		ORDER BY created_at ASC, id ASC`,
		keyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e          domain.AuditEntry
			fromStatus string
			toStatus   string
		)
		if err := rows.Scan(&e.ID, &e.KeyID, &fromStatus, &toStatus, &e.Actor, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FromStatus = domain.Status(fromStatus)
		e.ToStatus = domain.Status(toStatus)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
