package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinwave/tradecore/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Entries are
// append-only; the detail payload is stored as JSONB.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit entry. A nil detail is stored as SQL NULL.
func (s *AuditStore) Log(ctx context.Context, e domain.AuditEntry) error {
	var detail []byte
	if e.Detail != nil {
		var err error
		detail, err = json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("postgres: audit %s: marshal detail: %w", e.Action, err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (user_id, order_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		e.UserID, e.OrderID, e.Action, detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: %w", e.Action, err)
	}
	return nil
}

// List returns the newest entries for an order, most recent first.
func (s *AuditStore) List(ctx context.Context, orderID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, order_id, action, detail, created_at
		FROM audit_log WHERE order_id = $1
		ORDER BY id DESC LIMIT $2`, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &e.Action, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit for order %s: %w", orderID, err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode audit detail for order %s: %w", orderID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListBefore returns all entries recorded strictly before the cutoff, oldest
// first, for archival.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, order_id, action, detail, created_at
		FROM audit_log WHERE created_at < $1
		ORDER BY id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &e.Action, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode audit detail %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.AuditStore = (*AuditStore)(nil)
