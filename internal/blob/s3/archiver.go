package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coinwave/tradecore/internal/domain"
)

// Narrow store interfaces: the archiver only needs the time-ranged queries
// it actually calls, not the full domain store interfaces. The Postgres
// stores satisfy them implicitly.

// OrderArchiveStore reads settled orders for archival.
type OrderArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// AuditArchiveStore reads audit entries for archival.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for settled
// records, serializing them to JSONL, and uploading the result to S3.
//
// Orders are a financial record and are never deleted from the primary
// store; archives are an additional cold copy, not a migration.
type ArchiveImpl struct {
	writer domain.BlobWriter
	orders OrderArchiveStore
	audit  AuditArchiveStore
	log    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, orders OrderArchiveStore, audit AuditArchiveStore, log domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		orders: orders,
		audit:  audit,
		log:    log,
	}
}

// ArchiveOrders uploads all orders settled before the cutoff as JSONL at
// archive/orders/YYYY-MM.jsonl and records the archival in the audit log.
// It returns the number of archived records.
func (a *ArchiveImpl) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	path := archivePath("orders", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	count := int64(len(orders))
	if err := a.log.Log(ctx, domain.AuditEntry{
		Action: "archive.orders",
		Detail: map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		},
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive orders audit log: %w", err)
	}
	return count, nil
}

// ArchiveAudit uploads all audit entries recorded before the cutoff as JSONL
// at archive/audit/YYYY-MM.jsonl. It returns the number of archived records.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	return int64(len(entries)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
