package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coinwave/tradecore/internal/domain"
)

// defaultArchiveAge is how old a settled order must be before the default
// export run picks it up.
const defaultArchiveAge = 30 * 24 * time.Hour

// ExportService pushes settled orders and audit history to cold storage.
// Archived rows stay in the primary store; nothing financial is deleted.
type ExportService struct {
	archiver domain.Archiver
	logger   *slog.Logger
}

// NewExportService creates an ExportService backed by the given archiver.
func NewExportService(archiver domain.Archiver, logger *slog.Logger) *ExportService {
	return &ExportService{archiver: archiver, logger: logger}
}

// Run archives settled orders and audit entries older than the cutoff. A
// zero cutoff defaults to 30 days ago. It returns the archived counts.
func (s *ExportService) Run(ctx context.Context, before time.Time) (orders, audit int64, err error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(-defaultArchiveAge)
	}

	orders, err = s.archiver.ArchiveOrders(ctx, before)
	if err != nil {
		return 0, 0, fmt.Errorf("export_service: archive orders: %w", err)
	}

	audit, err = s.archiver.ArchiveAudit(ctx, before)
	if err != nil {
		return orders, 0, fmt.Errorf("export_service: archive audit: %w", err)
	}

	s.logger.InfoContext(ctx, "export_service: archive run complete",
		slog.Time("before", before),
		slog.Int64("orders", orders),
		slog.Int64("audit_entries", audit),
	)
	return orders, audit, nil
}
