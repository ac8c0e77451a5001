package web

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

func TestToImportErrorResponse_Resolution(t *testing.T) {
	resolvedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	unresolved := toImportErrorResponse(domain.ImportError{
		ID:    uuid.New(),
		JobID: uuid.New(),
		Kind:  domain.ErrorUnmatched,
	})
	if unresolved.Resolved || unresolved.ResolvedAt != nil {
		t.Errorf("unresolved error = resolved %v, resolved_at %v", unresolved.Resolved, unresolved.ResolvedAt)
	}

	resolved := toImportErrorResponse(domain.ImportError{
		ID:         uuid.New(),
		JobID:      uuid.New(),
		Kind:       domain.ErrorUnmatched,
		Resolved:   true,
		ResolvedBy: "ops",
		ResolvedAt: resolvedAt,
	})
	if resolved.ResolvedBy != "ops" {
		t.Errorf("resolved_by = %q, want ops", resolved.ResolvedBy)
	}
	if resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(resolvedAt) {
		t.Errorf("resolved_at = %v, want %v", resolved.ResolvedAt, resolvedAt)
	}
}
