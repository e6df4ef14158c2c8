package cdadocument

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
	"github.com/ehr/clinicaldocs/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	// GetByID returns ErrDocumentNotFound for unknown or deleted documents.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update stores r if the stored version still equals r.Version and the
	// stored status is one of from. On success r.Version is incremented.
	// A failed check returns ErrStatusConflict.
	Update(ctx context.Context, r *Record, from ...ccda.Status) error
	// SoftDelete marks the document deleted if its status is one of from,
	// else returns ErrStatusConflict.
	SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string, from ...ccda.Status) error
	// SetValidationErrors stores errs without bumping the version. It
	// returns ErrStatusConflict if the document changed since version.
	SetValidationErrors(ctx context.Context, id uuid.UUID, version int, errs []string) error
	Search(ctx context.Context, params SearchParams, page pagination.Params) ([]*Record, int, error)
	ListByStatus(ctx context.Context, status ccda.Status, limit, offset int) ([]*Record, int, error)
}

// TextCache holds serialized document text keyed by record id.
type TextCache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error)
	Set(ctx context.Context, id uuid.UUID, text []byte) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}
