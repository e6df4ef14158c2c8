package cdadocument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
	"github.com/ehr/clinicaldocs/internal/platform/db"
	"github.com/ehr/clinicaldocs/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const docCols = `id, kind, patient_id, patient_name, medical_record_id, source_id,
	content, text, status, validation_errors, signed_by, signed_at,
	created_by, updated_by, version, created_at, updated_at`

func (r *repoPG) scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		kind    string
		status  string
		text    string
		content []byte
		errs    []string
	)
	err := row.Scan(&rec.ID, &kind, &rec.PatientID, &rec.PatientName, &rec.MedicalRecordID, &rec.SourceID,
		&content, &text, &status, &errs, &rec.SignedBy, &rec.SignedAt,
		&rec.CreatedBy, &rec.UpdatedBy, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	if rec.Kind, err = ParseKind(kind); err != nil {
		return nil, fmt.Errorf("document %s: %w", rec.ID, err)
	}
	st, err := ccda.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", rec.ID, err)
	}
	var c ccda.Content
	if err := json.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("document %s: decode content: %w", rec.ID, err)
	}
	rec.Document = ccda.Restore(c, st, errs)
	rec.Text = []byte(text)
	return &rec, nil
}

func (r *repoPG) scanRecords(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	content, err := json.Marshal(rec.Document.Content())
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	h := rec.Document.Header()
	rec.Version = 1
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO cda_document (id, document_root, document_extension, kind, title, status,
			patient_id, patient_name, medical_record_id, source_id,
			content, text, validation_errors, created_by, version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rec.ID, h.ID.Root, h.ID.Extension, rec.Kind.String(), h.Title, rec.Status().String(),
		rec.PatientID, rec.PatientName, rec.MedicalRecordID, rec.SourceID,
		content, string(rec.Text), rec.Document.ValidationErrors(), rec.CreatedBy, rec.Version, rec.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+docCols+` FROM cda_document WHERE id = $1 AND deleted_at IS NULL`, id))
}

func statusNames(from []ccda.Status) []string {
	out := make([]string, len(from))
	for i, s := range from {
		out[i] = s.String()
	}
	return out
}

func (r *repoPG) Update(ctx context.Context, rec *Record, from ...ccda.Status) error {
	content, err := json.Marshal(rec.Document.Content())
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cda_document SET title=$4, status=$5, patient_name=$6, content=$7, text=$8,
			validation_errors=$9, signed_by=$10, signed_at=$11, updated_by=$12, updated_at=$13,
			version = version + 1
		WHERE id = $1 AND version = $2 AND status = ANY($3) AND deleted_at IS NULL`,
		rec.ID, rec.Version, statusNames(from),
		rec.Document.Header().Title, rec.Status().String(), rec.PatientName, content, string(rec.Text),
		rec.Document.ValidationErrors(), rec.SignedBy, rec.SignedAt, rec.UpdatedBy, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflict(ctx, rec.ID)
	}
	rec.Version++
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string, from ...ccda.Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cda_document SET deleted_at = NOW(), deleted_by = $2, version = version + 1
		WHERE id = $1 AND status = ANY($3) AND deleted_at IS NULL`,
		id, deletedBy, statusNames(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflict(ctx, id)
	}
	return nil
}

func (r *repoPG) SetValidationErrors(ctx context.Context, id uuid.UUID, version int, errs []string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cda_document SET validation_errors = $3
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL`,
		id, version, errs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflict(ctx, id)
	}
	return nil
}

// conflict explains a conditional write that matched no row.
func (r *repoPG) conflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cda_document WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrDocumentNotFound
	}
	return ErrStatusConflict
}

func (r *repoPG) Search(ctx context.Context, params SearchParams, page pagination.Params) ([]*Record, int, error) {
	qb := db.NewSearchQuery("cda_document", docCols)
	qb.Add("deleted_at IS NULL")
	if params.PatientID != nil {
		qb.Eq("patient_id", *params.PatientID)
	}
	if params.Kind != nil {
		qb.Eq("kind", params.Kind.String())
	}
	if params.Status != nil {
		qb.Eq("status", params.Status.String())
	}
	if params.From != nil {
		qb.Since("created_at", *params.From)
	}
	if before := params.CreatedBefore(); before != nil {
		qb.Before("created_at", *before)
	}
	if kw := strings.TrimSpace(params.Keyword); kw != "" {
		qb.Contains(kw, "patient_name", "document_extension")
	}
	qb.OrderBy("created_at DESC, id DESC")

	return r.page(ctx, qb, page.Limit, page.Offset)
}

func (r *repoPG) ListByStatus(ctx context.Context, status ccda.Status, limit, offset int) ([]*Record, int, error) {
	qb := db.NewSearchQuery("cda_document", docCols)
	qb.Add("deleted_at IS NULL")
	qb.Eq("status", status.String())
	qb.OrderBy("created_at ASC, id ASC")

	return r.page(ctx, qb, limit, offset)
}

func (r *repoPG) page(ctx context.Context, qb *db.SearchQuery, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
