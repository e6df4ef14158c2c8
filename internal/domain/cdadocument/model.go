package cdadocument

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
)

// Record is a stored document together with the inputs it was assembled
// from and its serialized text. Version increases on every write and backs
// the registry's compare-and-swap updates.
type Record struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Kind            Kind           `db:"kind" json:"kind"`
	PatientID       uuid.UUID      `db:"patient_id" json:"patient_id"`
	PatientName     string         `db:"patient_name" json:"patient_name"`
	MedicalRecordID *uuid.UUID     `db:"medical_record_id" json:"medical_record_id,omitempty"`
	SourceID        *uuid.UUID     `db:"source_id" json:"source_id,omitempty"`
	Document        *ccda.Document `db:"-" json:"-"`
	Text            []byte         `db:"text" json:"-"`
	SignedBy        *string        `db:"signed_by" json:"signed_by,omitempty"`
	SignedAt        *time.Time     `db:"signed_at" json:"signed_at,omitempty"`
	CreatedBy       string         `db:"created_by" json:"created_by"`
	UpdatedBy       *string        `db:"updated_by" json:"updated_by,omitempty"`
	Version         int            `db:"version" json:"version"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

func (r *Record) Status() ccda.Status { return r.Document.Status() }

// Request returns the inputs the document was originally assembled from.
func (r *Record) Request() Request {
	return Request{
		Kind:            r.Kind,
		PatientID:       r.PatientID,
		MedicalRecordID: r.MedicalRecordID,
		SourceID:        r.SourceID,
	}
}

// Summary is the listing view of a stored document.
type Summary struct {
	ID               uuid.UUID   `json:"id"`
	DocumentID       string      `json:"document_id"`
	Kind             Kind        `json:"kind"`
	Title            string      `json:"title"`
	PatientID        uuid.UUID   `json:"patient_id"`
	PatientName      string      `json:"patient_name"`
	Status           ccda.Status `json:"status"`
	ValidationErrors []string    `json:"validation_errors,omitempty"`
	SignedBy         *string     `json:"signed_by,omitempty"`
	SignedAt         *time.Time  `json:"signed_at,omitempty"`
	CreatedBy        string      `json:"created_by"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        *time.Time  `json:"updated_at,omitempty"`
}

func (r *Record) Summary() Summary {
	return Summary{
		ID:               r.ID,
		DocumentID:       r.Document.ID().Extension,
		Kind:             r.Kind,
		Title:            r.Document.Header().Title,
		PatientID:        r.PatientID,
		PatientName:      r.PatientName,
		Status:           r.Document.Status(),
		ValidationErrors: r.Document.ValidationErrors(),
		SignedBy:         r.SignedBy,
		SignedAt:         r.SignedAt,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// SearchParams filters a registry search. Zero values match everything.
// From and To are calendar dates; To is inclusive.
type SearchParams struct {
	PatientID *uuid.UUID
	Kind      *Kind
	Status    *ccda.Status
	From      *time.Time
	To        *time.Time
	Keyword   string
}

// CreatedBefore returns the exclusive upper bound on creation time: the
// start of the day after To.
func (p SearchParams) CreatedBefore() *time.Time {
	if p.To == nil {
		return nil
	}
	y, m, d := p.To.Date()
	t := time.Date(y, m, d+1, 0, 0, 0, 0, p.To.Location())
	return &t
}
