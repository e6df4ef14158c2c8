package cdadocument

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound          = errors.New("cdadocument: patient not found")
	ErrSourceNotFound           = errors.New("cdadocument: source record not found")
	ErrDocumentNotFound         = errors.New("cdadocument: document not found")
	ErrCannotDeleteSignedOrSent = errors.New("cdadocument: cannot delete signed or sent document")
	ErrUnknownKind              = errors.New("cdadocument: unknown document kind")

	// ErrStatusConflict is returned by a Repository when a conditional
	// update finds the stored status or version no longer matches.
	ErrStatusConflict = errors.New("cdadocument: status conflict")
)

// AssemblyError wraps every failure to assemble a document.
type AssemblyError struct {
	Kind      Kind
	PatientID uuid.UUID
	Err       error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble %s for patient %s: %v", e.Kind, e.PatientID, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
