package cdadocument

import (
	"fmt"
	"strings"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
)

// Kind is one of the closed set of documents the assembler can produce.
type Kind int

const (
	KindDischargeSummary Kind = iota + 1
	KindLabReport
	KindImagingReport
	KindProgressNote
	KindConsultationNote
	KindOperativeNote
	KindReferralNote
	KindPrescription
	kindEnd
)

const kindCount = int(kindEnd) - 1

type kindInfo struct {
	slug  string
	code  ccda.Key
	title string
	build sectionBuilder
}

// kinds is indexed by Kind-1.
var kinds = [...]kindInfo{
	KindDischargeSummary - 1: {"discharge-summary", ccda.KeyDischargeSummary, "Discharge Summary", (*Assembler).dischargeSummary},
	KindLabReport - 1:        {"lab-report", ccda.KeyLabReport, "Laboratory Report", (*Assembler).labReport},
	KindImagingReport - 1:    {"imaging-report", ccda.KeyImagingReport, "Diagnostic Imaging Report", (*Assembler).imagingReport},
	KindProgressNote - 1:     {"progress-note", ccda.KeyProgressNote, "Progress Note", (*Assembler).progressNote},
	KindConsultationNote - 1: {"consultation-note", ccda.KeyConsultationNote, "Consultation Note", (*Assembler).consultationNote},
	KindOperativeNote - 1:    {"operative-note", ccda.KeyOperativeNote, "Operative Note", (*Assembler).operativeNote},
	KindReferralNote - 1:     {"referral-note", ccda.KeyReferralNote, "Referral Note", (*Assembler).referralNote},
	KindPrescription - 1:     {"prescription", ccda.KeyPrescriptionDocument, "Prescription Document", (*Assembler).prescription},
}

// Adding a Kind without a table entry (or the reverse) fails to compile.
var (
	_ [len(kinds) - kindCount]struct{}
	_ [kindCount - len(kinds)]struct{}
)

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := KindDischargeSummary; k < kindEnd; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k >= KindDischargeSummary && k < kindEnd }

func (k Kind) info() kindInfo { return kinds[k-1] }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return k.info().slug
}

// Title is the human-readable document title.
func (k Kind) Title() string {
	if !k.Valid() {
		return ""
	}
	return k.info().title
}

// ParseKind maps a slug such as "lab-report" back to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, info := range kinds {
		if info.slug == s {
			return Kind(i + 1), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
