package ccda

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a document.
type Status int

const (
	StatusDraft Status = iota
	StatusFinal
	StatusSigned
	StatusSent
)

var statusNames = map[Status]string{
	StatusDraft:  "draft",
	StatusFinal:  "final",
	StatusSigned: "signed",
	StatusSent:   "sent",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus maps a status name back to its value.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid status: %q", name)
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid status: %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Forward transitions. Returning to draft is reserved for regeneration.
var transitions = map[Status]Status{
	StatusDraft:  StatusFinal,
	StatusFinal:  StatusSigned,
	StatusSigned: StatusSent,
}

// CanTransition reports whether from -> to is an allowed forward transition.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// Editable reports whether a document in status s may be regenerated or deleted.
func Editable(s Status) bool {
	return s == StatusDraft || s == StatusFinal
}

// DocumentIdentifier is the document instance id. The extension is a random
// token allocated once per document.
type DocumentIdentifier struct {
	Root      string `json:"root"`
	Extension string `json:"extension"`
}

// NewDocumentIdentifier allocates a fresh identifier under root.
func NewDocumentIdentifier(root string) DocumentIdentifier {
	return DocumentIdentifier{
		Root:      root,
		Extension: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

func (id DocumentIdentifier) String() string {
	return id.Root + "." + id.Extension
}

// Identifier is one patient identifier in a given namespace.
type Identifier struct {
	Root      string `json:"root"`
	Extension string `json:"extension"`
}

// BirthPrecision tells whether a birth value is a full date or only a year.
type BirthPrecision int

const (
	BirthUnknown BirthPrecision = iota
	BirthYear
	BirthDate
)

// Birth holds the subject's birth date or year.
type Birth struct {
	Value     time.Time      `json:"value"`
	Precision BirthPrecision `json:"precision"`
}

// HL7 returns the birth value at its own precision, or "" when unknown.
func (b Birth) HL7() string {
	switch b.Precision {
	case BirthDate:
		return FormatDate(b.Value)
	case BirthYear:
		return FormatYear(b.Value.Year())
	default:
		return ""
	}
}

// Guardian is the responsible person for a minor or dependent patient.
type Guardian struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Subject is the patient as recorded at generation time.
type Subject struct {
	Identifiers []Identifier  `json:"identifiers"`
	Name        string        `json:"name"`
	Gender      CodedConcept  `json:"gender"`
	Birth       Birth         `json:"birth"`
	Address     string        `json:"address,omitempty"`
	Phones      []string      `json:"phones,omitempty"`
	Email       string        `json:"email,omitempty"`
	EthnicGroup *CodedConcept `json:"ethnic_group,omitempty"`
	Guardian    *Guardian     `json:"guardian,omitempty"`
}

// Author is the person (or system) that produced the document.
type Author struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Organization string    `json:"organization,omitempty"`
	Time         time.Time `json:"time"`
}

// Custodian is the organization that maintains the document.
type Custodian struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Header holds the document-level fields. Confidentiality and Language are
// recommended; everything else is mandatory.
type Header struct {
	Realm           string             `json:"realm"`
	TemplateIDs     []string           `json:"template_ids"`
	ID              DocumentIdentifier `json:"id"`
	Code            CodedConcept       `json:"code"`
	Title           string             `json:"title"`
	EffectiveTime   time.Time          `json:"effective_time"`
	Confidentiality CodedConcept       `json:"confidentiality"`
	Language        string             `json:"language,omitempty"`
	Subject         Subject            `json:"subject"`
	Author          Author             `json:"author"`
	Custodian       Custodian          `json:"custodian"`
}

// NewHeader returns h if every mandatory field is present.
func NewHeader(h Header) (Header, error) {
	var missing []string
	if h.Realm == "" {
		missing = append(missing, "realm")
	}
	if len(h.TemplateIDs) == 0 {
		missing = append(missing, "template id")
	}
	if h.ID.Root == "" || h.ID.Extension == "" {
		missing = append(missing, "document id")
	}
	if h.Code.IsZero() {
		missing = append(missing, "document code")
	}
	if h.Title == "" {
		missing = append(missing, "title")
	}
	if h.EffectiveTime.IsZero() {
		missing = append(missing, "effective time")
	}
	if len(h.Subject.Identifiers) == 0 || h.Subject.Name == "" {
		missing = append(missing, "patient")
	}
	if h.Author.ID == "" || h.Author.Name == "" {
		missing = append(missing, "author")
	}
	if h.Custodian.ID == "" || h.Custodian.Name == "" {
		missing = append(missing, "custodian")
	}
	if len(missing) > 0 {
		return Header{}, fmt.Errorf("%w: missing %s", ErrIncompleteHeader, strings.Join(missing, ", "))
	}
	return h, nil
}

// Narrative is the human-readable body of a section: either a single text
// or an ordered list of items.
type Narrative struct {
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// NewNarrative chooses the list form when text spans several non-blank lines.
func NewNarrative(text string) Narrative {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, line)
		}
	}
	switch len(items) {
	case 0:
		return Narrative{}
	case 1:
		return Narrative{Text: items[0]}
	default:
		return Narrative{Items: items}
	}
}

// ListNarrative builds a list narrative from items, skipping blanks.
func ListNarrative(items ...string) Narrative {
	return NewNarrative(strings.Join(items, "\n"))
}

func (n Narrative) IsList() bool { return len(n.Items) > 0 }
func (n Narrative) IsEmpty() bool { return n.Text == "" && len(n.Items) == 0 }

func (n Narrative) String() string {
	if n.IsList() {
		return strings.Join(n.Items, "\n")
	}
	return n.Text
}

// CodedObservation is a single coded fact. A measured value carries a unit;
// a coded finding (e.g. a diagnosis) carries only the code.
type CodedObservation struct {
	Code  CodedConcept `json:"code"`
	Value string       `json:"value,omitempty"`
	Unit  string       `json:"unit,omitempty"`
}

// MedicationAdministration is one prescribed drug line.
type MedicationAdministration struct {
	DrugName     string  `json:"drug_name"`
	Dose         string  `json:"dose,omitempty"`
	Route        string  `json:"route,omitempty"`
	Frequency    string  `json:"frequency,omitempty"`
	DurationDays int     `json:"duration_days,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	Unit         string  `json:"unit,omitempty"`
}

// Summary renders the administration details as one line, without the drug name.
func (m MedicationAdministration) Summary() string {
	var parts []string
	if m.Dose != "" {
		parts = append(parts, m.Dose)
	}
	if m.Route != "" {
		parts = append(parts, m.Route)
	}
	if m.Frequency != "" {
		parts = append(parts, m.Frequency)
	}
	if m.DurationDays > 0 {
		parts = append(parts, fmt.Sprintf("%d days", m.DurationDays))
	}
	if m.Quantity > 0 {
		q := FormatQuantity(m.Quantity)
		if m.Unit != "" {
			q += " " + m.Unit
		}
		parts = append(parts, "qty "+q)
	}
	return strings.Join(parts, ", ")
}

// TabularResult is a result panel rendered as a table.
type TabularResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Entry is a structured fact attached to a section. Exactly one field is set.
type Entry struct {
	Observation *CodedObservation         `json:"observation,omitempty"`
	Medication  *MedicationAdministration `json:"medication,omitempty"`
	Table       *TabularResult            `json:"table,omitempty"`
}

func ObservationEntry(o CodedObservation) Entry { return Entry{Observation: &o} }
func MedicationEntry(m MedicationAdministration) Entry { return Entry{Medication: &m} }
func TableEntry(columns []string, rows [][]string) Entry { return Entry{Table: &TabularResult{Columns: columns, Rows: rows}} }

func (e Entry) valid() bool {
	n := 0
	if e.Observation != nil {
		n++
	}
	if e.Medication != nil {
		n++
	}
	if e.Table != nil {
		n++
	}
	return n == 1
}

// Section is a titled, coded subdivision of the body.
type Section struct {
	Code      CodedConcept `json:"code"`
	Title     string       `json:"title"`
	Narrative Narrative    `json:"narrative"`
	Entries   []Entry      `json:"entries,omitempty"`
}

func (h Header) clone() Header {
	h.TemplateIDs = slices.Clone(h.TemplateIDs)
	h.Subject.Identifiers = slices.Clone(h.Subject.Identifiers)
	h.Subject.Phones = slices.Clone(h.Subject.Phones)
	if h.Subject.EthnicGroup != nil {
		g := *h.Subject.EthnicGroup
		h.Subject.EthnicGroup = &g
	}
	if h.Subject.Guardian != nil {
		g := *h.Subject.Guardian
		h.Subject.Guardian = &g
	}
	return h
}

func (s Section) clone() Section {
	s.Narrative.Items = slices.Clone(s.Narrative.Items)
	if s.Entries != nil {
		entries := make([]Entry, len(s.Entries))
		for i, e := range s.Entries {
			entries[i] = e.clone()
		}
		s.Entries = entries
	}
	return s
}

func (e Entry) clone() Entry {
	if e.Observation != nil {
		o := *e.Observation
		e.Observation = &o
	}
	if e.Medication != nil {
		m := *e.Medication
		e.Medication = &m
	}
	if e.Table != nil {
		rows := make([][]string, len(e.Table.Rows))
		for i, r := range e.Table.Rows {
			rows[i] = slices.Clone(r)
		}
		e.Table = &TabularResult{Columns: slices.Clone(e.Table.Columns), Rows: rows}
	}
	return e
}

// Content is the persisted form of a document's header and body.
type Content struct {
	Header   Header    `json:"header"`
	Sections []Section `json:"sections"`
}

// Document is an assembled clinical document. It is never modified in place;
// lifecycle methods return a new value.
type Document struct {
	header           Header
	sections         []Section
	status           Status
	validationErrors []string
}

// Header returns a copy of the header that shares no memory with d.
func (d *Document) Header() Header { return d.header.clone() }
func (d *Document) ID() DocumentIdentifier { return d.header.ID }
func (d *Document) Status() Status { return d.status }

// Sections returns a copy of the ordered section list.
func (d *Document) Sections() []Section {
	out := make([]Section, len(d.sections))
	for i, sec := range d.sections {
		out[i] = sec.clone()
	}
	return out
}

// ValidationErrors returns the errors from the latest stored validation, if any.
func (d *Document) ValidationErrors() []string {
	if d.validationErrors == nil {
		return nil
	}
	out := make([]string, len(d.validationErrors))
	copy(out, d.validationErrors)
	return out
}

// Content returns the header and sections for storage.
func (d *Document) Content() Content {
	return Content{Header: d.Header(), Sections: d.Sections()}
}

// WithStatus returns a copy of d moved to status to. Only forward single-step
// transitions are accepted.
func (d *Document) WithStatus(to Status) (*Document, error) {
	if !CanTransition(d.status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, d.status, to)
	}
	next := *d
	next.status = to
	return &next, nil
}

// WithValidationErrors returns a copy of d carrying errs.
func (d *Document) WithValidationErrors(errs []string) *Document {
	next := *d
	next.validationErrors = append([]string{}, errs...)
	return &next
}

// Restore rebuilds a stored document without re-running construction checks.
func Restore(c Content, status Status, validationErrors []string) *Document {
	return &Document{
		header:           c.Header,
		sections:         c.Sections,
		status:           status,
		validationErrors: validationErrors,
	}
}

// Builder accumulates sections for a new document. The first error sticks
// and is reported by Build.
type Builder struct {
	header   Header
	sections []Section
	err      error
}

// NewDocument starts a document with header h.
func NewDocument(h Header) *Builder {
	b := &Builder{}
	b.header, b.err = NewHeader(h)
	return b
}

// AddSection appends a section. The code is mandatory; an empty narrative is
// rejected so every section stays human-readable.
func (b *Builder) AddSection(code CodedConcept, title string, narrative Narrative, entries ...Entry) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case code.IsZero():
		b.err = fmt.Errorf("%w: %q has no code", ErrInvalidSection, title)
		return b
	case title == "":
		b.err = fmt.Errorf("%w: %s has no title", ErrInvalidSection, code.Code)
		return b
	case narrative.IsEmpty():
		b.err = fmt.Errorf("%w: %q has no narrative", ErrInvalidSection, title)
		return b
	}
	for _, e := range entries {
		if !e.valid() {
			b.err = fmt.Errorf("%w: %q has a malformed entry", ErrInvalidSection, title)
			return b
		}
	}
	b.sections = append(b.sections, Section{
		Code:      code,
		Title:     title,
		Narrative: narrative,
		Entries:   append([]Entry(nil), entries...),
	})
	return b
}

// Build returns the draft document.
func (b *Builder) Build() (*Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.sections) == 0 {
		return nil, ErrEmptyDocument
	}
	return &Document{
		header:   b.header,
		sections: b.sections,
		status:   StatusDraft,
	}, nil
}
