package cdadocument

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
)

// Request names what to assemble. MedicalRecordID and SourceID are optional.
type Request struct {
	Kind            Kind       `json:"kind"`
	PatientID       uuid.UUID  `json:"patient_id"`
	MedicalRecordID *uuid.UUID `json:"medical_record_id,omitempty"`
	SourceID        *uuid.UUID `json:"source_id,omitempty"`
}

// Organization is the custodian of every generated document.
type Organization struct {
	OID      string
	Name     string
	Phone    string
	Realm    string
	Language string
}

// identifierRoot returns sibling arc n of the organisation OID, e.g. the
// national identity namespace for n=2.
func (o Organization) identifierRoot(n int) string {
	i := strings.LastIndex(o.OID, ".")
	if i < 0 {
		return o.OID + "." + strconv.Itoa(n)
	}
	return o.OID[:i+1] + strconv.Itoa(n)
}

// input is what every section builder receives: the request plus the
// records fetched before building starts.
type input struct {
	Request
	patient *Patient
	record  *MedicalRecord
}

type sectionBuilder func(*Assembler, context.Context, input) ([]sectionSpec, error)

// Assembler turns clinical source records into documents.
type Assembler struct {
	source  SourceAccessor
	org     Organization
	logger  zerolog.Logger
	metrics *Metrics
}

func NewAssembler(source SourceAccessor, org Organization, logger zerolog.Logger, metrics *Metrics) *Assembler {
	return &Assembler{
		source:  source,
		org:     org,
		logger:  logger.With().Str("component", "cda-assembler").Logger(),
		metrics: metrics,
	}
}

// NewIdentifier allocates a document identifier in the organisation's namespace.
func (a *Assembler) NewIdentifier() ccda.DocumentIdentifier {
	return ccda.NewDocumentIdentifier(a.org.OID)
}

// Assemble builds a document of req.Kind for req.PatientID. Missing source
// data degrades to placeholder sections; only an unknown patient or a
// failing accessor stops assembly. Every error is an *AssemblyError.
func (a *Assembler) Assemble(ctx context.Context, req Request, id ccda.DocumentIdentifier, actor string, now time.Time) (*ccda.Document, error) {
	if !req.Kind.Valid() {
		return nil, a.fail(req, ErrUnknownKind)
	}
	start := time.Now()
	info := req.Kind.info()

	in := input{Request: req}
	var user *Actor

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.source.Patient(gctx, req.PatientID)
		if errors.Is(err, ErrSourceNotFound) || (err == nil && p == nil) {
			return ErrPatientNotFound
		}
		if err != nil {
			return err
		}
		in.patient = p
		return nil
	})
	g.Go(func() error {
		if actor == "" {
			return nil
		}
		u, err := a.source.Actor(gctx, actor)
		if errors.Is(err, ErrSourceNotFound) {
			a.logger.Debug().Str("actor", actor).Msg("actor not found, authoring as system")
			return nil
		}
		if err != nil {
			return fmt.Errorf("load actor: %w", err)
		}
		user = u
		return nil
	})
	if req.MedicalRecordID != nil {
		g.Go(func() error {
			mr, err := a.medicalRecord(gctx, *req.MedicalRecordID)
			if err != nil {
				return err
			}
			in.record = mr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, a.fail(req, err)
	}

	sections, err := info.build(a, ctx, in)
	if err != nil {
		return nil, a.fail(req, err)
	}

	header, err := a.header(info, id, in.patient, user, now)
	if err != nil {
		return nil, a.fail(req, err)
	}

	b := ccda.NewDocument(header)
	for _, s := range sections {
		code, entries, err := s.resolve()
		if err != nil {
			return nil, a.fail(req, err)
		}
		if s.narrative.Text == Placeholder {
			a.logger.Debug().
				Str("kind", req.Kind.String()).
				Str("patient_id", req.PatientID.String()).
				Str("section", s.title).
				Msg("no source data, using placeholder")
		}
		b.AddSection(code, s.title, s.narrative, entries...)
	}
	doc, err := b.Build()
	if err != nil {
		return nil, a.fail(req, err)
	}

	a.metrics.ObserveAssembly(req.Kind, time.Since(start))
	return doc, nil
}

func (a *Assembler) fail(req Request, err error) error {
	return &AssemblyError{Kind: req.Kind, PatientID: req.PatientID, Err: err}
}

// medicalRecord returns nil when the record does not exist.
func (a *Assembler) medicalRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	mr, err := a.source.MedicalRecord(ctx, id)
	if errors.Is(err, ErrSourceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load medical record: %w", err)
	}
	return mr, nil
}

// recordFor returns the medical record a source record belongs to, falling
// back to the one named by the request.
func (a *Assembler) recordFor(ctx context.Context, in input, id *uuid.UUID) (*MedicalRecord, error) {
	if id == nil || (in.record != nil && in.record.ID == *id) {
		return in.record, nil
	}
	mr, err := a.medicalRecord(ctx, *id)
	if err != nil || mr == nil {
		return in.record, err
	}
	return mr, nil
}

func (a *Assembler) header(info kindInfo, id ccda.DocumentIdentifier, p *Patient, u *Actor, now time.Time) (ccda.Header, error) {
	code, err := ccda.Lookup(info.code)
	if err != nil {
		return ccda.Header{}, err
	}
	confidentiality, err := ccda.Lookup(ccda.KeyConfidentialityNormal)
	if err != nil {
		return ccda.Header{}, err
	}
	subject, err := a.subject(p)
	if err != nil {
		return ccda.Header{}, err
	}

	return ccda.NewHeader(ccda.Header{
		Realm:           a.org.Realm,
		TemplateIDs:     []string{ccda.OIDGeneralHeader},
		ID:              id,
		Code:            code,
		Title:           info.title,
		EffectiveTime:   now,
		Confidentiality: confidentiality,
		Language:        a.org.Language,
		Subject:         subject,
		Author:          authorOf(u, now),
		Custodian: ccda.Custodian{
			ID:    a.org.OID,
			Name:  a.org.Name,
			Phone: a.org.Phone,
		},
	})
}

func (a *Assembler) subject(p *Patient) (ccda.Subject, error) {
	code := p.Code
	if code == "" {
		code = p.ID.String()
	}
	s := ccda.Subject{
		Identifiers: []ccda.Identifier{{Root: a.org.OID, Extension: code}},
		Name:        p.FullName,
		Address:     p.Address,
		Email:       p.Email,
	}
	if p.IdentityNumber != "" {
		s.Identifiers = append(s.Identifiers, ccda.Identifier{Root: a.org.identifierRoot(2), Extension: p.IdentityNumber})
	}
	if p.InsuranceNumber != "" {
		s.Identifiers = append(s.Identifiers, ccda.Identifier{Root: a.org.identifierRoot(3), Extension: p.InsuranceNumber})
	}

	genderKey := ccda.KeyGenderUnknown
	switch p.Gender {
	case 1:
		genderKey = ccda.KeyGenderMale
	case 2:
		genderKey = ccda.KeyGenderFemale
	}
	gender, err := ccda.Lookup(genderKey)
	if err != nil {
		return ccda.Subject{}, err
	}
	s.Gender = gender

	switch {
	case p.DateOfBirth != nil:
		s.Birth = ccda.Birth{Value: *p.DateOfBirth, Precision: ccda.BirthDate}
	case p.YearOfBirth != nil:
		s.Birth = ccda.Birth{Value: time.Date(*p.YearOfBirth, 1, 1, 0, 0, 0, 0, time.UTC), Precision: ccda.BirthYear}
	}
	if p.Phone != "" {
		s.Phones = []string{p.Phone}
	}
	if p.EthnicName != "" {
		s.EthnicGroup = &ccda.CodedConcept{
			Code:        p.EthnicCode,
			CodeSystem:  ccda.OIDEthnicity,
			SystemName:  "Ethnicity",
			DisplayName: p.EthnicName,
		}
	}
	if p.GuardianName != "" {
		s.Guardian = &ccda.Guardian{Name: p.GuardianName, Phone: p.GuardianPhone}
	}
	return s, nil
}

// authorOf maps the acting user, or the system when the user is unknown.
func authorOf(u *Actor, now time.Time) ccda.Author {
	a := ccda.Author{ID: "system", Name: "System", Time: now}
	if u == nil {
		return a
	}
	if id := resolve(literal("employee_code", u.EmployeeCode), literal("username", u.Username)); id.found() {
		a.ID = id.value
	}
	if u.FullName != "" {
		a.Name = u.FullName
	}
	a.Organization = u.DepartmentName
	return a
}

// =========== Sections ===========

type icdCode struct {
	code    string
	display string
}

type measurement struct {
	key   ccda.Key
	label string
	value float64
}

// sectionSpec is a section before its vocabulary keys are resolved.
type sectionSpec struct {
	key       ccda.Key
	title     string
	narrative ccda.Narrative
	diagnosis *icdCode
	vitals    []measurement
	entries   []ccda.Entry
}

func (s sectionSpec) resolve() (ccda.CodedConcept, []ccda.Entry, error) {
	code, err := ccda.Lookup(s.key)
	if err != nil {
		return ccda.CodedConcept{}, nil, err
	}
	var entries []ccda.Entry
	if s.diagnosis != nil {
		c, err := ccda.Code(ccda.KeySystemICD10, s.diagnosis.code, s.diagnosis.display)
		if err != nil {
			return ccda.CodedConcept{}, nil, err
		}
		entries = append(entries, ccda.ObservationEntry(ccda.CodedObservation{Code: c}))
	}
	for _, m := range s.vitals {
		c, err := ccda.Lookup(m.key)
		if err != nil {
			return ccda.CodedConcept{}, nil, err
		}
		entries = append(entries, ccda.ObservationEntry(ccda.CodedObservation{
			Code:  c,
			Value: ccda.FormatQuantity(m.value),
			Unit:  ccda.Unit(m.key),
		}))
	}
	return code, append(entries, s.entries...), nil
}

type sectionList []sectionSpec

func (l *sectionList) text(key ccda.Key, title, text string) {
	*l = append(*l, sectionSpec{key: key, title: title, narrative: ccda.NewNarrative(text)})
}

// optional adds a text section only when text is non-empty.
func (l *sectionList) optional(key ccda.Key, title, text string) {
	if strings.TrimSpace(text) != "" {
		l.text(key, title, text)
	}
}

func (l *sectionList) add(s sectionSpec) { *l = append(*l, s) }

// codedSection renders a diagnosis as narrative and, when a code is known,
// as a coded ICD-10 observation naming the same diagnosis.
func codedSection(key ccda.Key, title string, dx resolution, code string, extra ...string) sectionSpec {
	s := sectionSpec{key: key, title: title}
	if !dx.found() {
		s.narrative = ccda.NewNarrative(Placeholder)
		return s
	}
	line := dx.value
	if code != "" {
		line += " (" + code + ")"
		s.diagnosis = &icdCode{code: code, display: dx.value}
	}
	lines := []string{line}
	for _, e := range extra {
		if e != "" {
			lines = append(lines, e)
		}
	}
	s.narrative = ccda.NewNarrative(strings.Join(lines, "\n"))
	return s
}

// diagnosisSection resolves the visit diagnosis: examination main,
// examination initial, medical record main, medical record initial. The
// initial diagnosis is listed as well when it differs.
func diagnosisSection(exam *Examination, mr *MedicalRecord) sectionSpec {
	dx := resolve(
		field("examination.main", exam, func(e *Examination) string { return e.MainDiagnosis }),
		field("examination.initial", exam, func(e *Examination) string { return e.InitialDiagnosis }),
		field("medical_record.main", mr, func(m *MedicalRecord) string { return m.MainDiagnosis }),
		field("medical_record.initial", mr, func(m *MedicalRecord) string { return m.InitialDiagnosis }),
	)
	var code string
	switch dx.source {
	case "examination.main":
		code = exam.MainICDCode
	case "medical_record.main":
		code = mr.MainICDCode
	}

	var extra []string
	if sub := resolve(
		field("examination.sub", exam, func(e *Examination) string { return e.SubDiagnosis }),
		field("medical_record.sub", mr, func(m *MedicalRecord) string { return m.SubDiagnosis }),
	); sub.found() {
		extra = append(extra, "Secondary diagnosis: "+sub.value)
	}
	if initial := resolve(
		field("examination.initial", exam, func(e *Examination) string { return e.InitialDiagnosis }),
		field("medical_record.initial", mr, func(m *MedicalRecord) string { return m.InitialDiagnosis }),
	); initial.found() && initial.value != dx.value {
		extra = append(extra, "Initial diagnosis: "+initial.value)
	}
	return codedSection(ccda.KeyDiagnoses, "Diagnosis", dx, code, extra...)
}

func (v VitalSigns) measurements() []measurement {
	all := []struct {
		key   ccda.Key
		label string
		value *float64
	}{
		{ccda.KeyTemperature, "Temperature", v.Temperature},
		{ccda.KeyPulse, "Pulse", v.Pulse},
		{ccda.KeySystolicBP, "Systolic blood pressure", v.Systolic},
		{ccda.KeyDiastolicBP, "Diastolic blood pressure", v.Diastolic},
		{ccda.KeyRespiratoryRate, "Respiratory rate", v.RespiratoryRate},
		{ccda.KeyHeight, "Height", v.Height},
		{ccda.KeyWeight, "Weight", v.Weight},
		{ccda.KeySpO2, "SpO2", v.SpO2},
		{ccda.KeyBMI, "BMI", v.BMI},
	}
	var out []measurement
	for _, m := range all {
		if m.value != nil {
			out = append(out, measurement{key: m.key, label: m.label, value: *m.value})
		}
	}
	return out
}

func (m measurement) String() string {
	return fmt.Sprintf("%s: %s %s", m.label, ccda.FormatQuantity(m.value), ccda.Unit(m.key))
}

func vitalLines(exam *Examination) []string {
	if exam == nil {
		return nil
	}
	var lines []string
	for _, m := range exam.Vitals.measurements() {
		lines = append(lines, m.String())
	}
	return lines
}

// vitalSignsSection returns false when nothing was measured.
func vitalSignsSection(exam *Examination) (sectionSpec, bool) {
	if exam == nil {
		return sectionSpec{}, false
	}
	ms := exam.Vitals.measurements()
	if len(ms) == 0 {
		return sectionSpec{}, false
	}
	return sectionSpec{
		key:       ccda.KeyVitalSigns,
		title:     "Vital Signs",
		narrative: ccda.NewNarrative(strings.Join(vitalLines(exam), "\n")),
		vitals:    ms,
	}, true
}

// physicalExamSection combines the examination text with the vital sign readings.
func physicalExamSection(exam *Examination) sectionSpec {
	var lines []string
	if r := resolve(field("examination", exam, func(e *Examination) string { return e.PhysicalExamination })); r.found() {
		lines = append(lines, r.value)
	}
	lines = append(lines, vitalLines(exam)...)
	text := Placeholder
	if len(lines) > 0 {
		text = strings.Join(lines, "\n")
	}
	return sectionSpec{key: ccda.KeyPhysicalExam, title: "Physical Examination", narrative: ccda.NewNarrative(text)}
}

// medicationSection lists every prescribed item as a narrative line and a
// substance administration entry.
// name is the medicine name, or the placeholder for an unnamed item.
func (item *PrescriptionItem) name() string {
	return resolve(field("prescription_item", item, func(i *PrescriptionItem) string { return i.MedicineName })).value
}

func medicationSection(key ccda.Key, title string, prescriptions []Prescription) (sectionSpec, bool) {
	s := sectionSpec{key: key, title: title}
	var lines []string
	for _, rx := range prescriptions {
		for _, item := range rx.Items {
			m := ccda.MedicationAdministration{
				DrugName:     item.name(),
				Dose:         item.Dosage,
				Route:        item.Route,
				Frequency:    item.Frequency,
				DurationDays: item.Days,
				Quantity:     item.Quantity,
				Unit:         item.Unit,
			}
			line := m.DrugName
			if summary := m.Summary(); summary != "" {
				line += ": " + summary
			}
			lines = append(lines, line)
			s.entries = append(s.entries, ccda.MedicationEntry(m))
		}
	}
	if len(lines) == 0 {
		return s, false
	}
	s.narrative = ccda.NewNarrative(strings.Join(lines, "\n"))
	return s, true
}

var labColumns = []string{"Test", "Result", "Unit", "Reference range", "Flag"}

// labResultsSection renders results ordered by sequence as a table.
func labResultsSection(results []LabResult) sectionSpec {
	sorted := append([]LabResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		ref := r.ReferenceRange
		if ref == "" {
			ref = formatRange(r.ReferenceMin, r.ReferenceMax)
		}
		rows = append(rows, []string{r.Parameter, r.Value, r.Unit, ref, flagName(r.Flag)})
	}

	noun := "results"
	if len(rows) == 1 {
		noun = "result"
	}
	return sectionSpec{
		key:       ccda.KeyLabResults,
		title:     "Laboratory Results",
		narrative: ccda.NewNarrative(fmt.Sprintf("%d %s", len(rows), noun)),
		entries:   []ccda.Entry{ccda.TableEntry(labColumns, rows)},
	}
}

func formatRange(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%.2f - %.2f", *min, *max)
	case min != nil:
		return fmt.Sprintf(">= %.2f", *min)
	case max != nil:
		return fmt.Sprintf("<= %.2f", *max)
	}
	return ""
}

func flagName(flag int) string {
	switch flag {
	case FlagNormal:
		return "Normal"
	case FlagHigh:
		return "High"
	case FlagLow:
		return "Low"
	}
	return "Critical"
}
