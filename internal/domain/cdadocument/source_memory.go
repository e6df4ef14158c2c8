package cdadocument

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a JSON export of the clinical records documents are
// assembled from.
type Snapshot struct {
	Patients        []Patient        `json:"patients"`
	Actors          []Actor          `json:"actors"`
	MedicalRecords  []MedicalRecord  `json:"medical_records"`
	Examinations    []Examination    `json:"examinations"`
	LabRequests     []LabRequest     `json:"lab_requests"`
	ImagingReports  []ImagingReport  `json:"imaging_reports"`
	DailyProgress   []DailyProgress  `json:"daily_progress"`
	TreatmentSheets []TreatmentSheet `json:"treatment_sheets"`
	Consultations   []Consultation   `json:"consultations"`
	Surgeries       []Surgery        `json:"surgeries"`
	Prescriptions   []Prescription   `json:"prescriptions"`
}

// ReadSnapshot decodes a Snapshot, rejecting unknown fields.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// memLookup keeps records in insertion order, which stands in for creation
// order when two records share a timestamp.
type memLookup[T any] struct {
	mu     *sync.RWMutex
	items  []T
	id     func(*T) uuid.UUID
	record func(*T) *uuid.UUID
	at     func(*T) time.Time
}

func (l *memLookup[T]) ByID(_ context.Context, id uuid.UUID) (*T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.items {
		if l.id(&l.items[i]) == id {
			rec := l.items[i]
			return &rec, nil
		}
	}
	return nil, ErrSourceNotFound
}

func (l *memLookup[T]) LatestForMedicalRecord(_ context.Context, medicalRecordID uuid.UUID) (*T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var latest *T
	for i := range l.items {
		item := &l.items[i]
		mr := l.record(item)
		if mr == nil || *mr != medicalRecordID {
			continue
		}
		if latest == nil || !l.at(item).Before(l.at(latest)) {
			latest = item
		}
	}
	if latest == nil {
		return nil, ErrSourceNotFound
	}
	rec := *latest
	return &rec, nil
}

// MemorySource is a SourceAccessor over records held in memory.
type MemorySource struct {
	mu             sync.RWMutex
	patients       map[uuid.UUID]Patient
	actors         map[string]Actor
	medicalRecords map[uuid.UUID]MedicalRecord

	examinations    *memLookup[Examination]
	labRequests     *memLookup[LabRequest]
	imagingReports  *memLookup[ImagingReport]
	dailyProgress   *memLookup[DailyProgress]
	treatmentSheets *memLookup[TreatmentSheet]
	consultations   *memLookup[Consultation]
	surgeries       *memLookup[Surgery]
	prescriptions   *memLookup[Prescription]
}

func NewMemorySource() *MemorySource {
	s := &MemorySource{
		patients:       make(map[uuid.UUID]Patient),
		actors:         make(map[string]Actor),
		medicalRecords: make(map[uuid.UUID]MedicalRecord),
	}
	s.examinations = &memLookup[Examination]{mu: &s.mu,
		id:     func(r *Examination) uuid.UUID { return r.ID },
		record: func(r *Examination) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *Examination) time.Time { return r.CreatedAt }}
	s.labRequests = &memLookup[LabRequest]{mu: &s.mu,
		id:     func(r *LabRequest) uuid.UUID { return r.ID },
		record: func(r *LabRequest) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *LabRequest) time.Time { return r.RequestedAt }}
	s.imagingReports = &memLookup[ImagingReport]{mu: &s.mu,
		id:     func(r *ImagingReport) uuid.UUID { return r.ID },
		record: func(r *ImagingReport) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *ImagingReport) time.Time { return r.ReportedAt }}
	s.dailyProgress = &memLookup[DailyProgress]{mu: &s.mu,
		id:     func(r *DailyProgress) uuid.UUID { return r.ID },
		record: func(r *DailyProgress) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *DailyProgress) time.Time { return r.RecordedAt }}
	s.treatmentSheets = &memLookup[TreatmentSheet]{mu: &s.mu,
		id:     func(r *TreatmentSheet) uuid.UUID { return r.ID },
		record: func(r *TreatmentSheet) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *TreatmentSheet) time.Time { return r.RecordedAt }}
	s.consultations = &memLookup[Consultation]{mu: &s.mu,
		id:     func(r *Consultation) uuid.UUID { return r.ID },
		record: func(r *Consultation) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *Consultation) time.Time { return r.HeldAt }}
	s.surgeries = &memLookup[Surgery]{mu: &s.mu,
		id:     func(r *Surgery) uuid.UUID { return r.ID },
		record: func(r *Surgery) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *Surgery) time.Time { return r.ScheduledAt }}
	s.prescriptions = &memLookup[Prescription]{mu: &s.mu,
		id:     func(r *Prescription) uuid.UUID { return r.ID },
		record: func(r *Prescription) *uuid.UUID { return r.MedicalRecordID },
		at:     func(r *Prescription) time.Time { return r.PrescribedAt }}
	return s
}

// Load adds every record in snap. Patients, actors and medical records
// with an id already present are replaced.
func (s *MemorySource) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range snap.Patients {
		s.patients[p.ID] = p
	}
	for _, a := range snap.Actors {
		s.actors[a.ID] = a
	}
	for _, mr := range snap.MedicalRecords {
		s.medicalRecords[mr.ID] = mr
	}
	s.examinations.items = append(s.examinations.items, snap.Examinations...)
	s.labRequests.items = append(s.labRequests.items, snap.LabRequests...)
	s.imagingReports.items = append(s.imagingReports.items, snap.ImagingReports...)
	s.dailyProgress.items = append(s.dailyProgress.items, snap.DailyProgress...)
	s.treatmentSheets.items = append(s.treatmentSheets.items, snap.TreatmentSheets...)
	s.consultations.items = append(s.consultations.items, snap.Consultations...)
	s.surgeries.items = append(s.surgeries.items, snap.Surgeries...)
	s.prescriptions.items = append(s.prescriptions.items, snap.Prescriptions...)
}

func (s *MemorySource) Patient(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *MemorySource) Actor(_ context.Context, id string) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return &a, nil
}

func (s *MemorySource) MedicalRecord(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mr, ok := s.medicalRecords[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return &mr, nil
}

func (s *MemorySource) RecentPrescriptions(_ context.Context, medicalRecordID uuid.UUID, limit int) ([]Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Prescription
	for _, rx := range s.prescriptions.items {
		if rx.MedicalRecordID != nil && *rx.MedicalRecordID == medicalRecordID {
			out = append(out, rx)
		}
	}
	// Newest first; later insertions win ties.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PrescribedAt.After(out[j].PrescribedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySource) Examinations() Lookup[Examination]       { return s.examinations }
func (s *MemorySource) LabRequests() Lookup[LabRequest]         { return s.labRequests }
func (s *MemorySource) ImagingReports() Lookup[ImagingReport]   { return s.imagingReports }
func (s *MemorySource) DailyProgress() Lookup[DailyProgress]    { return s.dailyProgress }
func (s *MemorySource) TreatmentSheets() Lookup[TreatmentSheet] { return s.treatmentSheets }
func (s *MemorySource) Consultations() Lookup[Consultation]     { return s.consultations }
func (s *MemorySource) Surgeries() Lookup[Surgery]              { return s.surgeries }
func (s *MemorySource) Prescriptions() Lookup[Prescription]     { return s.prescriptions }

var _ SourceAccessor = (*MemorySource)(nil)
