package cdadocument

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshots returned by the SourceAccessor. They are read-only copies of the
// clinical records a document is assembled from; empty strings mean the
// field was not recorded.

type Patient struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"code"`
	FullName        string     `json:"full_name"`
	Gender          int        `json:"gender"` // 1 male, 2 female, anything else unknown
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
	YearOfBirth     *int       `json:"year_of_birth,omitempty"`
	Address         string     `json:"address,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	IdentityNumber  string     `json:"identity_number,omitempty"`
	InsuranceNumber string     `json:"insurance_number,omitempty"`
	EthnicCode      string     `json:"ethnic_code,omitempty"`
	EthnicName      string     `json:"ethnic_name,omitempty"`
	GuardianName    string     `json:"guardian_name,omitempty"`
	GuardianPhone   string     `json:"guardian_phone,omitempty"`
	MedicalHistory  string     `json:"medical_history,omitempty"`
}

// Actor is the user a registry operation is performed for.
type Actor struct {
	ID             string `json:"id"`
	EmployeeCode   string `json:"employee_code,omitempty"`
	Username       string `json:"username,omitempty"`
	FullName       string `json:"full_name,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`
}

type MedicalRecord struct {
	ID               uuid.UUID `json:"id"`
	MainDiagnosis    string    `json:"main_diagnosis,omitempty"`
	MainICDCode      string    `json:"main_icd_code,omitempty"`
	SubDiagnosis     string    `json:"sub_diagnosis,omitempty"`
	InitialDiagnosis string    `json:"initial_diagnosis,omitempty"`
	DischargeNote    string    `json:"discharge_note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// VitalSigns holds the measurements taken at a visit; nil means not measured.
type VitalSigns struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	Pulse           *float64 `json:"pulse,omitempty"`
	Systolic        *float64 `json:"systolic,omitempty"`
	Diastolic       *float64 `json:"diastolic,omitempty"`
	RespiratoryRate *float64 `json:"respiratory_rate,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	SpO2            *float64 `json:"spo2,omitempty"`
	BMI             *float64 `json:"bmi,omitempty"`
}

type Examination struct {
	ID                  uuid.UUID  `json:"id"`
	MedicalRecordID     *uuid.UUID `json:"medical_record_id,omitempty"`
	ChiefComplaint      string     `json:"chief_complaint,omitempty"`
	PresentIllness      string     `json:"present_illness,omitempty"`
	PhysicalExamination string     `json:"physical_examination,omitempty"`
	Vitals              VitalSigns `json:"vitals"`
	MainDiagnosis       string     `json:"main_diagnosis,omitempty"`
	MainICDCode         string     `json:"main_icd_code,omitempty"`
	SubDiagnosis        string     `json:"sub_diagnosis,omitempty"`
	InitialDiagnosis    string     `json:"initial_diagnosis,omitempty"`
	ConclusionNote      string     `json:"conclusion_note,omitempty"`
	TreatmentPlan       string     `json:"treatment_plan,omitempty"`
	FollowUpDate        *time.Time `json:"follow_up_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

type LabRequest struct {
	ID              uuid.UUID   `json:"id"`
	MedicalRecordID *uuid.UUID  `json:"medical_record_id,omitempty"`
	ClinicalInfo    string      `json:"clinical_info,omitempty"`
	DiagnosisCode   string      `json:"diagnosis_code,omitempty"`
	DiagnosisName   string      `json:"diagnosis_name,omitempty"`
	Results         []LabResult `json:"results"`
	RequestedAt     time.Time   `json:"requested_at"`
}

// Abnormal flags carried by a LabResult.
const (
	FlagNormal = iota
	FlagHigh
	FlagLow
	FlagCritical
)

type LabResult struct {
	Sequence       int      `json:"sequence"`
	Parameter      string   `json:"parameter"`
	Value          string   `json:"value"`
	Unit           string   `json:"unit,omitempty"`
	ReferenceRange string   `json:"reference_range,omitempty"`
	ReferenceMin   *float64 `json:"reference_min,omitempty"`
	ReferenceMax   *float64 `json:"reference_max,omitempty"`
	Flag           int      `json:"flag"`
}

type ImagingReport struct {
	ID              uuid.UUID  `json:"id"`
	MedicalRecordID *uuid.UUID `json:"medical_record_id,omitempty"`
	ClinicalInfo    string     `json:"clinical_info,omitempty"`
	Findings        string     `json:"findings,omitempty"`
	Impression      string     `json:"impression,omitempty"`
	Recommendations string     `json:"recommendations,omitempty"`
	ReportedAt      time.Time  `json:"reported_at"`
}

type DailyProgress struct {
	ID              uuid.UUID  `json:"id"`
	MedicalRecordID *uuid.UUID `json:"medical_record_id,omitempty"`
	Subjective      string     `json:"subjective,omitempty"`
	Objective       string     `json:"objective,omitempty"`
	Assessment      string     `json:"assessment,omitempty"`
	Plan            string     `json:"plan,omitempty"`
	VitalSigns      string     `json:"vital_signs,omitempty"`
	RecordedAt      time.Time  `json:"recorded_at"`
}

type TreatmentSheet struct {
	ID               uuid.UUID  `json:"id"`
	MedicalRecordID  *uuid.UUID `json:"medical_record_id,omitempty"`
	PatientCondition string     `json:"patient_condition,omitempty"`
	DoctorOrders     string     `json:"doctor_orders,omitempty"`
	NursingCare      string     `json:"nursing_care,omitempty"`
	RecordedAt       time.Time  `json:"recorded_at"`
}

type Consultation struct {
	ID              uuid.UUID  `json:"id"`
	MedicalRecordID *uuid.UUID `json:"medical_record_id,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Conclusion      string     `json:"conclusion,omitempty"`
	TreatmentPlan   string     `json:"treatment_plan,omitempty"`
	PresidedBy      string     `json:"presided_by,omitempty"`
	Secretary       string     `json:"secretary,omitempty"`
	HeldAt          time.Time  `json:"held_at"`
}

// Surgery is a surgery request together with its operative record, if the
// procedure has been performed.
type Surgery struct {
	ID               uuid.UUID      `json:"id"`
	MedicalRecordID  *uuid.UUID     `json:"medical_record_id,omitempty"`
	PreOpDiagnosis   string         `json:"pre_op_diagnosis,omitempty"`
	PreOpICDCode     string         `json:"pre_op_icd_code,omitempty"`
	PlannedProcedure string         `json:"planned_procedure,omitempty"`
	Record           *SurgeryRecord `json:"record,omitempty"`
	ScheduledAt      time.Time      `json:"scheduled_at"`
}

type SurgeryRecord struct {
	ProcedurePerformed string     `json:"procedure_performed,omitempty"`
	Findings           string     `json:"findings,omitempty"`
	PostOpDiagnosis    string     `json:"post_op_diagnosis,omitempty"`
	PostOpICDCode      string     `json:"post_op_icd_code,omitempty"`
	Complications      string     `json:"complications,omitempty"`
	PostOpInstructions string     `json:"post_op_instructions,omitempty"`
	BloodLossML        *int       `json:"blood_loss_ml,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	DurationMinutes    *int       `json:"duration_minutes,omitempty"`
}

type Prescription struct {
	ID              uuid.UUID          `json:"id"`
	MedicalRecordID *uuid.UUID         `json:"medical_record_id,omitempty"`
	Diagnosis       string             `json:"diagnosis,omitempty"`
	DiagnosisName   string             `json:"diagnosis_name,omitempty"`
	DiagnosisCode   string             `json:"diagnosis_code,omitempty"`
	Note            string             `json:"note,omitempty"`
	Instructions    string             `json:"instructions,omitempty"`
	Items           []PrescriptionItem `json:"items"`
	PrescribedAt    time.Time          `json:"prescribed_at"`
}

type PrescriptionItem struct {
	MedicineName string  `json:"medicine_name"`
	Dosage       string  `json:"dosage,omitempty"`
	Route        string  `json:"route,omitempty"`
	Frequency    string  `json:"frequency,omitempty"`
	Days         int     `json:"days,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	Unit         string  `json:"unit,omitempty"`
}

// Lookup reads one kind of clinical source record. Both methods return
// ErrSourceNotFound (possibly wrapped) when nothing matches.
// LatestForMedicalRecord orders by the record's own recency timestamp and
// breaks ties by creation time.
type Lookup[T any] interface {
	ByID(ctx context.Context, id uuid.UUID) (*T, error)
	LatestForMedicalRecord(ctx context.Context, medicalRecordID uuid.UUID) (*T, error)
}

// SourceAccessor is the read-only view of the clinical store documents are
// assembled from.
type SourceAccessor interface {
	// Patient returns ErrPatientNotFound when id does not resolve.
	Patient(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Actor returns ErrSourceNotFound when id does not resolve.
	Actor(ctx context.Context, id string) (*Actor, error)
	MedicalRecord(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	// RecentPrescriptions returns up to limit prescriptions, newest first.
	RecentPrescriptions(ctx context.Context, medicalRecordID uuid.UUID, limit int) ([]Prescription, error)

	Examinations() Lookup[Examination]
	LabRequests() Lookup[LabRequest]
	ImagingReports() Lookup[ImagingReport]
	DailyProgress() Lookup[DailyProgress]
	TreatmentSheets() Lookup[TreatmentSheet]
	Consultations() Lookup[Consultation]
	Surgeries() Lookup[Surgery]
	Prescriptions() Lookup[Prescription]
}
