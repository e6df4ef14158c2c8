package ccda

import (
	"fmt"
	"strconv"
	"time"
)

// CDA namespaces, schema markers and code system OIDs.
const (
	CDANamespace = "urn:hl7-org:v3"
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

	SchemaLocation = "urn:hl7-org:v3 CDA.xsd"
	Stylesheet     = `type="text/xsl" href="CDA.xsl"`

	// CDA R2 type marker
	TypeIDRoot      = "2.16.840.1.113883.1.3"
	TypeIDExtension = "POCD_HD000040"

	// General header constraints
	OIDGeneralHeader = "2.16.840.1.113883.10.20.22.1.1"

	// Default organisational arc. Patient identifier namespaces hang off it.
	OIDOrganization     = "2.16.840.1.113883.2.24.1.1"
	OIDNationalIdentity = "2.16.840.1.113883.2.24.1.2"
	OIDHealthInsurance  = "2.16.840.1.113883.2.24.1.3"

	OIDLOINC           = "2.16.840.1.113883.6.1"
	OIDICD10           = "2.16.840.1.113883.6.3"
	OIDSNOMED          = "2.16.840.1.113883.6.96"
	OIDAdminGender     = "2.16.840.1.113883.5.1"
	OIDConfidentiality = "2.16.840.1.113883.5.25"
	OIDEthnicity       = "2.16.840.1.113883.5.50"
)

// CodedConcept is a code drawn from a controlled vocabulary. It is a plain
// value: two concepts are equal when all four fields are equal.
type CodedConcept struct {
	Code        string `json:"code"`
	CodeSystem  string `json:"code_system"`
	SystemName  string `json:"system_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// IsZero reports whether the concept carries no code.
func (c CodedConcept) IsZero() bool {
	return c.Code == ""
}

// WithDisplay returns a copy of c with the display name replaced.
func (c CodedConcept) WithDisplay(name string) CodedConcept {
	c.DisplayName = name
	return c
}

// Key names an entry of the vocabulary.
type Key string

// Document type keys.
const (
	KeyDischargeSummary     Key = "document.discharge-summary"
	KeyLabReport            Key = "document.lab-report"
	KeyImagingReport        Key = "document.imaging-report"
	KeyProgressNote         Key = "document.progress-note"
	KeyConsultationNote     Key = "document.consultation-note"
	KeyOperativeNote        Key = "document.operative-note"
	KeyReferralNote         Key = "document.referral-note"
	KeyPrescriptionDocument Key = "document.prescription"
)

// Section keys.
const (
	KeyChiefComplaint    Key = "section.chief-complaint"
	KeyHistory           Key = "section.history"
	KeyPhysicalExam      Key = "section.physical-exam"
	KeyDiagnoses         Key = "section.diagnoses"
	KeyProcedures        Key = "section.procedures"
	KeyHospitalCourse    Key = "section.hospital-course"
	KeyDischargeMeds     Key = "section.discharge-medications"
	KeyLabResults        Key = "section.lab-results"
	KeyImaging           Key = "section.imaging"
	KeyVitalSigns        Key = "section.vital-signs"
	KeyAssessment        Key = "section.assessment"
	KeyPlan              Key = "section.plan"
	KeyMedications       Key = "section.medications"
	KeyReasonForReferral Key = "section.reason-for-referral"
	KeyPreopDiagnosis    Key = "section.preop-diagnosis"
	KeyPostopDiagnosis   Key = "section.postop-diagnosis"
	KeyOperativeFindings Key = "section.operative-findings"
	KeyConsultation      Key = "section.consultation"
	KeyNursing           Key = "section.nursing"
	KeyComplications     Key = "section.complications"
	KeyBloodLoss         Key = "section.blood-loss"
	KeyProcedureDuration Key = "section.procedure-duration"
	KeyInstructions      Key = "section.instructions"
)

// Vital sign observation keys.
const (
	KeyTemperature     Key = "vital.temperature"
	KeyPulse           Key = "vital.pulse"
	KeySystolicBP      Key = "vital.systolic"
	KeyDiastolicBP     Key = "vital.diastolic"
	KeyRespiratoryRate Key = "vital.respiratory-rate"
	KeyHeight          Key = "vital.height"
	KeyWeight          Key = "vital.weight"
	KeySpO2            Key = "vital.spo2"
	KeyBMI             Key = "vital.bmi"
)

// Coding system and header concept keys.
const (
	KeySystemLOINC           Key = "system.loinc"
	KeySystemICD10           Key = "system.icd10"
	KeySystemSNOMED          Key = "system.snomed"
	KeyConfidentialityNormal Key = "confidentiality.normal"
	KeyGenderMale            Key = "gender.male"
	KeyGenderFemale          Key = "gender.female"
	KeyGenderUnknown         Key = "gender.unknown"
)

func loinc(code, display string) CodedConcept {
	return CodedConcept{Code: code, CodeSystem: OIDLOINC, SystemName: "LOINC", DisplayName: display}
}

var concepts = map[Key]CodedConcept{
	KeyDischargeSummary:     loinc("18842-5", "Discharge Summary"),
	KeyLabReport:            loinc("11502-2", "Laboratory Report"),
	KeyImagingReport:        loinc("18748-4", "Diagnostic Imaging Report"),
	KeyProgressNote:         loinc("11506-3", "Progress Note"),
	KeyConsultationNote:     loinc("11488-4", "Consultation Note"),
	KeyOperativeNote:        loinc("11504-8", "Surgical Operation Note"),
	KeyReferralNote:         loinc("34133-9", "Referral Note"),
	KeyPrescriptionDocument: loinc("57833-6", "Prescription"),

	KeyChiefComplaint:    loinc("10154-3", "Chief Complaint"),
	KeyHistory:           loinc("10164-2", "History of Present Illness"),
	KeyPhysicalExam:      loinc("29545-1", "Physical Examination"),
	KeyDiagnoses:         loinc("29308-4", "Diagnosis"),
	KeyProcedures:        loinc("47519-4", "Procedures"),
	KeyHospitalCourse:    loinc("8648-8", "Hospital Course"),
	KeyDischargeMeds:     loinc("10183-2", "Discharge Medications"),
	KeyLabResults:        loinc("26436-6", "Laboratory Results"),
	KeyImaging:           loinc("18748-4", "Imaging Findings"),
	KeyVitalSigns:        loinc("8716-3", "Vital Signs"),
	KeyAssessment:        loinc("51848-0", "Assessment"),
	KeyPlan:              loinc("18776-5", "Plan of Care"),
	KeyMedications:       loinc("10160-0", "Medications"),
	KeyReasonForReferral: loinc("42349-1", "Reason for Referral"),
	KeyPreopDiagnosis:    loinc("10219-4", "Preoperative Diagnosis"),
	KeyPostopDiagnosis:   loinc("10218-6", "Postoperative Diagnosis"),
	KeyOperativeFindings: loinc("10215-0", "Operative Findings"),
	KeyConsultation:      loinc("11488-4", "Consultation"),
	KeyNursing:           loinc("46209-3", "Nursing Care"),
	KeyComplications:     loinc("55109-3", "Complications"),
	KeyBloodLoss:         loinc("55111-9", "Estimated Blood Loss"),
	KeyProcedureDuration: loinc("55112-7", "Procedure Duration"),
	KeyInstructions:      loinc("69730-0", "Instructions"),

	KeyTemperature:     loinc("8310-5", "Body temperature"),
	KeyPulse:           loinc("8867-4", "Heart rate"),
	KeySystolicBP:      loinc("8480-6", "Systolic blood pressure"),
	KeyDiastolicBP:     loinc("8462-4", "Diastolic blood pressure"),
	KeyRespiratoryRate: loinc("9279-1", "Respiratory rate"),
	KeyHeight:          loinc("8302-2", "Body height"),
	KeyWeight:          loinc("29463-7", "Body weight"),
	KeySpO2:            loinc("2708-6", "Oxygen saturation"),
	KeyBMI:             loinc("39156-5", "Body mass index"),

	KeySystemLOINC:  {CodeSystem: OIDLOINC, SystemName: "LOINC"},
	KeySystemICD10:  {CodeSystem: OIDICD10, SystemName: "ICD-10"},
	KeySystemSNOMED: {CodeSystem: OIDSNOMED, SystemName: "SNOMED CT"},

	KeyConfidentialityNormal: {Code: "N", CodeSystem: OIDConfidentiality, SystemName: "Confidentiality", DisplayName: "Normal"},
	KeyGenderMale:            {Code: "M", CodeSystem: OIDAdminGender, SystemName: "AdministrativeGender", DisplayName: "Male"},
	KeyGenderFemale:          {Code: "F", CodeSystem: OIDAdminGender, SystemName: "AdministrativeGender", DisplayName: "Female"},
	KeyGenderUnknown:         {Code: "UN", CodeSystem: OIDAdminGender, SystemName: "AdministrativeGender", DisplayName: "Undifferentiated"},
}

// UCUM units for the vital sign keys.
var units = map[Key]string{
	KeyTemperature:     "Cel",
	KeyPulse:           "/min",
	KeySystolicBP:      "mm[Hg]",
	KeyDiastolicBP:     "mm[Hg]",
	KeyRespiratoryRate: "/min",
	KeyHeight:          "cm",
	KeyWeight:          "kg",
	KeySpO2:            "%",
	KeyBMI:             "kg/m2",
}

// Lookup returns the concept registered under key.
func Lookup(key Key) (CodedConcept, error) {
	c, ok := concepts[key]
	if !ok {
		return CodedConcept{}, fmt.Errorf("%w: %q", ErrUnknownVocabularyKey, key)
	}
	return c, nil
}

// Unit returns the UCUM unit for a measured key, or "" if it has none.
func Unit(key Key) string {
	return units[key]
}

// Code returns a concept in the coding system registered under system.
func Code(system Key, code, display string) (CodedConcept, error) {
	c, err := Lookup(system)
	if err != nil {
		return CodedConcept{}, err
	}
	c.Code = code
	c.DisplayName = display
	return c, nil
}

// FormatTimestamp formats t as an HL7 TS with seconds and zone offset.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102150405-0700")
}

// FormatDate formats t as an HL7 date (YYYYMMDD).
func FormatDate(t time.Time) string {
	return t.Format("20060102")
}

// FormatYear formats a year-only HL7 date.
func FormatYear(year int) string {
	return fmt.Sprintf("%04d", year)
}

// FormatQuantity renders a measurement without trailing zeros.
func FormatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseHL7Time parses HL7 timestamps of the lengths this package emits.
func parseHL7Time(s string) (time.Time, error) {
	switch len(s) {
	case 19:
		return time.Parse("20060102150405-0700", s)
	case 14:
		return time.Parse("20060102150405", s)
	case 8:
		return time.Parse("20060102", s)
	case 4:
		return time.Parse("2006", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported HL7 time format: %s", s)
	}
}
