package cdadocument

import (
	"context"
	"fmt"
	"strings"

	"github.com/ehr/clinicaldocs/internal/platform/ccda"
)

const (
	dischargeMedicationLimit = 5
	referralPrescriptionLimit = 3
)

func (a *Assembler) dischargeSummary(ctx context.Context, in input) ([]sectionSpec, error) {
	exam, err := fetch(ctx, a.source.Examinations(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load examination: %w", err)
	}
	var examRecord = in.record
	if exam != nil {
		if examRecord, err = a.recordFor(ctx, in, exam.MedicalRecordID); err != nil {
			return nil, err
		}
	}
	hasSource := exam != nil || examRecord != nil

	var l sectionList
	l.text(ccda.KeyChiefComplaint, "Chief Complaint", resolve(
		field("examination", exam, func(e *Examination) string { return e.ChiefComplaint }),
	).value)
	l.text(ccda.KeyHistory, "History of Present Illness", resolve(
		field("examination", exam, func(e *Examination) string { return e.PresentIllness }),
		patientHistory(in.patient, hasSource),
	).value)
	l.add(physicalExamSection(exam))
	if vs, ok := vitalSignsSection(exam); ok {
		l.add(vs)
	}
	l.add(diagnosisSection(exam, examRecord))
	l.text(ccda.KeyHospitalCourse, "Hospital Course", resolve(
		field("examination.conclusion", exam, func(e *Examination) string { return e.ConclusionNote }),
		field("examination.plan", exam, func(e *Examination) string { return e.TreatmentPlan }),
		field("medical_record", examRecord, func(m *MedicalRecord) string { return m.DischargeNote }),
	).value)

	if examRecord != nil {
		rxs, err := a.source.RecentPrescriptions(ctx, examRecord.ID, dischargeMedicationLimit)
		if err != nil {
			return nil, fmt.Errorf("load prescriptions: %w", err)
		}
		if meds, ok := medicationSection(ccda.KeyDischargeMeds, "Discharge Medications", rxs); ok {
			l.add(meds)
		}
	}

	l.text(ccda.KeyPlan, "Follow-up Plan", followUp(exam))
	return l, nil
}

// patientHistory offers the patient's recorded history, but only when the
// document has clinical source data of its own.
func patientHistory(p *Patient, hasSource bool) strategy {
	if !hasSource {
		return literal("patient", "")
	}
	return field("patient", p, func(p *Patient) string { return p.MedicalHistory })
}

func followUp(exam *Examination) string {
	if exam == nil {
		return Placeholder
	}
	if exam.FollowUpDate == nil {
		return "No follow-up visit scheduled"
	}
	lines := []string{"Follow-up visit: " + exam.FollowUpDate.Format("02/01/2006")}
	if plan := strings.TrimSpace(exam.TreatmentPlan); plan != "" {
		lines = append(lines, plan)
	}
	return strings.Join(lines, "\n")
}

func (a *Assembler) labReport(ctx context.Context, in input) ([]sectionSpec, error) {
	lab, err := fetch(ctx, a.source.LabRequests(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load lab request: %w", err)
	}

	var l sectionList
	if lab == nil || len(lab.Results) == 0 {
		l.text(ccda.KeyLabResults, "Laboratory Results", Placeholder)
		return l, nil
	}

	l.add(labResultsSection(lab.Results))
	l.optional(ccda.KeyHistory, "Clinical Information", lab.ClinicalInfo)
	if lab.DiagnosisName != "" {
		l.add(codedSection(ccda.KeyDiagnoses, "Diagnosis",
			resolve(literal("lab_request", lab.DiagnosisName)), lab.DiagnosisCode))
	}
	return l, nil
}

func (a *Assembler) imagingReport(ctx context.Context, in input) ([]sectionSpec, error) {
	report, err := fetch(ctx, a.source.ImagingReports(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load imaging report: %w", err)
	}

	var l sectionList
	if report != nil {
		l.optional(ccda.KeyHistory, "Reason for Study", report.ClinicalInfo)
	}
	l.text(ccda.KeyImaging, "Findings", resolve(
		field("imaging_report", report, func(r *ImagingReport) string { return r.Findings }),
	).value)
	l.text(ccda.KeyAssessment, "Impression", resolve(
		field("imaging_report", report, func(r *ImagingReport) string { return r.Impression }),
	).value)
	if report != nil {
		l.optional(ccda.KeyPlan, "Recommendations", report.Recommendations)
	}
	return l, nil
}

// progressNote uses the first source found among daily progress, treatment
// sheet and examination.
func (a *Assembler) progressNote(ctx context.Context, in input) ([]sectionSpec, error) {
	progress, err := fetch(ctx, a.source.DailyProgress(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load daily progress: %w", err)
	}
	var sheet *TreatmentSheet
	if progress == nil {
		if sheet, err = fetch(ctx, a.source.TreatmentSheets(), in.Request); err != nil {
			return nil, fmt.Errorf("load treatment sheet: %w", err)
		}
	}
	var exam *Examination
	if progress == nil && sheet == nil {
		if exam, err = fetch(ctx, a.source.Examinations(), in.Request); err != nil {
			return nil, fmt.Errorf("load examination: %w", err)
		}
	}

	var l sectionList
	l.text(ccda.KeyChiefComplaint, "Subjective", resolve(
		field("daily_progress", progress, func(p *DailyProgress) string { return p.Subjective }),
		field("examination", exam, func(e *Examination) string { return e.ChiefComplaint }),
	).value)

	objective := resolve(
		field("daily_progress", progress, func(p *DailyProgress) string { return p.Objective }),
		field("examination", exam, func(e *Examination) string { return e.PhysicalExamination }),
	)
	var lines []string
	if objective.found() {
		lines = append(lines, objective.value)
	}
	if progress != nil && strings.TrimSpace(progress.VitalSigns) != "" {
		lines = append(lines, "Vital signs: "+strings.TrimSpace(progress.VitalSigns))
	}
	lines = append(lines, vitalLines(exam)...)
	if len(lines) == 0 {
		lines = []string{Placeholder}
	}
	l.text(ccda.KeyPhysicalExam, "Objective", strings.Join(lines, "\n"))

	l.text(ccda.KeyAssessment, "Assessment", resolve(
		field("daily_progress", progress, func(p *DailyProgress) string { return p.Assessment }),
		field("treatment_sheet", sheet, func(s *TreatmentSheet) string { return s.PatientCondition }),
		field("examination", exam, func(e *Examination) string { return e.MainDiagnosis }),
	).value)
	l.text(ccda.KeyPlan, "Plan", resolve(
		field("daily_progress", progress, func(p *DailyProgress) string { return p.Plan }),
		field("treatment_sheet", sheet, func(s *TreatmentSheet) string { return s.DoctorOrders }),
		field("examination", exam, func(e *Examination) string { return e.TreatmentPlan }),
	).value)

	if sheet != nil {
		l.optional(ccda.KeyNursing, "Nursing Care", sheet.NursingCare)
	}
	if vs, ok := vitalSignsSection(exam); ok {
		l.add(vs)
	}
	return l, nil
}

func (a *Assembler) consultationNote(ctx context.Context, in input) ([]sectionSpec, error) {
	c, err := fetch(ctx, a.source.Consultations(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	var l sectionList
	l.text(ccda.KeyReasonForReferral, "Reason for Consultation", resolve(
		field("consultation", c, func(c *Consultation) string { return c.Reason }),
	).value)
	l.text(ccda.KeyConsultation, "Case Summary", resolve(
		field("consultation", c, func(c *Consultation) string { return c.Summary }),
	).value)
	l.text(ccda.KeyAssessment, "Conclusion", resolve(
		field("consultation", c, func(c *Consultation) string { return c.Conclusion }),
	).value)
	l.text(ccda.KeyPlan, "Treatment Plan", resolve(
		field("consultation", c, func(c *Consultation) string { return c.TreatmentPlan }),
	).value)

	if c != nil {
		var participants []string
		if c.PresidedBy != "" {
			participants = append(participants, "Chair: "+c.PresidedBy)
		}
		if c.Secretary != "" {
			participants = append(participants, "Secretary: "+c.Secretary)
		}
		l.optional(ccda.KeyHistory, "Participants", strings.Join(participants, "\n"))
	}
	return l, nil
}

func (a *Assembler) operativeNote(ctx context.Context, in input) ([]sectionSpec, error) {
	s, err := fetch(ctx, a.source.Surgeries(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load surgery: %w", err)
	}
	var rec *SurgeryRecord
	if s != nil {
		rec = s.Record
	}

	var l sectionList
	var preOpCode string
	if s != nil {
		preOpCode = s.PreOpICDCode
	}
	l.add(codedSection(ccda.KeyPreopDiagnosis, "Preoperative Diagnosis", resolve(
		field("surgery", s, func(s *Surgery) string { return s.PreOpDiagnosis }),
	), preOpCode))

	l.text(ccda.KeyProcedures, "Procedure", resolve(
		field("surgery_record", rec, func(r *SurgeryRecord) string { return r.ProcedurePerformed }),
		field("surgery", s, func(s *Surgery) string {
			if s.PlannedProcedure == "" || s.Record != nil {
				return s.PlannedProcedure
			}
			return "Planned, not performed: " + s.PlannedProcedure
		}),
	).value)
	l.text(ccda.KeyOperativeFindings, "Operative Findings", resolve(
		field("surgery_record", rec, func(r *SurgeryRecord) string { return r.Findings }),
	).value)

	var postOpCode string
	if rec != nil {
		postOpCode = rec.PostOpICDCode
	}
	l.add(codedSection(ccda.KeyPostopDiagnosis, "Postoperative Diagnosis", resolve(
		field("surgery_record", rec, func(r *SurgeryRecord) string { return r.PostOpDiagnosis }),
	), postOpCode))

	if rec != nil {
		l.optional(ccda.KeyComplications, "Complications", rec.Complications)
		if rec.BloodLossML != nil {
			l.text(ccda.KeyBloodLoss, "Estimated Blood Loss", fmt.Sprintf("%d ml", *rec.BloodLossML))
		}
		l.optional(ccda.KeyProcedureDuration, "Procedure Duration", procedureDuration(rec))
		l.optional(ccda.KeyPlan, "Postoperative Instructions", rec.PostOpInstructions)
	}
	return l, nil
}

// procedureDuration prefers the recorded minutes and otherwise computes
// them from the start and end times.
func procedureDuration(r *SurgeryRecord) string {
	var minutes int
	switch {
	case r.DurationMinutes != nil:
		minutes = *r.DurationMinutes
	case r.StartedAt != nil && r.EndedAt != nil:
		minutes = int(r.EndedAt.Sub(*r.StartedAt).Minutes())
	default:
		return ""
	}

	const layout = "15:04 02/01/2006"
	if r.StartedAt != nil && r.EndedAt != nil {
		return fmt.Sprintf("Start: %s, end: %s, duration: %d minutes",
			r.StartedAt.Format(layout), r.EndedAt.Format(layout), minutes)
	}
	return fmt.Sprintf("Duration: %d minutes", minutes)
}

func (a *Assembler) referralNote(ctx context.Context, in input) ([]sectionSpec, error) {
	exam, err := fetch(ctx, a.source.Examinations(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load examination: %w", err)
	}
	var examRecord = in.record
	if exam != nil {
		if examRecord, err = a.recordFor(ctx, in, exam.MedicalRecordID); err != nil {
			return nil, err
		}
	}
	hasSource := exam != nil || examRecord != nil

	var l sectionList
	l.text(ccda.KeyReasonForReferral, "Reason for Referral", resolve(
		field("examination", exam, func(e *Examination) string { return e.ConclusionNote }),
	).value)
	l.add(diagnosisSection(exam, examRecord))
	l.text(ccda.KeyHistory, "History of Present Illness", resolve(
		field("examination", exam, func(e *Examination) string { return e.PresentIllness }),
		patientHistory(in.patient, hasSource),
	).value)
	l.add(physicalExamSection(exam))
	if vs, ok := vitalSignsSection(exam); ok {
		l.add(vs)
	}

	var treatment []string
	if exam != nil && strings.TrimSpace(exam.TreatmentPlan) != "" {
		treatment = append(treatment, "Treatment plan: "+strings.TrimSpace(exam.TreatmentPlan))
	}
	if examRecord != nil {
		rxs, err := a.source.RecentPrescriptions(ctx, examRecord.ID, referralPrescriptionLimit)
		if err != nil {
			return nil, fmt.Errorf("load prescriptions: %w", err)
		}
		for _, rx := range rxs {
			treatment = append(treatment, prescriptionLine(rx))
		}
	}
	l.optional(ccda.KeyHospitalCourse, "Treatment Provided", strings.Join(treatment, "\n"))
	return l, nil
}

func prescriptionLine(rx Prescription) string {
	items := make([]string, 0, len(rx.Items))
	for _, item := range rx.Items {
		s := item.name()
		if item.Dosage != "" {
			s += " " + item.Dosage
		}
		if item.Quantity > 0 {
			s += " x" + ccda.FormatQuantity(item.Quantity)
		}
		items = append(items, s)
	}
	return fmt.Sprintf("Prescription (%s): %s", rx.PrescribedAt.Format("02/01/2006"), strings.Join(items, ", "))
}

func (a *Assembler) prescription(ctx context.Context, in input) ([]sectionSpec, error) {
	rx, err := fetch(ctx, a.source.Prescriptions(), in.Request)
	if err != nil {
		return nil, fmt.Errorf("load prescription: %w", err)
	}

	var l sectionList
	var code string
	if rx != nil {
		code = rx.DiagnosisCode
	}
	l.add(codedSection(ccda.KeyDiagnoses, "Diagnosis", resolve(
		field("prescription.name", rx, func(p *Prescription) string { return p.DiagnosisName }),
		field("prescription", rx, func(p *Prescription) string { return p.Diagnosis }),
	), code))

	var rxs []Prescription
	if rx != nil {
		rxs = []Prescription{*rx}
	}
	if meds, ok := medicationSection(ccda.KeyMedications, "Medications", rxs); ok {
		l.add(meds)
	} else {
		l.text(ccda.KeyMedications, "Medications", Placeholder)
	}

	if rx != nil {
		l.optional(ccda.KeyPlan, "Advice", rx.Note)
		l.optional(ccda.KeyInstructions, "Instructions", rx.Instructions)
	}
	return l, nil
}
