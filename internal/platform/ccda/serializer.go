package ccda

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const processingInstructions = xml.Header + "<?xml-stylesheet " + Stylesheet + "?>\n"

// C-CDA section templates for the sections that have one.
var sectionTemplates = map[string]string{
	"10160-0": "2.16.840.1.113883.10.20.22.2.1.1",
	"10183-2": "2.16.840.1.113883.10.20.22.2.11.1",
	"8716-3":  "2.16.840.1.113883.10.20.22.2.4.1",
	"47519-4": "2.16.840.1.113883.10.20.22.2.7.1",
	"18776-5": "2.16.840.1.113883.10.20.22.2.10",
	"51848-0": "2.16.840.1.113883.10.20.22.2.8",
	"10219-4": "2.16.840.1.113883.10.20.22.2.34",
	"10218-6": "2.16.840.1.113883.10.20.22.2.35",
	"55109-3": "2.16.840.1.113883.10.20.22.2.37",
}

// Serialize renders doc as CDA XML. The output depends only on doc, so the
// same document always yields the same bytes.
func Serialize(doc *Document) []byte {
	out, err := xml.MarshalIndent(buildClinicalDocument(doc), "", "  ")
	if err != nil {
		// Only reachable if a wire struct gains a type encoding/xml rejects.
		panic(fmt.Sprintf("ccda: marshal document: %v", err))
	}
	result := make([]byte, 0, len(processingInstructions)+len(out)+1)
	result = append(result, processingInstructions...)
	result = append(result, out...)
	return append(result, '\n')
}

func buildClinicalDocument(doc *Document) *ClinicalDocument {
	h := doc.header

	cd := &ClinicalDocument{
		XSI:            XSINamespace,
		SchemaLocation: SchemaLocation,
		RealmCode:      &cdaCode{Code: h.Realm},
		TypeID:         &cdaTypeID{Root: TypeIDRoot, Extension: TypeIDExtension},
		ID:             &cdaInstanceID{Root: h.ID.Root, Extension: h.ID.Extension},
		Code:           toCode(h.Code),
		Title:          h.Title,
		EffectiveTime:  &cdaTimeValue{Value: FormatTimestamp(h.EffectiveTime)},
		RecordTarget:   buildRecordTarget(h.Subject),
		Author:         buildAuthor(h.Author, h.Custodian.ID),
		Custodian:      buildCustodian(h.Custodian),
	}
	for _, t := range h.TemplateIDs {
		cd.TemplateIDs = append(cd.TemplateIDs, cdaTemplateID{Root: t})
	}
	if !h.Confidentiality.IsZero() {
		cd.ConfidentialityCode = toCode(h.Confidentiality)
	}
	if h.Language != "" {
		cd.LanguageCode = &cdaCode{Code: h.Language}
	}

	body := &cdaStructuredBody{}
	for i := range doc.sections {
		body.Components = append(body.Components, cdaSectionComponent{Section: buildSection(doc.sections[i])})
	}
	cd.Component = &cdaComponent{StructuredBody: body}
	return cd
}

func buildRecordTarget(s Subject) *cdaRecordTarget {
	role := &cdaPatientRole{}
	for _, id := range s.Identifiers {
		role.IDs = append(role.IDs, cdaInstanceID{Root: id.Root, Extension: id.Extension})
	}
	if s.Address != "" {
		role.Addr = &cdaAddress{Use: "HP", StreetAddressLine: s.Address}
	}
	for _, p := range s.Phones {
		role.Telecoms = append(role.Telecoms, cdaTelecom{Use: "HP", Value: "tel:" + p})
	}
	if s.Email != "" {
		role.Telecoms = append(role.Telecoms, cdaTelecom{Use: "HP", Value: "mailto:" + s.Email})
	}

	gender := s.Gender
	if gender.IsZero() {
		gender = concepts[KeyGenderUnknown]
	}
	patient := &cdaPatient{
		Name:                     s.Name,
		AdministrativeGenderCode: toCode(gender),
	}
	if v := s.Birth.HL7(); v != "" {
		patient.BirthTime = &cdaTimeValue{Value: v}
	}
	if s.EthnicGroup != nil && !s.EthnicGroup.IsZero() {
		patient.EthnicGroupCode = toCode(*s.EthnicGroup)
	}
	if s.Guardian != nil && s.Guardian.Name != "" {
		g := &cdaGuardian{GuardianPerson: &cdaPerson{Name: s.Guardian.Name}}
		if s.Guardian.Phone != "" {
			g.Telecoms = []cdaTelecom{{Value: "tel:" + s.Guardian.Phone}}
		}
		patient.Guardian = g
	}
	role.Patient = patient

	return &cdaRecordTarget{PatientRole: role}
}

// buildAuthor places the author id in the custodian organisation's namespace.
func buildAuthor(a Author, root string) *cdaAuthor {
	assigned := &cdaAssignedAuthor{
		ID:             &cdaInstanceID{Root: root, Extension: a.ID},
		AssignedPerson: &cdaPerson{Name: a.Name},
	}
	if a.Organization != "" {
		assigned.RepresentedOrganization = &cdaOrganization{Name: a.Organization}
	}
	return &cdaAuthor{
		Time:           &cdaTimeValue{Value: FormatTimestamp(a.Time)},
		AssignedAuthor: assigned,
	}
}

func buildCustodian(c Custodian) *cdaCustodian {
	org := &cdaCustodianOrganization{
		ID:   &cdaInstanceID{Root: c.ID},
		Name: c.Name,
	}
	if c.Phone != "" {
		org.Telecom = &cdaTelecom{Value: "tel:" + c.Phone}
	}
	return &cdaCustodian{
		AssignedCustodian: &cdaAssignedCustodian{RepresentedCustodianOrganization: org},
	}
}

// buildSection renders narrative and entries. Measured observations are
// gathered into one CLUSTER organizer ahead of the other entries; tables are
// rendered in the narrative block and as a BATTERY organizer.
func buildSection(s Section) *cdaSection {
	out := &cdaSection{
		Code:  toCode(s.Code),
		Title: s.Title,
		Text:  buildNarrative(s.Narrative),
	}
	if tmpl, ok := sectionTemplates[s.Code.Code]; ok && s.Code.CodeSystem == OIDLOINC {
		out.TemplateIDs = []cdaTemplateID{{Root: tmpl}}
	}

	var cluster []cdaOrganizerComponent
	var rest []cdaEntry
	for _, e := range s.Entries {
		switch {
		case e.Observation != nil && e.Observation.Unit != "":
			cluster = append(cluster, cdaOrganizerComponent{Observation: buildObservation(*e.Observation)})
		case e.Observation != nil:
			rest = append(rest, cdaEntry{TypeCode: "DRIV", Observation: buildObservation(*e.Observation)})
		case e.Medication != nil:
			rest = append(rest, cdaEntry{TypeCode: "DRIV", SubstanceAdministration: buildSubstanceAdministration(*e.Medication)})
		case e.Table != nil:
			out.Text.Tables = append(out.Text.Tables, buildNarrativeTable(*e.Table))
			rest = append(rest, cdaEntry{TypeCode: "DRIV", Organizer: buildBattery(*e.Table)})
		}
	}
	if len(cluster) > 0 {
		out.Entries = append(out.Entries, cdaEntry{
			TypeCode: "DRIV",
			Organizer: &cdaOrganizer{
				ClassCode:  "CLUSTER",
				MoodCode:   "EVN",
				StatusCode: &cdaCode{Code: "completed"},
				Components: cluster,
			},
		})
	}
	out.Entries = append(out.Entries, rest...)
	return out
}

func buildNarrative(n Narrative) *cdaNarrative {
	if n.IsList() {
		return &cdaNarrative{List: &cdaNarrativeList{Items: n.Items}}
	}
	return &cdaNarrative{Content: n.Text}
}

func buildNarrativeTable(t TabularResult) cdaNarrativeTable {
	table := cdaNarrativeTable{
		Border: "1",
		Thead:  &cdaNarrativeThead{Tr: &cdaNarrativeTr{Ths: t.Columns}},
		Tbody:  &cdaNarrativeTbody{},
	}
	for _, row := range t.Rows {
		table.Tbody.Trs = append(table.Tbody.Trs, cdaNarrativeTr{Tds: row})
	}
	return table
}

func buildObservation(o CodedObservation) *cdaObservationEntry {
	obs := &cdaObservationEntry{
		ClassCode:  "OBS",
		MoodCode:   "EVN",
		Code:       toCode(o.Code),
		StatusCode: &cdaCode{Code: "completed"},
	}
	switch {
	case o.Unit != "":
		obs.Value = &cdaValue{Type: "PQ", Value: o.Value, Unit: o.Unit}
	case o.Value != "":
		obs.Value = &cdaValue{Type: "ST", Text: o.Value}
	}
	return obs
}

// buildBattery turns each table row into an observation named by its first
// cell, valued by its second, with the remaining cells as text.
func buildBattery(t TabularResult) *cdaOrganizer {
	org := &cdaOrganizer{
		ClassCode:  "BATTERY",
		MoodCode:   "EVN",
		StatusCode: &cdaCode{Code: "completed"},
	}
	for _, row := range t.Rows {
		obs := &cdaObservationEntry{
			ClassCode:  "OBS",
			MoodCode:   "EVN",
			StatusCode: &cdaCode{Code: "completed"},
		}
		if len(row) > 0 {
			obs.Code = &cdaCode{DisplayName: row[0]}
		}
		if len(row) > 1 {
			obs.Value = &cdaValue{Type: "ST", Text: row[1]}
		}
		var extra []string
		for i := 2; i < len(row) && i < len(t.Columns); i++ {
			if row[i] != "" {
				extra = append(extra, t.Columns[i]+": "+row[i])
			}
		}
		obs.Text = strings.Join(extra, "; ")
		org.Components = append(org.Components, cdaOrganizerComponent{Observation: obs})
	}
	return org
}

func buildSubstanceAdministration(m MedicationAdministration) *cdaSubstanceAdministration {
	sa := &cdaSubstanceAdministration{
		ClassCode:  "SBADM",
		MoodCode:   "INT",
		Text:       m.Summary(),
		StatusCode: &cdaCode{Code: "completed"},
		Consumable: &cdaConsumable{
			ManufacturedProduct: &cdaManufacturedProduct{
				ManufacturedMaterial: &cdaManufacturedMaterial{Name: m.DrugName},
			},
		},
	}
	if m.Route != "" {
		sa.RouteCode = &cdaCode{DisplayName: m.Route}
	}
	if m.Quantity > 0 {
		sa.DoseQuantity = &cdaQuantity{Value: FormatQuantity(m.Quantity), Unit: m.Unit}
	}
	return sa
}

func toCode(c CodedConcept) *cdaCode {
	return &cdaCode{
		Code:           c.Code,
		CodeSystem:     c.CodeSystem,
		CodeSystemName: c.SystemName,
		DisplayName:    c.DisplayName,
	}
}
