package ccda

import "encoding/xml"

// ClinicalDocument is the root element of a CDA R2 document. Field order is
// the element order on the wire.
type ClinicalDocument struct {
	XMLName             xml.Name         `xml:"urn:hl7-org:v3 ClinicalDocument"`
	XSI                 string           `xml:"xmlns:xsi,attr"`
	SchemaLocation      string           `xml:"xsi:schemaLocation,attr,omitempty"`
	RealmCode           *cdaCode         `xml:"realmCode"`
	TypeID              *cdaTypeID       `xml:"typeId"`
	TemplateIDs         []cdaTemplateID  `xml:"templateId"`
	ID                  *cdaInstanceID   `xml:"id"`
	Code                *cdaCode         `xml:"code"`
	Title               string           `xml:"title"`
	EffectiveTime       *cdaTimeValue    `xml:"effectiveTime"`
	ConfidentialityCode *cdaCode         `xml:"confidentialityCode,omitempty"`
	LanguageCode        *cdaCode         `xml:"languageCode,omitempty"`
	RecordTarget        *cdaRecordTarget `xml:"recordTarget"`
	Author              *cdaAuthor       `xml:"author"`
	Custodian           *cdaCustodian    `xml:"custodian"`
	Component           *cdaComponent    `xml:"component"`
}

// cdaTypeID identifies the CDA R2 schema.
type cdaTypeID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

// cdaTemplateID specifies a template identifier.
type cdaTemplateID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// cdaInstanceID is a unique instance identifier.
type cdaInstanceID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// cdaCode represents a coded value with optional code system.
type cdaCode struct {
	Code           string `xml:"code,attr,omitempty"`
	CodeSystem     string `xml:"codeSystem,attr,omitempty"`
	CodeSystemName string `xml:"codeSystemName,attr,omitempty"`
	DisplayName    string `xml:"displayName,attr,omitempty"`
}

// cdaTimeValue holds a time stamp in HL7 format.
type cdaTimeValue struct {
	Value string `xml:"value,attr"`
}

type cdaRecordTarget struct {
	PatientRole *cdaPatientRole `xml:"patientRole"`
}

// cdaPatientRole carries every known patient identifier first, one id per namespace.
type cdaPatientRole struct {
	IDs      []cdaInstanceID `xml:"id"`
	Addr     *cdaAddress     `xml:"addr,omitempty"`
	Telecoms []cdaTelecom    `xml:"telecom,omitempty"`
	Patient  *cdaPatient     `xml:"patient"`
}

type cdaPatient struct {
	Name                     string        `xml:"name"`
	AdministrativeGenderCode *cdaCode      `xml:"administrativeGenderCode"`
	BirthTime                *cdaTimeValue `xml:"birthTime,omitempty"`
	EthnicGroupCode          *cdaCode      `xml:"ethnicGroupCode,omitempty"`
	Guardian                 *cdaGuardian  `xml:"guardian,omitempty"`
}

type cdaGuardian struct {
	Telecoms       []cdaTelecom `xml:"telecom,omitempty"`
	GuardianPerson *cdaPerson   `xml:"guardianPerson"`
}

type cdaPerson struct {
	Name string `xml:"name"`
}

// cdaAddress is a single free-text address line.
type cdaAddress struct {
	Use               string `xml:"use,attr,omitempty"`
	StreetAddressLine string `xml:"streetAddressLine"`
}

// cdaTelecom is a contact point URL (tel:, mailto:).
type cdaTelecom struct {
	Use   string `xml:"use,attr,omitempty"`
	Value string `xml:"value,attr"`
}

type cdaAuthor struct {
	Time           *cdaTimeValue      `xml:"time"`
	AssignedAuthor *cdaAssignedAuthor `xml:"assignedAuthor"`
}

type cdaAssignedAuthor struct {
	ID                      *cdaInstanceID   `xml:"id"`
	AssignedPerson          *cdaPerson       `xml:"assignedPerson"`
	RepresentedOrganization *cdaOrganization `xml:"representedOrganization,omitempty"`
}

type cdaOrganization struct {
	Name string `xml:"name"`
}

type cdaCustodian struct {
	AssignedCustodian *cdaAssignedCustodian `xml:"assignedCustodian"`
}

type cdaAssignedCustodian struct {
	RepresentedCustodianOrganization *cdaCustodianOrganization `xml:"representedCustodianOrganization"`
}

type cdaCustodianOrganization struct {
	ID      *cdaInstanceID `xml:"id"`
	Name    string         `xml:"name"`
	Telecom *cdaTelecom    `xml:"telecom,omitempty"`
}

// cdaComponent wraps the structured body.
type cdaComponent struct {
	StructuredBody *cdaStructuredBody `xml:"structuredBody"`
}

type cdaStructuredBody struct {
	Components []cdaSectionComponent `xml:"component"`
}

type cdaSectionComponent struct {
	Section *cdaSection `xml:"section"`
}

// cdaSection is a CDA section with code, title, narrative block and entries.
type cdaSection struct {
	TemplateIDs []cdaTemplateID `xml:"templateId,omitempty"`
	Code        *cdaCode        `xml:"code"`
	Title       string          `xml:"title"`
	Text        *cdaNarrative   `xml:"text"`
	Entries     []cdaEntry      `xml:"entry,omitempty"`
}

// cdaNarrative is the section's human-readable block: text, a list, and any
// result tables.
type cdaNarrative struct {
	Content string              `xml:",chardata"`
	List    *cdaNarrativeList   `xml:"list,omitempty"`
	Tables  []cdaNarrativeTable `xml:"table,omitempty"`
}

type cdaNarrativeList struct {
	Items []string `xml:"item"`
}

type cdaNarrativeTable struct {
	Border string             `xml:"border,attr,omitempty"`
	Thead  *cdaNarrativeThead `xml:"thead"`
	Tbody  *cdaNarrativeTbody `xml:"tbody"`
}

type cdaNarrativeThead struct {
	Tr *cdaNarrativeTr `xml:"tr"`
}

type cdaNarrativeTbody struct {
	Trs []cdaNarrativeTr `xml:"tr"`
}

type cdaNarrativeTr struct {
	Ths []string `xml:"th,omitempty"`
	Tds []string `xml:"td,omitempty"`
}

// cdaEntry wraps one clinical statement.
type cdaEntry struct {
	TypeCode                string                      `xml:"typeCode,attr,omitempty"`
	Observation             *cdaObservationEntry        `xml:"observation,omitempty"`
	Organizer               *cdaOrganizer               `xml:"organizer,omitempty"`
	SubstanceAdministration *cdaSubstanceAdministration `xml:"substanceAdministration,omitempty"`
}

type cdaObservationEntry struct {
	ClassCode  string    `xml:"classCode,attr"`
	MoodCode   string    `xml:"moodCode,attr"`
	Code       *cdaCode  `xml:"code"`
	Text       string    `xml:"text,omitempty"`
	StatusCode *cdaCode  `xml:"statusCode"`
	Value      *cdaValue `xml:"value,omitempty"`
}

// cdaValue is a typed observation value (PQ, CD or ST).
type cdaValue struct {
	Type           string `xml:"xsi:type,attr"`
	Value          string `xml:"value,attr,omitempty"`
	Unit           string `xml:"unit,attr,omitempty"`
	Code           string `xml:"code,attr,omitempty"`
	CodeSystem     string `xml:"codeSystem,attr,omitempty"`
	CodeSystemName string `xml:"codeSystemName,attr,omitempty"`
	DisplayName    string `xml:"displayName,attr,omitempty"`
	Text           string `xml:",chardata"`
}

// cdaOrganizer groups observations (vital sign clusters, result batteries).
type cdaOrganizer struct {
	ClassCode  string                  `xml:"classCode,attr"`
	MoodCode   string                  `xml:"moodCode,attr"`
	Code       *cdaCode                `xml:"code,omitempty"`
	StatusCode *cdaCode                `xml:"statusCode"`
	Components []cdaOrganizerComponent `xml:"component"`
}

type cdaOrganizerComponent struct {
	Observation *cdaObservationEntry `xml:"observation"`
}

type cdaSubstanceAdministration struct {
	ClassCode    string         `xml:"classCode,attr"`
	MoodCode     string         `xml:"moodCode,attr"`
	Text         string         `xml:"text,omitempty"`
	StatusCode   *cdaCode       `xml:"statusCode"`
	RouteCode    *cdaCode       `xml:"routeCode,omitempty"`
	DoseQuantity *cdaQuantity   `xml:"doseQuantity,omitempty"`
	Consumable   *cdaConsumable `xml:"consumable"`
}

type cdaQuantity struct {
	Value string `xml:"value,attr"`
	Unit  string `xml:"unit,attr,omitempty"`
}

type cdaConsumable struct {
	ManufacturedProduct *cdaManufacturedProduct `xml:"manufacturedProduct"`
}

type cdaManufacturedProduct struct {
	ManufacturedMaterial *cdaManufacturedMaterial `xml:"manufacturedMaterial"`
}

type cdaManufacturedMaterial struct {
	Name string `xml:"name"`
}
