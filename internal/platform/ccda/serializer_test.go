package ccda

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"
)

func TestSerialize_Deterministic(t *testing.T) {
	doc := testDocument(t)
	first := Serialize(doc)
	second := Serialize(doc)
	if !bytes.Equal(first, second) {
		t.Fatal("serializing the same document twice produced different bytes")
	}

	restored := Restore(doc.Content(), StatusFinal, nil)
	if !bytes.Equal(first, Serialize(restored)) {
		t.Error("status must not affect serialized output")
	}
}

func TestSerialize_Prolog(t *testing.T) {
	out := string(Serialize(testDocument(t)))
	if !strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Errorf("expected XML declaration first, got %q", out[:60])
	}
	if !strings.Contains(out, "<?xml-stylesheet "+Stylesheet+"?>") {
		t.Error("expected stylesheet processing instruction")
	}
	if !strings.HasSuffix(out, "</ClinicalDocument>\n") {
		t.Error("expected trailing newline after root element")
	}
}

func TestSerialize_HeaderOrder(t *testing.T) {
	root, err := NewParser().Parse(Serialize(testDocument(t)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if root.Name.Space != CDANamespace {
		t.Errorf("expected root namespace %s, got %s", CDANamespace, root.Name.Space)
	}

	want := []string{
		"realmCode", "typeId", "templateId", "id", "code", "title", "effectiveTime",
		"confidentialityCode", "languageCode", "recordTarget", "author", "custodian", "component",
	}
	var got []string
	for _, c := range root.Children {
		got = append(got, c.Name.Local)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("element order\n got: %v\nwant: %v", got, want)
	}
}

func TestSerialize_HeaderValues(t *testing.T) {
	root, err := NewParser().Parse(Serialize(testDocument(t)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	checks := []struct {
		name string
		node *Node
		attr string
		want string
	}{
		{"realm", root.Child("realmCode"), "code", "VN"},
		{"typeId", root.Child("typeId"), "extension", TypeIDExtension},
		{"template", root.Child("templateId"), "root", OIDGeneralHeader},
		{"id root", root.Child("id"), "root", OIDOrganization},
		{"code", root.Child("code"), "code", "18842-5"},
		{"effective time", root.Child("effectiveTime"), "value", "20240315093000+0700"},
		{"language", root.Child("languageCode"), "code", "vi-VN"},
		{"author time", root.Path("author", "time"), "value", "20240315093000+0700"},
		{"author id", root.Path("author", "assignedAuthor", "id"), "extension", "BS0042"},
		{"custodian id", root.Path("custodian", "assignedCustodian", "representedCustodianOrganization", "id"), "root", OIDOrganization},
	}
	for _, c := range checks {
		if c.node == nil {
			t.Errorf("%s: element missing", c.name)
			continue
		}
		if got := c.node.Attr(c.attr); got != c.want {
			t.Errorf("%s: %s = %q, want %q", c.name, c.attr, got, c.want)
		}
	}

	if title := root.Child("title"); title == nil || title.Text != "Discharge Summary" {
		t.Error("expected document title")
	}
}

func TestSerialize_PatientIdentifiersFirst(t *testing.T) {
	root, err := NewParser().Parse(Serialize(testDocument(t)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	role := root.Path("recordTarget", "patientRole")
	if role == nil {
		t.Fatal("missing patientRole")
	}

	wantRoots := []string{OIDOrganization, OIDNationalIdentity, OIDHealthInsurance}
	for i, want := range wantRoots {
		if role.Children[i].Name.Local != "id" {
			t.Fatalf("child %d is %s, want id", i, role.Children[i].Name.Local)
		}
		if got := role.Children[i].Attr("root"); got != want {
			t.Errorf("id %d root = %q, want %q", i, got, want)
		}
	}
	if role.Children[3].Name.Local != "addr" {
		t.Errorf("expected addr after identifiers, got %s", role.Children[3].Name.Local)
	}
	if tel := role.Child("telecom"); tel == nil || tel.Attr("value") != "tel:0901234567" {
		t.Error("expected phone telecom")
	}
}

func TestSerialize_BirthPrecision(t *testing.T) {
	tests := []struct {
		name  string
		birth Birth
		want  string
	}{
		{"full date", Birth{Value: time.Date(1985, 6, 2, 0, 0, 0, 0, time.UTC), Precision: BirthDate}, "19850602"},
		{"year only", Birth{Value: time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC), Precision: BirthYear}, "1985"},
		{"unknown", Birth{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHeader()
			h.Subject.Birth = tt.birth
			code, _ := Lookup(KeyPlan)
			doc, err := NewDocument(h).AddSection(code, "Plan", NewNarrative("Rest")).Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			root, err := NewParser().Parse(Serialize(doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			bt := root.Path("recordTarget", "patientRole", "patient", "birthTime")
			if tt.want == "" {
				if bt != nil {
					t.Errorf("expected no birthTime, got %q", bt.Attr("value"))
				}
				return
			}
			if bt == nil || bt.Attr("value") != tt.want {
				t.Errorf("expected birthTime %q", tt.want)
			}
		})
	}
}

func TestSerialize_SubjectExtras(t *testing.T) {
	h := testHeader()
	h.Subject.Gender = CodedConcept{}
	h.Subject.Email = "an.nguyen@example.vn"
	kinh := CodedConcept{Code: "01", CodeSystem: OIDEthnicity, DisplayName: "Kinh"}
	h.Subject.EthnicGroup = &kinh
	h.Subject.Guardian = &Guardian{Name: "Nguyen Van Ba", Phone: "0907654321"}
	code, _ := Lookup(KeyPlan)
	doc, err := NewDocument(h).AddSection(code, "Plan", NewNarrative("Rest")).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	root, err := NewParser().Parse(Serialize(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	patient := root.Path("recordTarget", "patientRole", "patient")
	if g := patient.Child("administrativeGenderCode"); g == nil || g.Attr("code") != "UN" {
		t.Error("expected unknown gender code when gender is missing")
	}
	if e := patient.Child("ethnicGroupCode"); e == nil || e.Attr("displayName") != "Kinh" {
		t.Error("expected ethnic group")
	}
	if n := patient.Path("guardian", "guardianPerson", "name"); n == nil || n.Text != "Nguyen Van Ba" {
		t.Error("expected guardian name")
	}

	var mail bool
	for _, tel := range root.Path("recordTarget", "patientRole").ChildrenNamed("telecom") {
		if tel.Attr("value") == "mailto:an.nguyen@example.vn" {
			mail = true
		}
	}
	if !mail {
		t.Error("expected mailto telecom")
	}
}

func TestSerialize_Sections(t *testing.T) {
	root, err := NewParser().Parse(Serialize(testDocument(t)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	comps := root.Path("component", "structuredBody").ChildrenNamed("component")
	if len(comps) != 5 {
		t.Fatalf("expected 5 sections, got %d", len(comps))
	}

	vitals := comps[1].Child("section")
	if tmpl := vitals.Child("templateId"); tmpl == nil || tmpl.Attr("root") != "2.16.840.1.113883.10.20.22.2.4.1" {
		t.Error("expected vital signs section template")
	}
	if items := vitals.Path("text", "list").ChildrenNamed("item"); len(items) != 2 {
		t.Errorf("expected 2 list items in vitals narrative, got %d", len(items))
	}
	cluster := vitals.Path("entry", "organizer")
	if cluster == nil || cluster.Attr("classCode") != "CLUSTER" {
		t.Fatal("expected vital signs cluster organizer")
	}
	if obs := cluster.ChildrenNamed("component"); len(obs) != 2 {
		t.Errorf("expected 2 observations in cluster, got %d", len(obs))
	}
	if v := cluster.Path("component", "observation", "value"); v == nil || v.Attr("unit") != "Cel" || v.Attr("value") != "38.5" {
		t.Error("expected temperature value 38.5 Cel")
	}

	dx := comps[2].Child("section")
	if c := dx.Path("entry", "observation", "code"); c == nil || c.Attr("code") != "J18.9" || c.Attr("codeSystem") != OIDICD10 {
		t.Error("expected ICD-10 coded diagnosis entry")
	}

	meds := comps[3].Child("section")
	sa := meds.Path("entry", "substanceAdministration")
	if sa == nil || sa.Attr("moodCode") != "INT" {
		t.Fatal("expected intended substance administration")
	}
	if q := sa.Child("doseQuantity"); q == nil || q.Attr("value") != "21" || q.Attr("unit") != "tablet" {
		t.Error("expected dose quantity 21 tablet")
	}
	if n := sa.Path("consumable", "manufacturedProduct", "manufacturedMaterial", "name"); n == nil || n.Text != "Amoxicillin 500mg" {
		t.Error("expected drug name")
	}

	labs := comps[4].Child("section")
	table := labs.Path("text", "table")
	if table == nil {
		t.Fatal("expected result table in lab narrative")
	}
	if rows := table.Child("tbody").ChildrenNamed("tr"); len(rows) != 2 {
		t.Errorf("expected 2 table rows, got %d", len(rows))
	}
	if org := labs.Path("entry", "organizer"); org == nil || org.Attr("classCode") != "BATTERY" {
		t.Error("expected result battery organizer")
	}
}

func TestSerialize_UnmarshalRoundTrip(t *testing.T) {
	var cd ClinicalDocument
	if err := xml.Unmarshal(Serialize(testDocument(t)), &cd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cd.Title != "Discharge Summary" {
		t.Errorf("expected title, got %q", cd.Title)
	}
	if cd.RecordTarget == nil || len(cd.RecordTarget.PatientRole.IDs) != 3 {
		t.Error("expected 3 patient identifiers")
	}
	if cd.Component == nil || len(cd.Component.StructuredBody.Components) != 5 {
		t.Error("expected 5 sections")
	}
}

func TestSerialize_EscapesText(t *testing.T) {
	code, _ := Lookup(KeyAssessment)
	doc, err := NewDocument(testHeader()).
		AddSection(code, "Assessment", NewNarrative("Na < 130 & K > 5.5")).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := Serialize(doc)
	if !bytes.Contains(out, []byte("Na &lt; 130 &amp; K &gt; 5.5")) {
		t.Error("expected narrative text to be escaped")
	}
	if r := NewValidator().Validate(out); !r.IsValid {
		t.Errorf("escaped document should validate, got %v", r.Errors)
	}
}
