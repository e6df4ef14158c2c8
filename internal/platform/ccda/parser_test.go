package ccda

import "testing"

func TestParser_Parse(t *testing.T) {
	root, err := NewParser().Parse([]byte(`<?xml version="1.0"?>
<ClinicalDocument xmlns="urn:hl7-org:v3" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <id root="1.2.3" extension="abc"/>
  <title> Note </title>
  <component><structuredBody><component><section/></component></structuredBody></component>
</ClinicalDocument>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if root.Name.Local != "ClinicalDocument" || root.Name.Space != CDANamespace {
		t.Errorf("unexpected root %v", root.Name)
	}
	if id := root.Child("id"); id == nil || id.Attr("extension") != "abc" {
		t.Error("expected id with extension")
	}
	if title := root.Child("title"); title == nil || title.Text != "Note" {
		t.Error("expected trimmed title text")
	}
	if root.Path("component", "structuredBody", "component", "section") == nil {
		t.Error("expected section via Path")
	}
	if root.Path("component", "missing") != nil {
		t.Error("Path through a missing element must return nil")
	}
}

func TestParser_IgnoresForeignNamespace(t *testing.T) {
	root, err := NewParser().Parse([]byte(`<ClinicalDocument xmlns="urn:hl7-org:v3"><x:id xmlns:x="urn:other" root="1"/></ClinicalDocument>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.Child("id") != nil {
		t.Error("child lookup must only match the CDA namespace")
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"not xml", "{\"resourceType\":\"Bundle\"}"},
		{"unclosed", "<ClinicalDocument><title>"},
		{"mismatched", "<a><b></a></b>"},
		{"two roots", "<a/><b/>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewParser().Parse([]byte(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
