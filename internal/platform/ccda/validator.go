package ccda

import (
	"fmt"
	"strings"
)

// ValidationResult is the outcome of checking a serialized document.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Header elements every document must carry, in wire order.
var requiredElements = []string{
	"realmCode",
	"typeId",
	"templateId",
	"id",
	"code",
	"title",
	"effectiveTime",
	"recordTarget",
	"author",
	"custodian",
	"component",
}

var recommendedElements = []string{
	"confidentialityCode",
	"languageCode",
}

// headerOrder is the fixed wire order of the top-level header elements.
var headerOrder = func() map[string]int {
	names := []string{
		"realmCode", "typeId", "templateId", "id", "code", "title", "effectiveTime",
		"confidentialityCode", "languageCode", "recordTarget", "author", "custodian", "component",
	}
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// Validator checks serialized documents against the required and
// recommended element set. Problems are reported in the result; Validate
// never returns an error or panics on bad input.
type Validator struct {
	parser *Parser
}

func NewValidator() *Validator {
	return &Validator{parser: NewParser()}
}

// Validate parses text and checks it.
func (v *Validator) Validate(text []byte) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = invalid(fmt.Sprintf("Malformed document: %v", r))
		}
	}()

	root, err := v.parser.Parse(text)
	if err != nil {
		return invalid("Malformed document: " + strings.TrimPrefix(err.Error(), "ccda: "))
	}
	if root.Name.Space != CDANamespace || root.Name.Local != "ClinicalDocument" {
		return invalid("Root element must be ClinicalDocument in namespace " + CDANamespace)
	}

	r := &ValidationResult{Errors: []string{}, Warnings: []string{}}
	for _, name := range requiredElements {
		if root.Child(name) == nil {
			r.Errors = append(r.Errors, "Missing required element: "+name)
		}
	}

	checkHeaderOrder(root, r)
	checkHeaderDetails(root, r)
	checkBody(root, r)

	for _, name := range recommendedElements {
		if root.Child(name) == nil {
			r.Warnings = append(r.Warnings, "Missing recommended element: "+name)
		}
	}

	r.IsValid = len(r.Errors) == 0
	return *r
}

// checkHeaderOrder reports every header element that follows one it must
// precede. Elements outside the header set are ignored.
func checkHeaderOrder(root *Node, r *ValidationResult) {
	last, lastName := -1, ""
	reported := make(map[string]bool)
	for _, c := range root.Children {
		if c.Name.Space != CDANamespace {
			continue
		}
		rank, ok := headerOrder[c.Name.Local]
		if !ok {
			continue
		}
		if rank < last {
			if !reported[c.Name.Local] {
				reported[c.Name.Local] = true
				r.Errors = append(r.Errors, fmt.Sprintf("Element out of order: %s must precede %s", c.Name.Local, lastName))
			}
			continue
		}
		last, lastName = rank, c.Name.Local
	}
}

// checkHeaderDetails inspects header elements that are present. Missing
// elements were already reported, so nothing here fires twice for one gap.
func checkHeaderDetails(root *Node, r *ValidationResult) {
	if id := root.Child("id"); id != nil && id.Attr("root") == "" {
		r.Errors = append(r.Errors, "Document id has no root attribute")
	}
	if et := root.Child("effectiveTime"); et != nil {
		if v := et.Attr("value"); v == "" {
			r.Errors = append(r.Errors, "effectiveTime has no value attribute")
		} else if _, err := parseHL7Time(v); err != nil {
			r.Warnings = append(r.Warnings, "effectiveTime is not a valid HL7 timestamp")
		}
	}

	if rt := root.Child("recordTarget"); rt != nil {
		role := rt.Child("patientRole")
		if role == nil {
			r.Errors = append(r.Errors, "Missing required element: recordTarget/patientRole")
			return
		}
		ids := role.ChildrenNamed("id")
		if len(ids) == 0 {
			r.Errors = append(r.Errors, "Missing required element: recordTarget/patientRole/id")
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			ns := id.Attr("root")
			if seen[ns] {
				r.Warnings = append(r.Warnings, "Duplicate patient identifier namespace: "+ns)
			}
			seen[ns] = true
		}
		if role.Child("patient") == nil {
			r.Errors = append(r.Errors, "Missing required element: recordTarget/patientRole/patient")
		}
	}
}

// checkBody applies the section rules. A section without a code is only a
// warning.
func checkBody(root *Node, r *ValidationResult) {
	comp := root.Child("component")
	if comp == nil {
		return
	}
	body := comp.Child("structuredBody")
	if body == nil {
		r.Errors = append(r.Errors, "Missing required element: component/structuredBody")
		return
	}

	var sections []*Node
	for _, c := range body.ChildrenNamed("component") {
		if s := c.Child("section"); s != nil {
			sections = append(sections, s)
		}
	}
	if len(sections) == 0 {
		r.Warnings = append(r.Warnings, "Document body has no sections")
		return
	}

	for i, s := range sections {
		if code := s.Child("code"); code == nil || code.Attr("code") == "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Section %d is missing a code", i+1))
		}
		if title := s.Child("title"); title == nil || title.Text == "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Section %d is missing a title", i+1))
		}
	}
}

func invalid(msg string) ValidationResult {
	return ValidationResult{
		IsValid:  false,
		Errors:   []string{msg},
		Warnings: []string{},
	}
}
