// Package fhir holds the FHIR R4 wire shapes this service reads from the
// upstream EHR backends, plus OperationOutcome helpers for its own API
// errors. Only the fields the normalizer consumes are declared; everything
// else in an upstream payload is ignored on decode.
package fhir

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Coding is a single code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a coded value with an optional free-text rendering.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// HumanName per FHIR R4. Text takes precedence over the structured parts
// when present.
type HumanName struct {
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Display renders a HumanName the way the record view shows it: the
// upstream text when present, otherwise given names followed by family.
func (n HumanName) Display() string {
	if n.Text != "" {
		return n.Text
	}
	parts := append([]string{}, n.Given...)
	if n.Family != "" {
		parts = append(parts, n.Family)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Attachment is document content, either inline (Data, base64) or a pointer
// to a Binary endpoint (URL).
type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	Data        string `json:"data,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Patient is the demographics subset of a FHIR Patient resource.
type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Name         []HumanName `json:"name,omitempty"`
	Gender       string      `json:"gender,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"`
}

// DocumentContent wraps the attachment inside DocumentReference.content.
type DocumentContent struct {
	Attachment *Attachment `json:"attachment,omitempty"`
}

// DocumentResource is the union of the DocumentReference and
// DiagnosticReport fields the normalizer reads. The two sources return
// different resource types for the same clinical categories, so one decode
// target covers both.
type DocumentResource struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id"`
	Status            string            `json:"status,omitempty"`
	Type              *CodeableConcept  `json:"type,omitempty"`
	Code              *CodeableConcept  `json:"code,omitempty"`
	Title             string            `json:"title,omitempty"`
	Date              string            `json:"date,omitempty"`
	EffectiveDateTime string            `json:"effectiveDateTime,omitempty"`
	Issued            string            `json:"issued,omitempty"`
	Content           []DocumentContent `json:"content,omitempty"`
	PresentedForm     []Attachment      `json:"presentedForm,omitempty"`
}

// BundleEntry holds one searchset entry. Resource stays raw so callers can
// decode it into the shape the entry actually carries.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Bundle is a FHIR searchset. Entry may legitimately be absent when the
// search matched nothing; absence decodes to a nil slice, not an error.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// resourceTypeProbe decodes just enough of a payload to classify it.
type resourceTypeProbe struct {
	ResourceType string `json:"resourceType"`
}

// ResourceType returns the resourceType of a raw payload, or "" when the
// payload is not a JSON object carrying one.
func ResourceType(raw json.RawMessage) string {
	var probe resourceTypeProbe
	if err := json.Unmarshal(bytes.TrimSpace(raw), &probe); err != nil {
		return ""
	}
	return probe.ResourceType
}
