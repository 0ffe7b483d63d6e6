// Package record assembles the unified patient view: the canonical model,
// the pure normalization from each source's raw shapes, and the aggregator
// that fans out the four upstream fetches and merges the results with
// per-category fault isolation.
package record

import (
	"encoding/json"

	"github.com/chartview/chartview/internal/token"
)

// Category classifies a clinical document within the record.
type Category string

const (
	CategoryRadiology  Category = "radiology"
	CategoryLab        Category = "lab"
	CategoryNote       Category = "note"
	CategoryDiagnostic Category = "diagnostic"
)

// FallbackLabel is the generic display label used when a document carries
// no coded text, coding display, or title.
func (c Category) FallbackLabel() string {
	switch c {
	case CategoryRadiology:
		return "Radiology resource"
	case CategoryLab:
		return "Lab resource"
	case CategoryNote:
		return "Clinical note resource"
	default:
		return "Diagnostic resource"
	}
}

// AttachmentKind distinguishes inline content from a remote binary pointer.
type AttachmentKind string

const (
	AttachmentInline AttachmentKind = "inline"
	AttachmentRemote AttachmentKind = "remote"
)

// AttachmentRef points at a document's renderable content: either a base64
// payload carried inline, or a locator (absolute URL or opaque binary id)
// the attachment resolver turns into a fetchable endpoint.
type AttachmentRef struct {
	Kind        AttachmentKind `json:"kind" query:"kind"`
	ContentType string         `json:"contentType,omitempty" query:"contentType"`
	Base64Data  string         `json:"base64Data,omitempty" query:"base64Data"`
	Locator     string         `json:"locator,omitempty" query:"locator"`
}

// ClinicalDocument is the canonical view of one radiology report, lab
// report, or clinical note, regardless of which source and resource type it
// came from.
type ClinicalDocument struct {
	ID            string         `json:"id"`
	Source        token.Source   `json:"source"`
	Category      Category       `json:"category"`
	Label         string         `json:"label"`
	EffectiveDate string         `json:"effectiveDate,omitempty"`
	Status        string         `json:"status,omitempty"`
	Attachment    *AttachmentRef `json:"attachment,omitempty"`
}

// Patient is the canonical demographics view.
type Patient struct {
	ID        string       `json:"id"`
	Source    token.Source `json:"source"`
	Name      string       `json:"name"`
	Gender    string       `json:"gender,omitempty"`
	BirthDate string       `json:"birthDate,omitempty"`
}

// PatientSummary is the slim shape returned by name search.
type PatientSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

// FetchOutcome records how one of the four upstream fetches went. A failed
// category never aborts its siblings; it is recorded here and its sequence
// in the record stays empty.
type FetchOutcome struct {
	Failed bool   `json:"failed"`
	Status int    `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
	// Raw carries the offending payload when a demographics response had an
	// unrecognized shape, so the caller can surface it for diagnosis
	// instead of crashing.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Outcomes holds the per-fetch results for one record load.
type Outcomes struct {
	Demographics FetchOutcome `json:"demographics"`
	Radiology    FetchOutcome `json:"radiology"`
	Labs         FetchOutcome `json:"labs"`
	Notes        FetchOutcome `json:"notes"`
}

// PatientRecord is the assembled unified record. Source is set at
// construction and every document carries the same source tag. Patient is
// nil when the demographics fetch failed; the document lists are still
// populated independently so one upstream outage never blanks the whole
// view.
type PatientRecord struct {
	Source    token.Source       `json:"source"`
	PatientID string             `json:"patientId"`
	Patient   *Patient           `json:"patient"`
	Radiology []ClinicalDocument `json:"radiology"`
	Labs      []ClinicalDocument `json:"labs"`
	Notes     []ClinicalDocument `json:"notes"`
	Outcomes  Outcomes           `json:"outcomes"`
}

// Partial reports whether any of the four fetches failed.
func (r *PatientRecord) Partial() bool {
	return r.Outcomes.Demographics.Failed ||
		r.Outcomes.Radiology.Failed ||
		r.Outcomes.Labs.Failed ||
		r.Outcomes.Notes.Failed
}

// DemographicsUnavailable reports whether the record was returned without a
// patient because the demographics fetch itself failed.
func (r *PatientRecord) DemographicsUnavailable() bool {
	return r.Outcomes.Demographics.Failed
}
