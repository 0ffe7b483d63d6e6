package record

import (
	"encoding/json"
	"fmt"

	"github.com/chartview/chartview/internal/platform/fhir"
	"github.com/chartview/chartview/internal/token"
)

// UnrecognizedShapeError reports a demographics payload that is neither a
// direct Patient resource nor a bundle with a usable first entry. The raw
// payload rides along so the caller can render "unexpected shape" for
// diagnosis instead of dropping it silently.
type UnrecognizedShapeError struct {
	Source token.Source
	Raw    json.RawMessage
}

func (e *UnrecognizedShapeError) Error() string {
	return fmt.Sprintf("unrecognized demographics shape from source %s", e.Source)
}

// NormalizePatient maps a raw demographics payload into the canonical
// Patient. Decision order: direct resource marker first, then first bundle
// entry, then UnrecognizedShapeError. The same order applies to both
// sources; which shape arrives is a property of the source, not of this
// function.
func NormalizePatient(source token.Source, raw json.RawMessage) (*Patient, error) {
	switch fhir.ResourceType(raw) {
	case "Patient":
		var p fhir.Patient
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &UnrecognizedShapeError{Source: source, Raw: raw}
		}
		return mapPatient(source, p), nil

	case "Bundle":
		var b fhir.Bundle
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, &UnrecognizedShapeError{Source: source, Raw: raw}
		}
		for _, entry := range b.Entry {
			if fhir.ResourceType(entry.Resource) != "Patient" {
				continue
			}
			var p fhir.Patient
			if err := json.Unmarshal(entry.Resource, &p); err != nil {
				return nil, &UnrecognizedShapeError{Source: source, Raw: raw}
			}
			return mapPatient(source, p), nil
		}
		return nil, &UnrecognizedShapeError{Source: source, Raw: raw}
	}

	return nil, &UnrecognizedShapeError{Source: source, Raw: raw}
}

func mapPatient(source token.Source, p fhir.Patient) *Patient {
	name := ""
	if len(p.Name) > 0 {
		name = p.Name[0].Display()
	}
	return &Patient{
		ID:        p.ID,
		Source:    source,
		Name:      name,
		Gender:    p.Gender,
		BirthDate: p.BirthDate,
	}
}

// NormalizePatientSummaries maps a name-search result into the slim summary
// list. A direct Patient resource yields a single-element list; an absent
// entry sequence yields an empty one.
func NormalizePatientSummaries(source token.Source, raw json.RawMessage) ([]PatientSummary, error) {
	toSummary := func(p fhir.Patient) PatientSummary {
		cp := mapPatient(source, p)
		return PatientSummary{ID: cp.ID, Name: cp.Name, Gender: cp.Gender, BirthDate: cp.BirthDate}
	}

	switch fhir.ResourceType(raw) {
	case "Patient":
		var p fhir.Patient
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode patient from source %s: %w", source, err)
		}
		return []PatientSummary{toSummary(p)}, nil

	case "Bundle":
		var b fhir.Bundle
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode search bundle from source %s: %w", source, err)
		}
		out := make([]PatientSummary, 0, len(b.Entry))
		for _, entry := range b.Entry {
			if fhir.ResourceType(entry.Resource) != "Patient" {
				continue
			}
			var p fhir.Patient
			if err := json.Unmarshal(entry.Resource, &p); err != nil {
				continue
			}
			out = append(out, toSummary(p))
		}
		return out, nil
	}

	return nil, fmt.Errorf("unrecognized patient search payload from source %s", source)
}

// NormalizeDocuments maps a raw document payload into canonical documents,
// stamped with the record's source and requested category. A bundle without
// an entry sequence is an empty result, not an error; a bare document
// resource (seen from one source under some conditions) becomes a
// single-element list. Upstream ordering is preserved.
func NormalizeDocuments(source token.Source, category Category, raw json.RawMessage) ([]ClinicalDocument, error) {
	switch fhir.ResourceType(raw) {
	case "Bundle":
		var b fhir.Bundle
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode %s bundle from source %s: %w", category, source, err)
		}
		docs := make([]ClinicalDocument, 0, len(b.Entry))
		for _, entry := range b.Entry {
			var d fhir.DocumentResource
			if err := json.Unmarshal(entry.Resource, &d); err != nil {
				continue
			}
			if d.ID == "" {
				continue
			}
			docs = append(docs, mapDocument(source, category, d))
		}
		return docs, nil

	case "DocumentReference", "DiagnosticReport":
		var d fhir.DocumentResource
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode %s resource from source %s: %w", category, source, err)
		}
		if d.ID == "" {
			return []ClinicalDocument{}, nil
		}
		return []ClinicalDocument{mapDocument(source, category, d)}, nil
	}

	return nil, fmt.Errorf("unrecognized %s payload from source %s", category, source)
}

func mapDocument(source token.Source, category Category, d fhir.DocumentResource) ClinicalDocument {
	return ClinicalDocument{
		ID:            d.ID,
		Source:        source,
		Category:      category,
		Label:         docLabel(d, category),
		EffectiveDate: docDate(d),
		Status:        d.Status,
		Attachment:    docAttachment(d),
	}
}

// docLabel derives the display label with a fixed precedence, identical for
// both sources: coded text, then coding display, then free-text title, then
// the category's generic fallback. First non-empty wins.
func docLabel(d fhir.DocumentResource, category Category) string {
	if d.Code != nil && d.Code.Text != "" {
		return d.Code.Text
	}
	if d.Type != nil && d.Type.Text != "" {
		return d.Type.Text
	}
	if d.Code != nil && len(d.Code.Coding) > 0 && d.Code.Coding[0].Display != "" {
		return d.Code.Coding[0].Display
	}
	if d.Type != nil && len(d.Type.Coding) > 0 && d.Type.Coding[0].Display != "" {
		return d.Type.Coding[0].Display
	}
	if d.Title != "" {
		return d.Title
	}
	return category.FallbackLabel()
}

// docDate coalesces the varying upstream date fields: effectiveDateTime,
// then date, then issued.
func docDate(d fhir.DocumentResource) string {
	if d.EffectiveDateTime != "" {
		return d.EffectiveDateTime
	}
	if d.Date != "" {
		return d.Date
	}
	return d.Issued
}

// docAttachment extracts the document's attachment reference. The
// attachment comes from content[0] (DocumentReference) or presentedForm[0]
// (DiagnosticReport). Inline base64 is checked before the remote URL; that
// order is canonical.
func docAttachment(d fhir.DocumentResource) *AttachmentRef {
	var att *fhir.Attachment
	if len(d.Content) > 0 && d.Content[0].Attachment != nil {
		att = d.Content[0].Attachment
	} else if len(d.PresentedForm) > 0 {
		att = &d.PresentedForm[0]
	}
	if att == nil {
		return nil
	}

	if att.Data != "" {
		return &AttachmentRef{
			Kind:        AttachmentInline,
			ContentType: att.ContentType,
			Base64Data:  att.Data,
		}
	}
	if att.URL != "" {
		return &AttachmentRef{
			Kind:        AttachmentRemote,
			ContentType: att.ContentType,
			Locator:     att.URL,
		}
	}
	return nil
}
