package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/token"
)

// LOINC document type codes Source A uses to partition DocumentReference
// searches into the three clinical categories.
const (
	docTypeRadiology = "18748-4"
	docTypeLab       = "24323-8"
	docTypeNote      = "34109-9"
)

// DocRefAdapter speaks to Source A, the backend that serves every document
// category as DocumentReference resources filtered by LOINC type code, and
// returns demographics as a bare Patient resource rather than a bundle. It
// is the source that requires the secondary platform bearer on every call.
type DocRefAdapter struct {
	c *client
}

// NewDocRefAdapter builds the Source A adapter from injected endpoint
// options.
func NewDocRefAdapter(opts Options, hc *http.Client, tokens *token.Context, logger zerolog.Logger) *DocRefAdapter {
	return &DocRefAdapter{c: newClient(token.SourceA, opts, hc, tokens, logger)}
}

func (a *DocRefAdapter) Source() token.Source { return token.SourceA }

func (a *DocRefAdapter) FetchDemographics(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	body, _, err := a.c.get(ctx, cred, "Patient/"+url.PathEscape(patientID), nil, "")
	return body, err
}

func (a *DocRefAdapter) FetchRadiology(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	return a.fetchDocuments(ctx, cred, patientID, docTypeRadiology)
}

func (a *DocRefAdapter) FetchLabs(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	return a.fetchDocuments(ctx, cred, patientID, docTypeLab)
}

func (a *DocRefAdapter) FetchNotes(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	return a.fetchDocuments(ctx, cred, patientID, docTypeNote)
}

func (a *DocRefAdapter) fetchDocuments(ctx context.Context, cred token.Credential, patientID, typeCode string) (json.RawMessage, error) {
	query := url.Values{
		"patientId": {patientID},
		"type":      {typeCode},
	}
	body, _, err := a.c.get(ctx, cred, "DocumentReference", query, "")
	return body, err
}

func (a *DocRefAdapter) SearchPatients(ctx context.Context, cred token.Credential, name string) (json.RawMessage, error) {
	body, _, err := a.c.get(ctx, cred, "Patient", url.Values{"name": {name}}, "")
	return body, err
}

func (a *DocRefAdapter) FetchBinary(ctx context.Context, cred token.Credential, binaryID, accept string) (*BinaryContent, error) {
	body, contentType, err := a.c.get(ctx, cred, "Binary/"+url.PathEscape(binaryID), nil, accept)
	if err != nil {
		return nil, err
	}
	return &BinaryContent{ContentType: contentType, Body: body}, nil
}

func (a *DocRefAdapter) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return a.c.exchangeCode(ctx, code)
}
