package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/token"
)

// Source B filters DiagnosticReport searches by HL7 v2-0074 service
// category.
const (
	diagCategorySystem = "http://terminology.hl7.org/CodeSystem/v2-0074"
	diagCategoryRad    = "RAD"
	diagCategoryLab    = "LAB"

	// Clinical notes come from DocumentReference on this source, filtered
	// by the US Core clinical-note category.
	noteCategory = "clinical-note"
)

// DiagReportAdapter speaks to Source B, the backend that serves radiology
// and lab content as DiagnosticReport resources searched by category token,
// with clinical notes as DocumentReference. A single bearer suffices here;
// no platform header is configured.
type DiagReportAdapter struct {
	c *client
}

// NewDiagReportAdapter builds the Source B adapter from injected endpoint
// options.
func NewDiagReportAdapter(opts Options, hc *http.Client, tokens *token.Context, logger zerolog.Logger) *DiagReportAdapter {
	return &DiagReportAdapter{c: newClient(token.SourceB, opts, hc, tokens, logger)}
}

func (a *DiagReportAdapter) Source() token.Source { return token.SourceB }

func (a *DiagReportAdapter) FetchDemographics(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	body, _, err := a.c.get(ctx, cred, "Patient/"+url.PathEscape(patientID), nil, "")
	return body, err
}

func (a *DiagReportAdapter) FetchRadiology(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	return a.fetchReports(ctx, cred, patientID, diagCategoryRad)
}

func (a *DiagReportAdapter) FetchLabs(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	return a.fetchReports(ctx, cred, patientID, diagCategoryLab)
}

func (a *DiagReportAdapter) fetchReports(ctx context.Context, cred token.Credential, patientID, category string) (json.RawMessage, error) {
	query := url.Values{
		"patient":  {patientID},
		"category": {diagCategorySystem + "|" + category},
	}
	body, _, err := a.c.get(ctx, cred, "DiagnosticReport", query, "")
	return body, err
}

func (a *DiagReportAdapter) FetchNotes(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error) {
	query := url.Values{
		"patient":  {patientID},
		"category": {noteCategory},
	}
	body, _, err := a.c.get(ctx, cred, "DocumentReference", query, "")
	return body, err
}

func (a *DiagReportAdapter) SearchPatients(ctx context.Context, cred token.Credential, name string) (json.RawMessage, error) {
	body, _, err := a.c.get(ctx, cred, "Patient", url.Values{"name": {name}}, "")
	return body, err
}

func (a *DiagReportAdapter) FetchBinary(ctx context.Context, cred token.Credential, binaryID, accept string) (*BinaryContent, error) {
	body, contentType, err := a.c.get(ctx, cred, "Binary/"+url.PathEscape(binaryID), nil, accept)
	if err != nil {
		return nil, err
	}
	return &BinaryContent{ContentType: contentType, Body: body}, nil
}

func (a *DiagReportAdapter) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return a.c.exchangeCode(ctx, code)
}
