// Package upstream talks to the two EHR backends. Each adapter translates
// canonical requests ("demographics for patient X", "radiology for patient
// X") into that source's HTTP calls and hands the raw payload back; shape
// differences between the sources are resolved later by the normalizer, so
// adapters stay mechanical.
//
// Adapters are stateless: every call takes the credential to use. One
// attempt per call, no retries; retry policy belongs to the caller.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chartview/chartview/internal/token"
)

// Adapter is the uniform surface both source adapters implement.
type Adapter interface {
	Source() token.Source

	FetchDemographics(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error)
	FetchRadiology(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error)
	FetchLabs(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error)
	FetchNotes(ctx context.Context, cred token.Credential, patientID string) (json.RawMessage, error)

	// SearchPatients runs a name search and returns the raw searchset
	// bundle.
	SearchPatients(ctx context.Context, cred token.Credential, name string) (json.RawMessage, error)

	// FetchBinary retrieves binary content by id, requesting the given
	// Accept media type.
	FetchBinary(ctx context.Context, cred token.Credential, binaryID, accept string) (*BinaryContent, error)

	// ExchangeCode swaps an OAuth authorization code for an access token at
	// the source's token endpoint.
	ExchangeCode(ctx context.Context, code string) (*TokenResponse, error)
}

// BinaryContent is the result of a binary fetch: the bytes plus the content
// type the upstream actually declared on the response.
type BinaryContent struct {
	ContentType string
	Body        []byte
}

// TokenResponse is the OAuth token endpoint response shape shared by both
// sources.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	Patient     string `json:"patient,omitempty"`
}

// RequestError is a failed upstream call: the HTTP status the source
// returned and whatever message its body carried.
type RequestError struct {
	Source  token.Source
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.Source, e.Status, e.Message)
}

// Options configures one adapter instance. Endpoint shapes are injected
// here, never hard-coded at call sites.
type Options struct {
	BaseURL        string
	AuthHeader     string
	PlatformHeader string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RedirectURI    string
}
