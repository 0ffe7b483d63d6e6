package record

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/token"
	"github.com/chartview/chartview/internal/upstream"
)

func newTestHandler(t *testing.T, m *mockAdapter, tokens *token.Context) (*Handler, *echo.Echo) {
	t.Helper()
	agg := NewAggregator([]upstream.Adapter{m}, tokens, time.Second, zerolog.Nop())
	return NewHandler(agg), echo.New()
}

func TestHandler_GetPatientRecord(t *testing.T) {
	m := newMockAdapter(token.SourceA)
	m.demographics = json.RawMessage(`{"resourceType": "Patient", "id": "P1", "name": [{"text": "Jane Doe"}]}`)
	m.radiology = emptyBundle()
	m.labs = emptyBundle()
	m.notes = emptyBundle()

	h, e := newTestHandler(t, m, testTokens(t, token.SourceA))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source", "id")
	c.SetParamValues("a", "P1")

	if err := h.GetPatientRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got PatientRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Patient == nil || got.Patient.Name != "Jane Doe" {
		t.Errorf("unexpected patient: %+v", got.Patient)
	}
	if got.Source != token.SourceA || got.PatientID != "P1" {
		t.Errorf("unexpected record envelope: %+v", got)
	}
}

func TestHandler_GetPatientRecord_MissingCredential(t *testing.T) {
	m := newMockAdapter(token.SourceA)
	h, e := newTestHandler(t, m, token.NewContext())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source", "id")
	c.SetParamValues("a", "P1")

	if err := h.GetPatientRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var outcome struct {
		ResourceType string `json:"resourceType"`
		Issue        []struct {
			Code string `json:"code"`
		} `json:"issue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.ResourceType != "OperationOutcome" || len(outcome.Issue) != 1 || outcome.Issue[0].Code != "login" {
		t.Errorf("expected login OperationOutcome, got %s", rec.Body.String())
	}
}

func TestHandler_GetPatientRecord_BadInputs(t *testing.T) {
	m := newMockAdapter(token.SourceA)
	h, e := newTestHandler(t, m, testTokens(t, token.SourceA))

	cases := []struct {
		name       string
		source, id string
		wantStatus int
	}{
		{"unknown source", "epic", "P1", http.StatusBadRequest},
		{"invalid patient id", "a", "P 1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("source", "id")
			c.SetParamValues(tc.source, tc.id)

			if err := h.GetPatientRecord(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestHandler_SearchPatients(t *testing.T) {
	m := newMockAdapter(token.SourceB)
	m.search = json.RawMessage(`{
		"resourceType": "Bundle",
		"entry": [{"resource": {"resourceType": "Patient", "id": "P7", "name": [{"text": "Ann Lee"}]}}]
	}`)
	h, e := newTestHandler(t, m, testTokens(t, token.SourceB))

	req := httptest.NewRequest(http.MethodGet, "/?name=lee", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source")
	c.SetParamValues("b")

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got []PatientSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ann Lee" {
		t.Errorf("unexpected summaries: %+v", got)
	}
}

func TestHandler_SearchPatients_RequiresName(t *testing.T) {
	m := newMockAdapter(token.SourceA)
	h, e := newTestHandler(t, m, testTokens(t, token.SourceA))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source")
	c.SetParamValues("a")

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
