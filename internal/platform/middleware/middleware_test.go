package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/platform/auth"
)

func run(mw echo.MiddlewareFunc, h echo.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(h)(c)
	return rec, err
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	h := func(c echo.Context) error {
		seen, _ = c.Get(RequestIDKey).(string)
		return c.NoContent(http.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(RequestID(), h, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" {
		t.Error("request id should be set on the context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("response header %q should match context id %q", got, seen)
	}
}

func TestRequestIDHonorsCallerSupplied(t *testing.T) {
	h := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id-1")
	rec, err := run(RequestID(), h, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "caller-id-1" {
		t.Errorf("caller-supplied id must be kept, got %q", got)
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	h := func(echo.Context) error { panic("boom") }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(Recovery(zerolog.Nop()), h, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var outcome struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.ResourceType != "OperationOutcome" {
		t.Errorf("expected OperationOutcome body, got %s", rec.Body.String())
	}
}

func TestRecoveryPassesThroughNormally(t *testing.T) {
	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(Recovery(zerolog.Nop()), h, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("handler result should be untouched, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestLoggerPropagatesHandlerError(t *testing.T) {
	wantErr := echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	h := func(echo.Context) error { return wantErr }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := run(Logger(zerolog.Nop()), h, req)
	if err != wantErr {
		t.Errorf("logger must pass the handler error through, got %v", err)
	}
}

func TestLoggerIncludesSourceAndSubject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/a/patient/p1/record", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.SubjectKey, "dr-jones"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source")
	c.SetParamValues("a")

	if err := Logger(logger)(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line struct {
		Source  string `json:"source"`
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line.Source != "a" || line.Subject != "dr-jones" {
		t.Errorf("expected source/subject fields, got %s", buf.String())
	}
}

func TestRequestTimeoutReturns504(t *testing.T) {
	h := func(c echo.Context) error {
		select {
		case <-time.After(time.Second):
			return c.NoContent(http.StatusOK)
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(RequestTimeout(20*time.Millisecond), h, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
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
	if outcome.ResourceType != "OperationOutcome" || len(outcome.Issue) != 1 || outcome.Issue[0].Code != "timeout" {
		t.Errorf("expected timeout OperationOutcome, got %s", rec.Body.String())
	}
}

func TestRequestTimeoutFastHandlerUnaffected(t *testing.T) {
	h := func(c echo.Context) error { return c.String(http.StatusOK, "fast") }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, err := run(RequestTimeout(time.Second), h, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "fast" {
		t.Errorf("fast handler should be untouched, got %d %q", rec.Code, rec.Body.String())
	}
}
