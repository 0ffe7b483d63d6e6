package attachment

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/token"
	"github.com/chartview/chartview/internal/upstream"
)

func postRef(t *testing.T, h *Handler, source, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source")
	c.SetParamValues(source)

	if err := h.ResolveAttachment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestHandler_ResolveInline(t *testing.T) {
	b := &binaryAdapter{source: token.SourceA}
	h := NewHandler(newTestResolver(t, b))

	data := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	rec := postRef(t, h, "a", `{"kind":"inline","contentType":"application/pdf","base64Data":"`+data+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/pdf" {
		t.Errorf("unexpected content type %q", got)
	}
	if rec.Body.String() != "%PDF-1.4" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_ResolveInlineViaQueryParams(t *testing.T) {
	b := &binaryAdapter{source: token.SourceA}
	h := NewHandler(newTestResolver(t, b))

	data := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	e := echo.New()
	target := "/?kind=inline&contentType=application%2Fpdf&base64Data=" + url.QueryEscape(data)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source")
	c.SetParamValues("a")

	if err := h.ResolveAttachment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "%PDF-1.4" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_ResolveCorruptInline(t *testing.T) {
	b := &binaryAdapter{source: token.SourceA}
	h := NewHandler(newTestResolver(t, b))

	rec := postRef(t, h, "a", `{"kind":"inline","base64Data":"???"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestHandler_ResolveRemoteNotFound(t *testing.T) {
	b := &binaryAdapter{
		source: token.SourceA,
		err:    &upstream.RequestError{Source: token.SourceA, Status: 404, Message: "gone"},
	}
	h := NewHandler(newTestResolver(t, b))

	rec := postRef(t, h, "a", `{"kind":"remote","locator":"doc-1"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_ResolveMissingCredential(t *testing.T) {
	b := &binaryAdapter{source: token.SourceA}
	h := NewHandler(NewResolver([]upstream.Adapter{b}, token.NewContext(), zerolog.Nop()))

	rec := postRef(t, h, "a", `{"kind":"remote","locator":"doc-1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_UnknownSource(t *testing.T) {
	b := &binaryAdapter{source: token.SourceA}
	h := NewHandler(newTestResolver(t, b))

	rec := postRef(t, h, "cerner", `{"kind":"remote","locator":"doc-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
