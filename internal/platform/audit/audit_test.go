package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestMemoryRepoRecordAndList(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.Record(ctx, &Entry{
			Subject:   "user-1",
			Source:    "a",
			PatientID: "P1",
			Action:    "view",
			Resource:  "doc-" + strconv.Itoa(i),
		})
		if err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	if err := repo.Record(ctx, &Entry{Subject: "user-1", Source: "b", PatientID: "P1", Action: "view"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	got, err := repo.ListByPatient(ctx, "a", "P1", 10)
	if err != nil {
		t.Fatalf("ListByPatient returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries for source a, got %d", len(got))
	}
	if got[0].Resource != "doc-2" {
		t.Errorf("expected newest entry first, got %q", got[0].Resource)
	}
	for _, e := range got {
		if e.ID.String() == "00000000-0000-0000-0000-000000000000" {
			t.Error("entries must be assigned ids")
		}
		if e.ViewedAt.IsZero() {
			t.Error("entries must be timestamped")
		}
	}
}

func TestMemoryRepoLimit(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := repo.Record(ctx, &Entry{Source: "a", PatientID: "P1", Action: "view"}); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	got, err := repo.ListByPatient(ctx, "a", "P1", 2)
	if err != nil {
		t.Fatalf("ListByPatient returned error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected limit of 2, got %d", len(got))
	}
}

func TestHandler_RecordView(t *testing.T) {
	repo := NewMemoryRepo()
	h := NewHandler(repo, zerolog.Nop())
	e := echo.New()

	body := `{"source":"a","patientId":"P1","resource":"doc-1"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.RecordView(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var entry Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if entry.Action != "view" {
		t.Errorf("action should default to view, got %q", entry.Action)
	}
	if entry.Subject != "anonymous" {
		t.Errorf("subject should default to anonymous, got %q", entry.Subject)
	}

	stored, err := repo.ListByPatient(context.Background(), "a", "P1", 10)
	if err != nil {
		t.Fatalf("ListByPatient returned error: %v", err)
	}
	if len(stored) != 1 || stored[0].Resource != "doc-1" {
		t.Errorf("event not stored correctly: %+v", stored)
	}
}

func TestHandler_RecordViewBadRequests(t *testing.T) {
	h := NewHandler(NewMemoryRepo(), zerolog.Nop())
	e := echo.New()

	cases := []struct {
		name string
		body string
	}{
		{"unknown source", `{"source":"epic","patientId":"P1"}`},
		{"missing patient id", `{"source":"a"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := h.RecordView(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandler_ListViews(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Record(context.Background(), &Entry{Subject: "u", Source: "b", PatientID: "P2", Action: "view"}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	h := NewHandler(repo, zerolog.Nop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source", "id")
	c.SetParamValues("b", "P2")

	if err := h.ListViews(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got []Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].PatientID != "P2" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestHandler_ListViewsEmpty(t *testing.T) {
	h := NewHandler(NewMemoryRepo(), zerolog.Nop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("source", "id")
	c.SetParamValues("a", "P9")

	if err := h.ListViews(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty trail must serialize as [], got %s", rec.Body.String())
	}
}
