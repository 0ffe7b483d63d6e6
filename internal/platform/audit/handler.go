package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/platform/auth"
	"github.com/chartview/chartview/internal/platform/fhir"
	"github.com/chartview/chartview/internal/token"
)

type Handler struct {
	repo   Repo
	logger zerolog.Logger
}

func NewHandler(repo Repo, logger zerolog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger.With().Str("component", "audit").Logger()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/audit/view", h.RecordView)
	api.GET("/audit/:source/patient/:id", h.ListViews)
}

type viewRequest struct {
	Source    string `json:"source"`
	PatientID string `json:"patientId"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
}

// RecordView logs that the caller viewed a patient record or document.
func (h *Handler) RecordView(c echo.Context) error {
	var req viewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("malformed audit event"))
	}
	source, err := token.ParseSource(req.Source)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	if req.PatientID == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("patientId is required"))
	}
	if req.Action == "" {
		req.Action = "view"
	}

	subject := auth.SubjectFromContext(c.Request().Context())
	if subject == "" {
		subject = "anonymous"
	}

	entry := &Entry{
		Subject:   subject,
		Source:    source.String(),
		PatientID: req.PatientID,
		Resource:  req.Resource,
		Action:    req.Action,
	}
	if err := h.repo.Record(c.Request().Context(), entry); err != nil {
		h.logger.Error().Err(err).Str("patient_id", req.PatientID).Msg("failed to record view event")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("could not record view event"))
	}
	return c.JSON(http.StatusCreated, entry)
}

// ListViews returns the recent view events for one patient.
func (h *Handler) ListViews(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	entries, err := h.repo.ListByPatient(c.Request().Context(), source.String(), c.Param("id"), 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("could not load audit trail"))
	}
	if entries == nil {
		entries = []Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
