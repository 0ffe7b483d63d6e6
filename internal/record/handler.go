package record

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chartview/chartview/internal/platform/fhir"
	"github.com/chartview/chartview/internal/token"
)

type Handler struct {
	agg *Aggregator
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/:source/patient/:id/record", h.GetPatientRecord)
	api.GET("/:source/patients", h.SearchPatients)
}

func (h *Handler) GetPatientRecord(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	rec, err := h.agg.LoadPatientRecord(c.Request().Context(), source, c.Param("id"))
	if err != nil {
		return recordError(c, source, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	name := c.QueryParam("name")
	if name == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("name query parameter is required"))
	}

	items, err := h.agg.SearchPatients(c.Request().Context(), source, name)
	if err != nil {
		return recordError(c, source, err)
	}
	return c.JSON(http.StatusOK, items)
}

// recordError maps the aggregator's terminal errors onto HTTP responses.
func recordError(c echo.Context, source token.Source, err error) error {
	switch {
	case errors.Is(err, token.ErrMissingCredential):
		return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome(source.String()))
	case errors.Is(err, ErrInvalidPatientID):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("patient id must be 1-64 characters of letters, digits, dashes or dots"))
	case errors.Is(err, ErrUnknownSource):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("source"))
	}
	return c.JSON(http.StatusBadGateway, fhir.ErrorOutcome(err.Error()))
}
