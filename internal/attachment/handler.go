package attachment

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chartview/chartview/internal/platform/fhir"
	"github.com/chartview/chartview/internal/record"
	"github.com/chartview/chartview/internal/token"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/:source/attachment", h.ResolveAttachment)
	// GET carries the reference as query parameters so the viewer can be
	// opened by plain browser navigation (new tab), which cannot POST.
	api.GET("/:source/attachment", h.ResolveAttachment)
}

// ResolveAttachment takes an AttachmentRef as extracted from a record
// document and streams back the renderable bytes. The reference arrives as
// a JSON body on POST and as query parameters on GET.
func (h *Handler) ResolveAttachment(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	var ref record.AttachmentRef
	if err := c.Bind(&ref); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("malformed attachment reference"))
	}

	content, err := h.resolver.Resolve(c.Request().Context(), source, &ref)
	if err != nil {
		return resolutionError(c, source, err)
	}
	return c.Blob(http.StatusOK, content.ContentType, content.Body)
}

func resolutionError(c echo.Context, source token.Source, err error) error {
	switch {
	case errors.Is(err, token.ErrMissingCredential):
		return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome(source.String()))
	case errors.Is(err, ErrCorrupt):
		return c.JSON(http.StatusUnprocessableEntity, fhir.InvalidOutcome(err.Error()))
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		switch resErr.Status {
		case http.StatusNotFound:
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("attachment"))
		case http.StatusForbidden:
			return c.JSON(http.StatusForbidden, fhir.SecurityOutcome(resErr.Cause))
		case 0:
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(resErr.Cause))
		}
		return c.JSON(http.StatusBadGateway, fhir.ErrorOutcome(resErr.Cause))
	}
	return c.JSON(http.StatusBadGateway, fhir.ErrorOutcome(err.Error()))
}
