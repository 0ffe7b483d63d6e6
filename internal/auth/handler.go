// Package auth implements the OAuth login flow against the upstream
// sources: redirect to the source's authorize endpoint, exchange the
// callback code for an access token, store the credential, and hand the
// browser a platform session token.
package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/config"
	"github.com/chartview/chartview/internal/platform/auth"
	"github.com/chartview/chartview/internal/platform/fhir"
	"github.com/chartview/chartview/internal/token"
	"github.com/chartview/chartview/internal/upstream"
)

// OAuth state entries outlive a normal redirect round trip by a wide
// margin but expire before they become replayable.
const stateTTL = 10 * time.Minute

type Handler struct {
	cfg      *config.Config
	adapters map[token.Source]upstream.Adapter
	tokens   *token.Context
	sessions *auth.SessionManager
	states   *gocache.Cache
	logger   zerolog.Logger
}

func NewHandler(cfg *config.Config, adapters []upstream.Adapter, tokens *token.Context, sessions *auth.SessionManager, logger zerolog.Logger) *Handler {
	m := make(map[token.Source]upstream.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &Handler{
		cfg:      cfg,
		adapters: m,
		tokens:   tokens,
		sessions: sessions,
		states:   gocache.New(stateTTL, 2*stateTTL),
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/login/:source", h.Login)
	g.GET("/callback/:source", h.Callback)
	g.POST("/logout/:source", h.Logout)
	g.GET("/session", h.Session)
}

// Login sends the browser to the source's authorize endpoint with a fresh
// single-use state value.
func (h *Handler) Login(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	settings := h.cfg.Source(source)
	if settings.AuthorizeURL == "" || settings.ClientID == "" {
		return c.JSON(http.StatusNotImplemented, fhir.ErrorOutcome(
			fmt.Sprintf("OAuth is not configured for source %s", source)))
	}

	state := uuid.NewString()
	h.states.Set(state, source.String(), gocache.DefaultExpiration)

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", settings.ClientID)
	q.Set("redirect_uri", settings.RedirectURI)
	q.Set("state", state)
	if settings.Scopes != "" {
		q.Set("scope", settings.Scopes)
	}
	if settings.BaseURL != "" {
		// SMART-style authorize endpoints require the FHIR server address.
		q.Set("aud", settings.BaseURL)
	}

	return c.Redirect(http.StatusFound, settings.AuthorizeURL+"?"+q.Encode())
}

// Callback completes the flow: validates state, exchanges the code, stores
// the credential and redirects to the UI with a platform session token.
func (h *Handler) Callback(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	if upstreamErr := c.QueryParam("error"); upstreamErr != "" {
		h.logger.Warn().Str("source", source.String()).Str("error", upstreamErr).Msg("authorize endpoint returned an error")
		return c.JSON(http.StatusBadGateway, fhir.ErrorOutcome("authorization was refused: "+upstreamErr))
	}

	state := c.QueryParam("state")
	stored, ok := h.states.Get(state)
	if !ok || stored.(string) != source.String() {
		return c.JSON(http.StatusBadRequest, fhir.SecurityOutcome("unknown or expired state value"))
	}
	h.states.Delete(state)

	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("code query parameter is required"))
	}

	adapter, ok := h.adapters[source]
	if !ok {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("source"))
	}
	resp, err := adapter.ExchangeCode(c.Request().Context(), code)
	if err != nil {
		h.logger.Error().Err(err).Str("source", source.String()).Msg("code exchange failed")
		return c.JSON(http.StatusBadGateway, fhir.ErrorOutcome("token exchange failed"))
	}

	subject := resp.Patient
	if subject == "" {
		subject = "clinician"
	}
	session, err := h.sessions.Issue(subject, source)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("could not issue session token"))
	}

	cred := token.Credential{Source: source, AccessToken: resp.AccessToken}
	if h.cfg.Source(source).PlatformHeader != "" {
		cred.PlatformToken = session
	}
	if err := h.tokens.Put(cred); err != nil {
		return c.JSON(http.StatusBadGateway, fhir.ErrorOutcome(err.Error()))
	}

	h.logger.Info().Str("source", source.String()).Msg("login completed")

	redirect := h.cfg.UIRedirectURL
	if redirect == "" {
		return c.JSON(http.StatusOK, map[string]string{
			"session": session,
			"source":  source.String(),
			"patient": resp.Patient,
		})
	}
	q := url.Values{}
	q.Set("session", session)
	q.Set("source", source.String())
	if resp.Patient != "" {
		q.Set("patient", resp.Patient)
	}
	return c.Redirect(http.StatusFound, redirect+"?"+q.Encode())
}

// Logout drops the stored credential for a source.
func (h *Handler) Logout(c echo.Context) error {
	source, err := token.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}
	h.tokens.Invalidate(source)
	return c.NoContent(http.StatusNoContent)
}

// Session reports which sources currently hold a credential, so the UI can
// show per-source connection status.
func (h *Handler) Session(c echo.Context) error {
	sources := h.tokens.Sources()
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.String())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"connected": out})
}
