// Package attachment materializes document attachments: inline base64
// payloads are decoded locally, remote binary pointers are fetched from the
// owning source with content-type negotiation. Failures here are scoped to
// one document's content view and never affect the surrounding record.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chartview/chartview/internal/record"
	"github.com/chartview/chartview/internal/token"
	"github.com/chartview/chartview/internal/upstream"
)

// ErrCorrupt signals an inline payload whose base64 encoding is invalid.
var ErrCorrupt = errors.New("inline attachment payload is not valid base64")

// Inline bodies declared as octet-stream under this size are treated as
// text reports and wrapped for display ("text report promotion").
const textPromotionLimit = 10 * 1024

// allowedContentTypes is the fixed set of media types we are willing to
// request from upstream as-is. Anything else is downgraded to
// application/pdf before the outbound fetch.
var allowedContentTypes = map[string]struct{}{
	"application/pdf":          {},
	"image/jpeg":               {},
	"application/dicom":        {},
	"application/fhir+xml":     {},
	"application/fhir+json":    {},
	"application/json":         {},
	"text/plain":               {},
	"application/octet-stream": {},
	"application/xml":          {},
	"*/*":                      {},
}

// SanitizeContentType maps a declared content type onto the allow-list.
// Empty or unlisted types come back as application/pdf.
func SanitizeContentType(declared string) string {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if semi := strings.Index(ct, ";"); semi >= 0 {
		ct = strings.TrimSpace(ct[:semi])
	}
	if _, ok := allowedContentTypes[ct]; ok {
		return ct
	}
	return "application/pdf"
}

// ResolutionError is a failed resolution: the upstream HTTP status when one
// was observed, plus a human-readable cause.
type ResolutionError struct {
	Status int
	Cause  string
}

func (e *ResolutionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("attachment resolution failed with status %d: %s", e.Status, e.Cause)
	}
	return fmt.Sprintf("attachment resolution failed: %s", e.Cause)
}

// Content is a resolved attachment ready to hand to the caller.
type Content struct {
	ContentType string
	Body        []byte
}

// Resolver turns AttachmentRefs into renderable content.
type Resolver struct {
	adapters map[token.Source]upstream.Adapter
	tokens   *token.Context
	logger   zerolog.Logger
}

func NewResolver(adapters []upstream.Adapter, tokens *token.Context, logger zerolog.Logger) *Resolver {
	m := make(map[token.Source]upstream.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Source()] = a
	}
	return &Resolver{
		adapters: m,
		tokens:   tokens,
		logger:   logger.With().Str("component", "attachment").Logger(),
	}
}

// Resolve materializes one attachment for the given source. Inline payloads
// are handled first and never hit the network; remote locators cost exactly
// one authenticated fetch.
func (r *Resolver) Resolve(ctx context.Context, source token.Source, ref *record.AttachmentRef) (*Content, error) {
	if ref == nil {
		return nil, &ResolutionError{Cause: "document has no attachment"}
	}

	switch ref.Kind {
	case record.AttachmentInline:
		return r.resolveInline(ref)
	case record.AttachmentRemote:
		return r.resolveRemote(ctx, source, ref)
	}
	return nil, &ResolutionError{Cause: fmt.Sprintf("unknown attachment kind %q", ref.Kind)}
}

func (r *Resolver) resolveInline(ref *record.AttachmentRef) (*Content, error) {
	body, err := base64.StdEncoding.DecodeString(ref.Base64Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r.finalize(ref.ContentType, body), nil
}

func (r *Resolver) resolveRemote(ctx context.Context, source token.Source, ref *record.AttachmentRef) (*Content, error) {
	ad, ok := r.adapters[source]
	if !ok {
		return nil, &ResolutionError{Cause: fmt.Sprintf("unknown source %q", source)}
	}
	cred, err := r.tokens.Get(source)
	if err != nil {
		return nil, err
	}

	binaryID, err := binaryIDFromLocator(ref.Locator)
	if err != nil {
		return nil, &ResolutionError{Cause: err.Error()}
	}
	accept := SanitizeContentType(ref.ContentType)

	bin, err := ad.FetchBinary(ctx, cred, binaryID, accept)
	if err != nil {
		if errors.Is(err, token.ErrMissingCredential) {
			return nil, err
		}
		var reqErr *upstream.RequestError
		if errors.As(err, &reqErr) {
			r.logger.Warn().
				Str("source", source.String()).
				Str("binary_id", binaryID).
				Int("status", reqErr.Status).
				Msg("binary fetch failed")
			return nil, &ResolutionError{Status: reqErr.Status, Cause: reqErr.Message}
		}
		return nil, &ResolutionError{Cause: err.Error()}
	}

	contentType := bin.ContentType
	if contentType == "" {
		contentType = accept
	}
	return r.finalize(contentType, bin.Body), nil
}

// binaryIDFromLocator extracts the binary identifier from an attachment
// locator. Absolute URLs and relative paths yield their trailing segment;
// a bare id is already the identifier.
func binaryIDFromLocator(locator string) (string, error) {
	if locator == "" {
		return "", errors.New("attachment has an empty locator")
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("malformed attachment locator %q", locator)
	}
	if u.IsAbs() || strings.Contains(locator, "/") {
		id := path.Base(u.Path)
		if id == "" || id == "/" || id == "." {
			return "", fmt.Errorf("attachment locator %q has no binary id", locator)
		}
		return id, nil
	}
	return locator, nil
}

// finalize applies text report promotion: small octet-stream bodies and
// anything declared as plain text or HTML are wrapped in a minimal styled
// shell instead of being offered as a raw binary.
func (r *Resolver) finalize(contentType string, body []byte) *Content {
	if isTextPromotable(contentType, body) {
		return &Content{ContentType: "text/html; charset=utf-8", Body: wrapTextDocument(body)}
	}
	return &Content{ContentType: contentType, Body: body}
}

func isTextPromotable(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if semi := strings.Index(ct, ";"); semi >= 0 {
		ct = strings.TrimSpace(ct[:semi])
	}
	switch ct {
	case "text/plain", "text/html":
		return true
	case "application/octet-stream":
		return len(body) < textPromotionLimit
	}
	return false
}

func wrapTextDocument(body []byte) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	b.WriteString("<style>body{font-family:monospace;white-space:pre-wrap;margin:2rem;color:#1a1a2e}</style>")
	b.WriteString("</head><body>")
	b.WriteString(html.EscapeString(string(body)))
	b.WriteString("</body></html>")
	return []byte(b.String())
}
