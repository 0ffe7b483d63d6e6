package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chartview/chartview/internal/platform/fhir"
)

// RequestTimeout sets a context deadline on each incoming request. Record
// loads already bound their individual upstream calls, so this is the
// outer ceiling on the whole request, including the join.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					if !c.Response().Committed {
						return c.JSON(http.StatusGatewayTimeout, fhir.NewOperationOutcome(
							fhir.IssueSeverityError, fhir.IssueTypeTimeout,
							"request processing exceeded the allowed time limit"))
					}
					return nil
				}
				return ctx.Err()
			}
		}
	}
}
