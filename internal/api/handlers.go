// Package api contains the HTTP handlers for the execution engine
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"taskforge/backend/internal/services"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "taskforge",
		Version:   "1.0.0",
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response. Code
// carries the engine's reason enum so clients can render actionable
// messaging without parsing Detail.
type ProblemDetails struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Status  int      `json:"status"`
	Detail  string   `json:"detail,omitempty"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// statusFor maps engine reason codes to HTTP statuses. Precondition and
// eligibility denials are conflicts, never 5xx.
func statusFor(code services.Code) int {
	switch code {
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeValidation:
		return http.StatusBadRequest
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeNotActive, services.CodeEscrowNotFunded,
		services.CodeIneligibleTier, services.CodeIneligibleComplexity,
		services.CodeDailyLimit:
		return http.StatusUnprocessableEntity
	case services.CodePaymentFailed:
		return http.StatusBadGateway
	case "":
		return http.StatusInternalServerError
	default:
		// Wrong-state transitions and concurrency conflicts.
		return http.StatusConflict
	}
}

// writeError renders err as an RFC 7807 problem response.
func writeError(c echo.Context, err error) error {
	var de *services.DomainError
	if !errors.As(err, &de) {
		return c.JSON(http.StatusInternalServerError, ProblemDetails{
			Type:   "about:blank",
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
	}
	status := statusFor(de.Code)
	return c.JSON(status, ProblemDetails{
		Type:    "about:blank",
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  de.Message,
		Code:    string(de.Code),
		Details: de.Details,
	})
}
