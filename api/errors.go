package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/kiryana/reporting/httpx"
	"github.com/kiryana/reporting/report"
)

// Error is an API-level failure with an explicit status and stable code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler maps handler errors to the structured error body every
// endpoint shares. Stack traces never leave the process; server-side
// failures are logged instead.
func ErrorHandler(log *logrus.Logger) httpx.HTTPErrorHandler {
	return func(err error, c httpx.Context) {
		if c.Response().Committed {
			return
		}
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
		}
		_ = c.JSON(status, body)
	}
}

func classify(err error) (int, errorBody) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, errorBody{errorDetail{Code: apiErr.Code, Message: apiErr.Message}}
	}

	var verr *report.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorBody{errorDetail{Code: verr.Code, Message: verr.Message}}
	}

	var uerr *report.UpstreamError
	if errors.As(err, &uerr) {
		return http.StatusServiceUnavailable, errorBody{errorDetail{
			Code:    "UPSTREAM_UNAVAILABLE",
			Message: fmt.Sprintf("The %s service is unavailable", uerr.Service),
		}}
	}

	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		msg := http.StatusText(herr.Code)
		if s, ok := herr.Message.(string); ok {
			msg = s
		}
		return herr.Code, errorBody{errorDetail{Code: "HTTP_ERROR", Message: msg}}
	}

	return http.StatusInternalServerError, errorBody{errorDetail{
		Code:    "SERVER_ERROR",
		Message: "An unexpected error occurred",
	}}
}
