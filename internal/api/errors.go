// errors.go - JSON error bodies for the status API
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeHTTP        = "HTTP_ERROR"
)

// APIError is the body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func newAPIError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewValidationError reports a bad query or path parameter.
func NewValidationError(field string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, CodeValidation, "invalid value for "+field, cause)
}

// NewNotFoundError reports a missing task or resource.
func NewNotFoundError(resource, id string) *APIError {
	return newAPIError(http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s %s not found", resource, id), nil)
}

// NewInternalError wraps a failure reading the datalog or the history.
func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, CodeInternal, message, cause)
}

// NewServiceUnavailableError reports a data source the server was started
// without.
func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, CodeUnavailable, message, nil)
}

// ErrorHandler renders every error as an APIError. Install it with
// e.HTTPErrorHandler = api.ErrorHandler.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			apiErr = newAPIError(httpErr.Code, CodeHTTP, fmt.Sprint(httpErr.Message), nil)
		} else {
			apiErr = newAPIError(http.StatusInternalServerError, CodeInternal, "unexpected error", err)
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = c.JSON(apiErr.Status, apiErr)
}
