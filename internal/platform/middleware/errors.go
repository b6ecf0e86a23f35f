package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/validation"
)

// ErrorBody is the JSON shape of every error the console returns.
type ErrorBody struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// ErrorHandler is the console's top-level error boundary. Handlers return
// plain errors and this maps them onto status codes; unexpected errors are
// logged and reported as a generic 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := Classify(err)
		body.RequestID = requestID(c)

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", body.RequestID).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

// Classify maps err onto a status code and a user-facing body.
func Classify(err error) (int, ErrorBody) {
	if ve, ok := validation.AsErrors(err); ok {
		return http.StatusBadRequest, ErrorBody{Error: "please correct the highlighted fields", Fields: ve.Fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, ErrorBody{Error: msg}
	}

	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorBody{Error: "your session has expired, please sign in again"}
	case errors.Is(err, apiclient.ErrForbidden):
		return http.StatusForbidden, ErrorBody{Error: messageOr(err, "you do not have access to this resource")}
	case errors.Is(err, apiclient.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Error: messageOr(err, "not found")}
	case errors.Is(err, apiclient.ErrConflict):
		return http.StatusConflict, ErrorBody{Error: messageOr(err, "the record was changed by someone else")}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorBody{Error: "the clinic service took too long to respond"}
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return http.StatusBadRequest, ErrorBody{Error: apiErr.Message}
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, ErrorBody{Error: apiErr.Message}
		}
		return http.StatusBadGateway, ErrorBody{Error: "the clinic service is unavailable, please try again"}
	}

	return http.StatusInternalServerError, ErrorBody{Error: "internal server error"}
}

func messageOr(err error, fallback string) string {
	if msg := apiclient.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
