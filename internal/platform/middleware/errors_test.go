package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/validation"
)

func TestClassify(t *testing.T) {
	ve := &validation.Errors{}
	ve.Add("phone", "phone is required")

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", ve, http.StatusBadRequest, "please correct the highlighted fields"},
		{"http error", echo.NewHTTPError(http.StatusForbidden, "upgrade required"), http.StatusForbidden, "upgrade required"},
		{"unauthorized", fmt.Errorf("GET /patients: %w", apiclient.ErrUnauthorized), http.StatusUnauthorized, "your session has expired, please sign in again"},
		{"not found", &apiclient.APIError{StatusCode: 404, Message: "patient not found"}, http.StatusNotFound, "patient not found"},
		{"conflict fallback", &apiclient.APIError{StatusCode: 409}, http.StatusConflict, "the record was changed by someone else"},
		{"backend bad request", &apiclient.APIError{StatusCode: 422, Message: "email taken"}, http.StatusBadRequest, "email taken"},
		{"backend 500", &apiclient.APIError{StatusCode: 500, Message: "db down"}, http.StatusBadGateway, "the clinic service is unavailable, please try again"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "the clinic service took too long to respond"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Classify(tt.err)
			if status != tt.status {
				t.Errorf("status: got %d, want %d", status, tt.status)
			}
			if body.Error != tt.msg {
				t.Errorf("message: got %q, want %q", body.Error, tt.msg)
			}
		})
	}
}

func TestErrorHandler_WritesJSON(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.Use(RequestID())
	e.POST("/api/v1/patients", func(c echo.Context) error {
		ve := &validation.Errors{}
		ve.Add("first_name", "first_name is required")
		return ve
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Fields["first_name"] != "first_name is required" {
		t.Errorf("expected field error, got %+v", body.Fields)
	}
	if body.RequestID != "rid-1" {
		t.Errorf("expected request id rid-1, got %q", body.RequestID)
	}
}

func TestErrorHandler_HidesInternalErrors(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/", func(c echo.Context) error {
		return errors.New("pq: password authentication failed")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ErrorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal server error" {
		t.Errorf("expected generic message, got %q", body.Error)
	}
}
