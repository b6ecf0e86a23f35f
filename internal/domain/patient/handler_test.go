package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/console/internal/platform/validation"
	"github.com/clinicdesk/console/pkg/pagination"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_CreatePatient(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"first_name":"Maria","last_name":"Garcia","phone":"555-010-2000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.FirstName != "Maria" || p.ID == "" {
		t.Errorf("unexpected patient: %+v", p)
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"last_name":"Garcia"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreatePatient(c)
	if _, ok := validation.AsErrors(err); !ok {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_SearchPatients(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.Create(context.Background(), validPatient())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?search=maria&page=1&limit=5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Limit != 5 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_UpdatePatientUsesPathID(t *testing.T) {
	h, svc, e := newTestHandler()
	p, _ := svc.Create(context.Background(), validPatient())

	body := `{"id":"ignored","first_name":"Maria","last_name":"Lopez","phone":"555-010-2000"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/patients/"+p.ID, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Patient
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != p.ID || got.LastName != "Lopez" {
		t.Errorf("unexpected patient: %+v", got)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, svc, e := newTestHandler()
	p, _ := svc.Create(context.Background(), validPatient())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/patients/"+p.ID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutesAppliesMiddleware(t *testing.T) {
	h, _, e := newTestHandler()
	deny := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusForbidden, "upgrade required")
		}
	}
	h.RegisterRoutes(e.Group("/api/v1"), deny)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
