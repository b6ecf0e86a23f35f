package appointment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/console/internal/platform/validation"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"patient_id":"p1","date":"2024-06-20","time":"09:30","duration":45}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Duration != 45 || a.Status != StatusScheduled {
		t.Errorf("unexpected appointment: %+v", a)
	}
}

func TestHandler_CreateAppointment_BadRequest(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"date":"2024-06-20"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if _, ok := validation.AsErrors(h.CreateAppointment(c)); !ok {
		t.Error("expected validation error")
	}
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, svc, e := newTestHandler()
	a, _ := svc.Create(context.Background(), booking("2024-06-20", "09:30"))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/appointments/"+a.ID+"/status", strings.NewReader(`{"status":"no-show"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID)

	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"no-show"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.Create(context.Background(), booking("2024-06-20", "09:30"))
	svc.Create(context.Background(), booking("2024-06-21", "09:30"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?date=2024-06-21", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one match, got %s", rec.Body.String())
	}
}

func TestHandler_RoutesUpcomingBeforeID(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.Create(context.Background(), booking("2024-06-20", "09:30"))
	h.RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments/upcoming?limit=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil || len(items) != 1 {
		t.Errorf("expected one upcoming appointment, got %s", rec.Body.String())
	}
}
