package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Page != 1 {
		t.Errorf("expected default page 1, got %d", p.Page)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=25", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Offset() != 50 {
		t.Errorf("expected offset 50, got %d", p.Offset())
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)
	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativePage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=-4", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if p := FromContext(c); p.Page != 1 {
		t.Errorf("expected page 1, got %d", p.Page)
	}
}

func TestParams_Apply(t *testing.T) {
	q := Params{Page: 2, Limit: 20}.Apply(nil)
	if q.Get("page") != "2" || q.Get("limit") != "20" {
		t.Errorf("unexpected query: %s", q.Encode())
	}
}

func TestNewResponse(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		total     int
		wantPages int
		wantMore  bool
	}{
		{"first of many", Params{Page: 1, Limit: 10}, 35, 4, true},
		{"last page", Params{Page: 4, Limit: 10}, 35, 4, false},
		{"exact fit", Params{Page: 2, Limit: 10}, 20, 2, false},
		{"empty", Params{Page: 1, Limit: 10}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponse([]string{}, tt.total, tt.params)
			if r.TotalPages != tt.wantPages {
				t.Errorf("expected %d pages, got %d", tt.wantPages, r.TotalPages)
			}
			if r.HasMore != tt.wantMore {
				t.Errorf("expected has_more=%v, got %v", tt.wantMore, r.HasMore)
			}
		})
	}
}

func TestParams_HasPrevious(t *testing.T) {
	if (Params{Page: 1, Limit: 10}).HasPrevious() {
		t.Error("page 1 should not have a previous page")
	}
	if !(Params{Page: 2, Limit: 10}).HasPrevious() {
		t.Error("page 2 should have a previous page")
	}
}
