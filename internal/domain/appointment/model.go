package appointment

import (
	"strings"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCompleted: true,
	StatusCancelled: true, StatusNoShow: true,
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

const (
	DefaultDuration = 30
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04"
)

// Appointment is a booked visit. Date and Time are clinic-local wall clock
// values as the backend stores them.
type Appointment struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id" validate:"required"`
	PatientName string    `json:"patient_name,omitempty"`
	Phone       string    `json:"phone,omitempty" validate:"omitempty,phone"`
	Date        string    `json:"date" validate:"required,isodate"`
	Time        string    `json:"time" validate:"required,clock"`
	Duration    int       `json:"duration" validate:"min=1,max=480"`
	Type        string    `json:"type,omitempty" validate:"max=50"`
	Status      string    `json:"status" validate:"required,oneof=scheduled confirmed completed cancelled no-show"`
	Notes       string    `json:"notes,omitempty" validate:"max=2000"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// StartsAt combines Date and Time in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Open reports whether the visit can still take place.
func (a *Appointment) Open() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

func (a *Appointment) normalize() {
	a.PatientID = strings.TrimSpace(a.PatientID)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Date = strings.TrimSpace(a.Date)
	a.Time = strings.TrimSpace(a.Time)
	a.Type = strings.TrimSpace(a.Type)
	a.Status = strings.ToLower(strings.TrimSpace(a.Status))
}

// Filter narrows an appointment listing. Empty fields are ignored.
type Filter struct {
	PatientID string `json:"patient_id,omitempty"`
	Date      string `json:"date,omitempty" validate:"omitempty,isodate"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=scheduled confirmed completed cancelled no-show"`
	Phone     string `json:"phone,omitempty"`
}
