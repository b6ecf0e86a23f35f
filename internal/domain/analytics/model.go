package analytics

import (
	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func (p Period) Valid() bool {
	return p == PeriodWeek || p == PeriodMonth || p == PeriodYear
}

// DashboardStats are the practice headline numbers computed by the backend.
type DashboardStats struct {
	TotalPatients         int             `json:"total_patients"`
	NewPatientsThisMonth  int             `json:"new_patients_this_month"`
	TotalAppointments     int             `json:"total_appointments"`
	AppointmentsToday     int             `json:"appointments_today"`
	UpcomingAppointments  int             `json:"upcoming_appointments"`
	CompletedAppointments int             `json:"completed_appointments"`
	CancelledAppointments int             `json:"cancelled_appointments"`
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	MonthlyRevenue        decimal.Decimal `json:"monthly_revenue"`
	CompletionRate        decimal.Decimal `json:"completion_rate"`
}

// RevenuePoint is one bucket of a revenue series.
type RevenuePoint struct {
	Label        string          `json:"label"`
	Amount       decimal.Decimal `json:"amount"`
	Appointments int             `json:"appointments"`
}

// Summary condenses a revenue series.
type Summary struct {
	Total          decimal.Decimal `json:"total"`
	Average        decimal.Decimal `json:"average"`
	PerAppointment decimal.Decimal `json:"per_appointment"`
	Appointments   int             `json:"appointments"`
	PeakLabel      string          `json:"peak_label,omitempty"`
	PeakAmount     decimal.Decimal `json:"peak_amount"`
}

type RevenueReport struct {
	Period  Period         `json:"period"`
	Points  []RevenuePoint `json:"points"`
	Summary Summary        `json:"summary"`
}

// Overview is the dashboard page: stats plus the default revenue report.
type Overview struct {
	Stats   *DashboardStats `json:"stats"`
	Revenue *RevenueReport  `json:"revenue"`
}
