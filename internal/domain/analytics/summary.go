package analytics

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Summarize totals a revenue series. Averages are rounded to cents; the
// first bucket wins ties for the peak.
func Summarize(points []RevenuePoint) Summary {
	s := Summary{
		Total:          decimal.Zero,
		Average:        decimal.Zero,
		PerAppointment: decimal.Zero,
		PeakAmount:     decimal.Zero,
	}
	for i, p := range points {
		s.Total = s.Total.Add(p.Amount)
		s.Appointments += p.Appointments
		if i == 0 || p.Amount.GreaterThan(s.PeakAmount) {
			s.PeakLabel = p.Label
			s.PeakAmount = p.Amount
		}
	}
	if n := len(points); n > 0 {
		s.Average = s.Total.Div(decimal.NewFromInt(int64(n))).Round(2)
	}
	if s.Appointments > 0 {
		s.PerAppointment = s.Total.Div(decimal.NewFromInt(int64(s.Appointments))).Round(2)
	}
	return s
}

// completionRate is the percentage of finished appointments that were
// completed rather than cancelled.
func completionRate(completed, cancelled int) decimal.Decimal {
	done := completed + cancelled
	if done <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(completed)).Mul(hundred).Div(decimal.NewFromInt(int64(done))).Round(1)
}
