package analytics

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/console/internal/platform/validation"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ParsePeriod accepts week, month or year; empty means month.
func ParsePeriod(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return PeriodMonth, nil
	}
	if !p.Valid() {
		ve := &validation.Errors{}
		ve.Add("period", "period must be one of: week, month, year")
		return "", ve
	}
	return p, nil
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	st, err := s.repo.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	st.CompletionRate = completionRate(st.CompletedAppointments, st.CancelledAppointments)
	return st, nil
}

func (s *Service) Revenue(ctx context.Context, period Period) (*RevenueReport, error) {
	if !period.Valid() {
		period = PeriodMonth
	}
	points, err := s.repo.Revenue(ctx, period)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []RevenuePoint{}
	}
	return &RevenueReport{Period: period, Points: points, Summary: Summarize(points)}, nil
}

// Overview loads the dashboard stats and the revenue report concurrently.
func (s *Service) Overview(ctx context.Context, period Period) (*Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Stats, err = s.Dashboard(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Revenue, err = s.Revenue(gctx, period)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
