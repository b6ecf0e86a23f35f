package appointment

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/validation"
	"github.com/clinicdesk/console/pkg/pagination"
)

const (
	DefaultUpcoming = 5
	MaxUpcoming     = 50

	// maxUpcomingPages bounds how much of the schedule Upcoming reads.
	maxUpcomingPages = 20
	upcomingFetchers = 4
)

type Service struct {
	repo     Repository
	validate *validation.Validator
	notifier notify.Notifier
	logger   zerolog.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewService builds the appointment service. loc is the clinic's time zone
// used to interpret appointment dates; nil means UTC.
func NewService(repo Repository, validate *validation.Validator, notifier notify.Notifier, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, validate: validate, notifier: notifier, logger: logger, loc: loc, now: time.Now}
}

func (s *Service) check(a *Appointment) error {
	a.normalize()
	if a.Duration == 0 {
		a.Duration = DefaultDuration
	}
	return s.validate.Struct(a)
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) (*pagination.Response, error) {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.Date = strings.TrimSpace(f.Date)
	if err := s.validate.Struct(f); err != nil {
		return nil, err
	}
	items, total, err := s.repo.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return pagination.NewResponse(items, total, p), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if err := s.check(a); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, a)
	if err != nil {
		s.fail(ctx, err, "Failed to book appointment")
		return nil, err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Appointment booked for "+created.Date+" at "+created.Time+".")
	return created, nil
}

func (s *Service) Update(ctx context.Context, a *Appointment) (*Appointment, error) {
	if err := s.check(a); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, a)
	if err != nil {
		s.fail(ctx, err, "Failed to update appointment")
		return nil, err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Appointment updated successfully.")
	return updated, nil
}

// UpdateStatus moves an appointment to status without resubmitting the
// whole record.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Appointment, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !ValidStatus(status) {
		ve := &validation.Errors{}
		ve.Add("status", "status must be one of: scheduled, confirmed, completed, cancelled, no-show")
		return nil, ve
	}
	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		s.fail(ctx, err, "Failed to update appointment status")
		return nil, err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Appointment marked as "+status+".")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.fail(ctx, err, "Failed to delete appointment")
		return err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Appointment deleted.")
	return nil
}

// Upcoming returns the next open appointments from now on, soonest first.
// The backend list has no ordering guarantee, so every page is read.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]*Appointment, error) {
	if limit <= 0 {
		limit = DefaultUpcoming
	}
	if limit > MaxUpcoming {
		limit = MaxUpcoming
	}

	items, err := s.schedule(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	type dated struct {
		appt *Appointment
		at   time.Time
	}
	var open []dated
	for _, a := range items {
		at, ok := a.StartsAt(s.loc)
		if !ok || !a.Open() || at.Before(now) {
			continue
		}
		open = append(open, dated{appt: a, at: at})
	}
	sort.Slice(open, func(i, j int) bool { return open[i].at.Before(open[j].at) })

	out := make([]*Appointment, 0, limit)
	for _, d := range open {
		if len(out) == limit {
			break
		}
		out = append(out, d.appt)
	}
	return out, nil
}

// schedule reads the whole appointment list: the first page gives the
// total, the remaining pages are fetched concurrently.
func (s *Service) schedule(ctx context.Context) ([]*Appointment, error) {
	first := pagination.Params{Page: 1, Limit: pagination.MaxLimit}
	items, total, err := s.repo.List(ctx, Filter{}, first)
	if err != nil {
		return nil, err
	}

	pages := first.TotalPages(total)
	if pages > maxUpcomingPages {
		s.logger.Warn().Int("total", total).Int("read", maxUpcomingPages*pagination.MaxLimit).
			Msg("appointment list truncated for upcoming")
		pages = maxUpcomingPages
	}
	if pages <= 1 {
		return items, nil
	}

	rest := make([][]*Appointment, pages-1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(upcomingFetchers)
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			got, _, err := s.repo.List(gctx, Filter{}, pagination.Params{Page: page, Limit: pagination.MaxLimit})
			if err != nil {
				return err
			}
			rest[page-2] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, got := range rest {
		items = append(items, got...)
	}
	return items, nil
}

func (s *Service) fail(ctx context.Context, err error, msg string) {
	s.logger.Error().Err(err).Msg(strings.ToLower(msg))
	if m := apiclient.MessageOf(err); m != "" {
		msg += ": " + m
	} else {
		msg += "."
	}
	s.notifier.Notify(ctx, notify.LevelError, msg)
}
