package patient

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/validation"
	"github.com/clinicdesk/console/pkg/pagination"
)

const maxQueryLen = 100

type Service struct {
	repo     Repository
	validate *validation.Validator
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, validate *validation.Validator, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, validate: validate, notifier: notifier, logger: logger, now: time.Now}
}

// check validates p and the rules the struct tags cannot express.
func (s *Service) check(p *Patient) error {
	p.normalize()
	ve := &validation.Errors{}
	if err := s.validate.Struct(p); err != nil {
		got, ok := validation.AsErrors(err)
		if !ok {
			return err
		}
		ve = got
	}
	if p.DateOfBirth != "" {
		if dob, err := time.Parse("2006-01-02", p.DateOfBirth); err == nil && dob.After(s.now()) {
			ve.Add("date_of_birth", "date_of_birth cannot be in the future")
		}
	}
	return ve.OrNil()
}

func (s *Service) Search(ctx context.Context, query string, p pagination.Params) (*pagination.Response, error) {
	query = strings.TrimSpace(query)
	if len(query) > maxQueryLen {
		query = query[:maxQueryLen]
	}
	items, total, err := s.repo.Search(ctx, query, p)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return pagination.NewResponse(items, total, p), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, p *Patient) (*Patient, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		s.fail(ctx, err, "Failed to create patient")
		return nil, err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Patient "+created.FullName()+" created successfully.")
	return created, nil
}

func (s *Service) Update(ctx context.Context, p *Patient) (*Patient, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		s.fail(ctx, err, "Failed to update patient")
		return nil, err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Patient updated successfully.")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.fail(ctx, err, "Failed to delete patient")
		return err
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, "Patient deleted.")
	return nil
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
