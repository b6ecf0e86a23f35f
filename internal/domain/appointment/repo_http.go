package appointment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/pkg/pagination"
)

type repoHTTP struct {
	client *apiclient.Client
}

func NewRepoHTTP(client *apiclient.Client) Repository {
	return &repoHTTP{client: client}
}

type listEnvelope struct {
	Data  []*Appointment `json:"data"`
	Total int            `json:"total"`
}

func appointmentPath(id string) string {
	return "/appointments/" + url.PathEscape(id)
}

func (f Filter) values() url.Values {
	q := url.Values{}
	for k, v := range map[string]string{
		"patient_id": f.PatientID,
		"date":       f.Date,
		"status":     f.Status,
		"phone":      f.Phone,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

func (r *repoHTTP) List(ctx context.Context, f Filter, p pagination.Params) ([]*Appointment, int, error) {
	var out listEnvelope
	if err := r.client.Get(ctx, "/appointments", p.Apply(f.values()), &out); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return out.Data, out.Total, nil
}

func (r *repoHTTP) GetByID(ctx context.Context, id string) (*Appointment, error) {
	var a Appointment
	if err := r.client.Get(ctx, appointmentPath(id), nil, &a); err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return &a, nil
}

func (r *repoHTTP) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	var out Appointment
	if err := r.client.Post(ctx, "/appointments", a, &out); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &out, nil
}

func (r *repoHTTP) Update(ctx context.Context, a *Appointment) (*Appointment, error) {
	var out Appointment
	if err := r.client.Put(ctx, appointmentPath(a.ID), a, &out); err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", a.ID, err)
	}
	return &out, nil
}

func (r *repoHTTP) UpdateStatus(ctx context.Context, id, status string) (*Appointment, error) {
	var out Appointment
	body := map[string]string{"status": status}
	if err := r.client.Patch(ctx, appointmentPath(id), body, &out); err != nil {
		return nil, fmt.Errorf("update appointment %s status: %w", id, err)
	}
	return &out, nil
}

func (r *repoHTTP) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, appointmentPath(id)); err != nil {
		return fmt.Errorf("delete appointment %s: %w", id, err)
	}
	return nil
}
