package patient

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
	Data  []*Patient `json:"data"`
	Total int        `json:"total"`
}

func patientPath(id string) string {
	return "/patients/" + url.PathEscape(id)
}

func (r *repoHTTP) Search(ctx context.Context, query string, p pagination.Params) ([]*Patient, int, error) {
	q := url.Values{}
	if query != "" {
		q.Set("search", query)
	}
	var out listEnvelope
	if err := r.client.Get(ctx, "/patients", p.Apply(q), &out); err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	return out.Data, out.Total, nil
}

func (r *repoHTTP) GetByID(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	if err := r.client.Get(ctx, patientPath(id), nil, &p); err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

func (r *repoHTTP) Create(ctx context.Context, p *Patient) (*Patient, error) {
	var out Patient
	if err := r.client.Post(ctx, "/patients", p, &out); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return &out, nil
}

func (r *repoHTTP) Update(ctx context.Context, p *Patient) (*Patient, error) {
	var out Patient
	if err := r.client.Put(ctx, patientPath(p.ID), p, &out); err != nil {
		return nil, fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	return &out, nil
}

func (r *repoHTTP) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, patientPath(id)); err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	return nil
}
