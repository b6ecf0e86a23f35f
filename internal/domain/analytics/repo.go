package analytics

import (
	"context"
	"fmt"
	"net/url"

	"github.com/clinicdesk/console/internal/platform/apiclient"
)

type Repository interface {
	Dashboard(ctx context.Context) (*DashboardStats, error)
	Revenue(ctx context.Context, period Period) ([]RevenuePoint, error)
}

type repoHTTP struct {
	client *apiclient.Client
}

func NewRepoHTTP(client *apiclient.Client) Repository {
	return &repoHTTP{client: client}
}

func (r *repoHTTP) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var out DashboardStats
	if err := r.client.Get(ctx, "/analytics/dashboard", nil, &out); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &out, nil
}

func (r *repoHTTP) Revenue(ctx context.Context, period Period) ([]RevenuePoint, error) {
	var out []RevenuePoint
	q := url.Values{"period": {string(period)}}
	if err := r.client.Get(ctx, "/analytics/revenue", q, &out); err != nil {
		return nil, fmt.Errorf("revenue %s: %w", period, err)
	}
	return out, nil
}
