package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/clinicdesk/console/internal/platform/apiclient"
)

type repoHTTP struct {
	client *apiclient.Client
}

func NewRepoHTTP(client *apiclient.Client) Repository {
	return &repoHTTP{client: client}
}

type priceBody struct {
	PriceID string `json:"price_id"`
}

func subscriptionPath(id string, suffix string) string {
	return "/billing/subscription/" + url.PathEscape(id) + suffix
}

func (r *repoHTTP) ListPlans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	if err := r.client.Get(ctx, "/billing/plans", nil, &plans); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (r *repoHTTP) GetSubscription(ctx context.Context) (*Subscription, error) {
	var sub Subscription
	err := r.client.Get(ctx, "/billing/subscription", nil, &sub)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub.ID == "" {
		return nil, nil
	}
	return &sub, nil
}

func (r *repoHTTP) CreateCheckout(ctx context.Context, priceID string) (string, error) {
	var out struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := r.client.Post(ctx, "/billing/checkout", priceBody{PriceID: priceID}, &out); err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	if out.TransactionID == "" {
		return "", fmt.Errorf("create checkout: backend returned no transaction id")
	}
	return out.TransactionID, nil
}

func (r *repoHTTP) Cancel(ctx context.Context, id string) error {
	if err := r.client.Post(ctx, subscriptionPath(id, "/cancel"), nil, nil); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

func (r *repoHTTP) Update(ctx context.Context, id, priceID string) error {
	if err := r.client.Put(ctx, subscriptionPath(id, ""), priceBody{PriceID: priceID}, nil); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

func (r *repoHTTP) Resume(ctx context.Context, id string) error {
	if err := r.client.Post(ctx, subscriptionPath(id, "/resume"), nil, nil); err != nil {
		return fmt.Errorf("resume subscription: %w", err)
	}
	return nil
}

func (r *repoHTTP) PreviewProration(ctx context.Context, id, priceID string) (*ProrationPreview, error) {
	var out ProrationPreview
	q := url.Values{"price_id": {priceID}}
	if err := r.client.Get(ctx, subscriptionPath(id, "/preview"), q, &out); err != nil {
		return nil, fmt.Errorf("preview proration: %w", err)
	}
	return &out, nil
}
