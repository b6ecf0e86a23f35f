package billing

import "context"

// Repository is the backend's billing surface.
type Repository interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	// GetSubscription returns nil, nil when the user has no subscription.
	GetSubscription(ctx context.Context) (*Subscription, error)
	CreateCheckout(ctx context.Context, priceID string) (string, error)
	Cancel(ctx context.Context, id string) error
	Update(ctx context.Context, id, priceID string) error
	Resume(ctx context.Context, id string) error
	PreviewProration(ctx context.Context, id, priceID string) (*ProrationPreview, error)
}
