package billing

import (
	"time"
)

// Resolver answers entitlement questions from a subscription and the plan
// catalog. All methods are pure; missing data gives the most restrictive
// answer, except the monthly fallback in ResolveTier.
type Resolver struct {
	Features []Feature
	Now      func() time.Time
	// FailClosed disables the monthly fallback for recurring items whose
	// interval cannot be determined.
	FailClosed bool
}

func NewResolver(failClosed bool) *Resolver {
	return &Resolver{
		Features:   DefaultFeatures,
		Now:        time.Now,
		FailClosed: failClosed,
	}
}

func (r *Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// IsActive reports whether sub is active or trialing with at least one item.
func (r *Resolver) IsActive(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	return (sub.Status == StatusActive || sub.Status == StatusTrialing) && len(sub.Items) > 0
}

// ResolveTier determines the billing interval sub belongs to: by the first
// item's price, then by the subscription's billing cycle, then (for a
// recurring item) the monthly default.
func (r *Resolver) ResolveTier(sub *Subscription, plans []Plan) (Interval, bool) {
	if sub == nil {
		return "", false
	}

	if len(sub.Items) > 0 {
		priceID := sub.Items[0].Price.ID
		for _, p := range plans {
			if priceID != "" && p.ID == priceID && p.Interval.Valid() {
				return p.Interval, true
			}
		}
	}

	if sub.BillingCycle != nil && sub.BillingCycle.Interval.Valid() {
		return sub.BillingCycle.Interval, true
	}

	if len(sub.Items) > 0 && sub.Items[0].Recurring && !r.FailClosed {
		return IntervalMonth, true
	}
	return "", false
}

// FeaturesFor lists the feature keys unlocked by tier.
func (r *Resolver) FeaturesFor(tier Interval) []string {
	var out []string
	for _, f := range r.Features {
		if f.RequiredPlan == RequiredAll || f.RequiredPlan == string(tier) {
			out = append(out, f.Key)
		}
	}
	return out
}

func (r *Resolver) tierGrants(tier Interval, key string) bool {
	for _, f := range r.FeaturesFor(tier) {
		if f == key {
			return true
		}
	}
	return false
}

// HasFeature reports whether sub grants key. Expired subscriptions grant
// nothing even when their stored status is still active.
func (r *Resolver) HasFeature(sub *Subscription, plans []Plan, key string) bool {
	if !r.IsActive(sub) || r.IsExpired(sub) {
		return false
	}
	tier, ok := r.ResolveTier(sub, plans)
	if !ok {
		return false
	}
	return r.tierGrants(tier, key)
}

// RequiredPlan returns the plan tag key needs, or false for unknown keys.
func (r *Resolver) RequiredPlan(key string) (string, bool) {
	for _, f := range r.Features {
		if f.Key == key {
			return f.RequiredPlan, true
		}
	}
	return "", false
}

func (r *Resolver) HasScheduledCancellation(sub *Subscription) bool {
	return sub != nil && sub.ScheduledChange != nil && sub.ScheduledChange.Action == ActionCancel
}

// ScheduledCancellationDate returns when a scheduled cancellation takes
// effect, or nil.
func (r *Resolver) ScheduledCancellationDate(sub *Subscription) *time.Time {
	if !r.HasScheduledCancellation(sub) {
		return nil
	}
	at := sub.ScheduledChange.EffectiveAt
	return &at
}

// IsExpired is true for a missing or canceled subscription, or one whose
// scheduled cancellation has already taken effect.
func (r *Resolver) IsExpired(sub *Subscription) bool {
	if sub == nil || sub.Status == StatusCanceled {
		return true
	}
	if at := r.ScheduledCancellationDate(sub); at != nil && at.Before(r.now()) {
		return true
	}
	return false
}

// Evaluate answers every entitlement question at once.
func (r *Resolver) Evaluate(sub *Subscription, plans []Plan) Entitlements {
	e := Entitlements{
		Active:                r.IsActive(sub),
		Expired:               r.IsExpired(sub),
		ScheduledCancellation: r.HasScheduledCancellation(sub),
		CancelsAt:             r.ScheduledCancellationDate(sub),
		Features:              make(map[string]bool, len(r.Features)),
	}
	if tier, ok := r.ResolveTier(sub, plans); ok && e.Active {
		e.Tier = tier
	}
	for _, f := range r.Features {
		e.Features[f.Key] = r.HasFeature(sub, plans, f.Key)
	}
	return e
}
