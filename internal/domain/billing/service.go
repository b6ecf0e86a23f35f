package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/session"
	"github.com/clinicdesk/console/internal/platform/telemetry"
	"github.com/clinicdesk/console/internal/platform/validation"
)

const dateLayout = "January 2, 2006"

// Service coordinates the subscription lifecycle between the console, the
// backend's billing endpoints and the processor's checkout widget. The
// per-session snapshot is only ever replaced by a successful fetch.
type Service struct {
	repo     Repository
	resolver *Resolver
	states   StateStore
	notifier notify.Notifier
	checkout CheckoutConfig
	logger   zerolog.Logger
	metrics  *telemetry.Provider
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *telemetry.Provider) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, resolver *Resolver, states StateStore, notifier notify.Notifier, checkout CheckoutConfig, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		resolver: resolver,
		states:   states,
		notifier: notifier,
		checkout: checkout,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Resolver() *Resolver {
	return s.resolver
}

func (s *Service) CheckoutConfig() CheckoutConfig {
	return s.checkout
}

// Refresh fetches plans and subscription concurrently and publishes them
// as the session's snapshot. A refresh overtaken by a newer one returns
// the newer snapshot instead of its own. Anonymous callers get a fresh
// state that is not kept.
func (s *Service) Refresh(ctx context.Context) (*State, error) {
	key := session.IDFromContext(ctx)
	var seq uint64
	if key != "" {
		seq = s.states.Begin(key)
	}

	var (
		plans []Plan
		sub   *Subscription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plans, err = s.repo.ListPlans(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		sub, err = s.repo.GetSubscription(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.metrics.SubscriptionRefresh("failed")
		s.logger.Warn().Err(err).Str("session_id", key).Msg("subscription refresh failed")
		return nil, err
	}

	st := &State{Plans: plans, Subscription: sub, FetchedAt: s.now().UTC()}
	if key == "" {
		return st, nil
	}
	if !s.states.Commit(key, seq, st) {
		s.metrics.SubscriptionRefresh("stale")
		if cur, ok := s.states.Get(key); ok {
			return cur, nil
		}
		return st, nil
	}
	s.metrics.SubscriptionRefresh("ok")
	return st, nil
}

// State returns the session's snapshot, fetching it on first use.
func (s *Service) State(ctx context.Context) (*State, error) {
	if st, ok := s.states.Get(session.IDFromContext(ctx)); ok {
		return st, nil
	}
	return s.Refresh(ctx)
}

// Forget drops the snapshot for a session that signed out.
func (s *Service) Forget(sessionID string) {
	s.states.Forget(sessionID)
}

func (s *Service) HasFeature(ctx context.Context, key string) (bool, error) {
	st, err := s.State(ctx)
	if err != nil {
		return false, err
	}
	return s.resolver.HasFeature(st.Subscription, st.Plans, key), nil
}

func (s *Service) Entitlements(ctx context.Context) (*Entitlements, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	e := s.resolver.Evaluate(st.Subscription, st.Plans)
	return &e, nil
}

func requirePrice(priceID string) error {
	if strings.TrimSpace(priceID) == "" {
		ve := &validation.Errors{}
		ve.Add("price_id", "price_id is required")
		return ve
	}
	return nil
}

// CreateCheckout opens a processor transaction for priceID and returns
// what the embedded widget needs to take payment.
func (s *Service) CreateCheckout(ctx context.Context, priceID string) (*Checkout, error) {
	if !s.checkout.Configured() {
		s.notifier.Notify(ctx, notify.LevelError, "Payment system is not available. Please try again later.")
		return nil, ErrCheckoutUnavailable
	}
	if err := requirePrice(priceID); err != nil {
		return nil, err
	}

	txID, err := s.repo.CreateCheckout(ctx, priceID)
	if err != nil {
		s.logger.Error().Err(err).Str("price_id", priceID).Msg("create checkout failed")
		s.notifier.Notify(ctx, notify.LevelError, failureMessage(err, "Failed to start checkout"))
		return nil, err
	}

	return &Checkout{
		TransactionID: txID,
		PriceID:       priceID,
		ClientToken:   s.checkout.ClientToken,
		Environment:   s.checkout.Environment,
		CustomerEmail: session.EmailFromContext(ctx),
	}, nil
}

// CancelSubscription cancels at the end of the billing period. A second
// cancel while one is already scheduled is refused without calling the
// backend.
func (s *Service) CancelSubscription(ctx context.Context, id string) (ActionResult, error) {
	if st, err := s.State(ctx); err == nil && s.resolver.HasScheduledCancellation(st.Subscription) {
		msg := "Your subscription is already scheduled to cancel."
		if at := s.resolver.ScheduledCancellationDate(st.Subscription); at != nil {
			msg = fmt.Sprintf("Your subscription is already scheduled to cancel on %s.", at.Format(dateLayout))
		}
		s.notifier.Notify(ctx, notify.LevelInfo, msg)
		return ActionResult{Success: false, Message: msg}, nil
	}

	return s.mutate(ctx, "cancel", id,
		func() error { return s.repo.Cancel(ctx, id) },
		"Subscription canceled. You will keep access until the end of your billing period.",
		"Failed to cancel subscription")
}

func (s *Service) UpdateSubscription(ctx context.Context, id, priceID string) (ActionResult, error) {
	if err := requirePrice(priceID); err != nil {
		s.notifier.Notify(ctx, notify.LevelError, "Please choose a plan.")
		return ActionResult{Success: false, Message: "Please choose a plan."}, nil
	}
	return s.mutate(ctx, "update", id,
		func() error { return s.repo.Update(ctx, id, priceID) },
		"Subscription updated successfully.",
		"Failed to update subscription")
}

func (s *Service) ResumeSubscription(ctx context.Context, id string) (ActionResult, error) {
	return s.mutate(ctx, "resume", id,
		func() error { return s.repo.Resume(ctx, id) },
		"Subscription resumed.",
		"Failed to resume subscription")
}

// mutate runs a backend action, then refreshes. Failures become a notice
// and a false result; nothing is updated optimistically. The only error
// returned is apiclient.ErrUnauthorized, once the session has been signed
// out, so the browser learns it must sign in again.
func (s *Service) mutate(ctx context.Context, action, id string, call func() error, okMsg, failMsg string) (ActionResult, error) {
	if strings.TrimSpace(id) == "" {
		s.notifier.Notify(ctx, notify.LevelError, failMsg+": no subscription selected.")
		return ActionResult{Success: false, Message: failMsg + ": no subscription selected."}, nil
	}

	if err := call(); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			s.logger.Info().Str("action", action).Str("session_id", session.IDFromContext(ctx)).Msg("subscription action rejected, session signed out")
			s.notifier.Notify(ctx, notify.LevelWarning, "Your session has expired. Please sign in again.")
			return ActionResult{}, err
		}
		s.logger.Error().Err(err).Str("action", action).Str("subscription_id", id).Msg("subscription action failed")
		msg := failureMessage(err, failMsg)
		s.notifier.Notify(ctx, notify.LevelError, msg)
		return ActionResult{Success: false, Message: msg}, nil
	}

	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("refresh after subscription action failed")
	}
	s.notifier.Notify(ctx, notify.LevelSuccess, okMsg)
	return ActionResult{Success: true, Message: okMsg}, nil
}

// PreviewProration asks the processor what a plan change would cost.
func (s *Service) PreviewProration(ctx context.Context, id, priceID string) (*ProrationPreview, error) {
	if err := requirePrice(priceID); err != nil {
		return nil, err
	}
	return s.repo.PreviewProration(ctx, id, priceID)
}

func failureMessage(err error, fallback string) string {
	if msg := apiclient.MessageOf(err); msg != "" {
		return fallback + ": " + msg
	}
	return fallback + "."
}

// RequireFeature rejects requests from sessions whose subscription does
// not grant key.
func (s *Service) RequireFeature(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, err := s.HasFeature(c.Request().Context(), key)
			if err != nil {
				return err
			}
			if !ok {
				s.metrics.EntitlementDenied(key)
				return echo.NewHTTPError(http.StatusForbidden, s.upgradeMessage(key))
			}
			return next(c)
		}
	}
}

func (s *Service) upgradeMessage(key string) string {
	required, _ := s.resolver.RequiredPlan(key)
	switch required {
	case string(IntervalYear):
		return key + " is available on the yearly plan. Upgrade to unlock it."
	case string(IntervalMonth):
		return key + " is available on the monthly plan."
	default:
		return "An active subscription is required to use " + key + "."
	}
}
