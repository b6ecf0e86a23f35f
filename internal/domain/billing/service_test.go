package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/console/internal/platform/apiclient"
	"github.com/clinicdesk/console/internal/platform/notify"
	"github.com/clinicdesk/console/internal/platform/session"
	"github.com/clinicdesk/console/internal/platform/validation"
)

// =========== Mock Repository ===========

type mockRepo struct {
	mu        sync.Mutex
	plans     []Plan
	sub       *Subscription
	plansErr  error
	subErr    error
	actionErr error
	txID      string
	preview   *ProrationPreview
	calls     map[string]int
	// subFn overrides GetSubscription when set.
	subFn func(ctx context.Context) (*Subscription, error)
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		plans: []Plan{monthlyPlan, yearlyPlan},
		txID:  "txn_1",
		calls: make(map[string]int),
	}
}

func (m *mockRepo) record(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *mockRepo) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockRepo) ListPlans(ctx context.Context) ([]Plan, error) {
	m.record("plans")
	return m.plans, m.plansErr
}

func (m *mockRepo) GetSubscription(ctx context.Context) (*Subscription, error) {
	m.record("subscription")
	if m.subFn != nil {
		return m.subFn(ctx)
	}
	return m.sub, m.subErr
}

func (m *mockRepo) CreateCheckout(ctx context.Context, priceID string) (string, error) {
	m.record("checkout")
	if m.actionErr != nil {
		return "", m.actionErr
	}
	return m.txID, nil
}

func (m *mockRepo) Cancel(ctx context.Context, id string) error {
	m.record("cancel")
	return m.actionErr
}

func (m *mockRepo) Update(ctx context.Context, id, priceID string) error {
	m.record("update")
	return m.actionErr
}

func (m *mockRepo) Resume(ctx context.Context, id string) error {
	m.record("resume")
	return m.actionErr
}

func (m *mockRepo) PreviewProration(ctx context.Context, id, priceID string) (*ProrationPreview, error) {
	m.record("preview")
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	return m.preview, nil
}

// =========== Recording Notifier ===========

type recordedNotice struct {
	level notify.Level
	msg   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (r *recordingNotifier) Notify(_ context.Context, level notify.Level, msg string) {
	r.mu.Lock()
	r.notices = append(r.notices, recordedNotice{level: level, msg: msg})
	r.mu.Unlock()
}

func (r *recordingNotifier) last() recordedNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return recordedNotice{}
	}
	return r.notices[len(r.notices)-1]
}

// =========== Helpers ===========

var testCheckout = CheckoutConfig{Environment: "sandbox", ClientToken: "test_client_token"}

func newTestService(repo Repository, n notify.Notifier, checkout CheckoutConfig) *Service {
	svc := NewService(repo, newTestResolver(), NewMemoryStateStore(), n, checkout)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func sessionCtx(id string) context.Context {
	return session.WithSession(context.Background(), &session.Session{
		ID:          id,
		AccessToken: "access",
		Email:       "dr.lee@example.com",
	})
}

// =========== Refresh ===========

func TestService_RefreshStoresSnapshot(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_year")
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	ctx := sessionCtx("s1")

	st, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Plans) != 2 || st.Subscription.ID != "sub_1" {
		t.Errorf("unexpected state: %+v", st)
	}
	if !st.FetchedAt.Equal(fixedNow) {
		t.Errorf("expected fetched_at %v, got %v", fixedNow, st.FetchedAt)
	}

	if _, err := svc.State(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.count("plans") != 1 {
		t.Errorf("expected cached state to be reused, got %d plan fetches", repo.count("plans"))
	}
}

func TestService_RefreshFailureKeepsPreviousState(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	ctx := sessionCtx("s1")

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo.subErr = errors.New("backend down")
	if _, err := svc.Refresh(ctx); err == nil {
		t.Fatal("expected error")
	}

	st, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Subscription == nil || st.Subscription.ID != "sub_1" {
		t.Errorf("expected previous snapshot preserved, got %+v", st)
	}
}

func TestService_RefreshStaleResultDiscarded(t *testing.T) {
	repo := newMockRepo()
	older := activeSub("pri_month")
	older.ID = "sub_old"
	newer := activeSub("pri_year")
	newer.ID = "sub_new"

	var calls int32
	entered := make(chan struct{})
	release := make(chan struct{})
	repo.subFn = func(ctx context.Context) (*Subscription, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
			return older, nil
		}
		return newer, nil
	}
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	ctx := sessionCtx("s1")

	var slow *State
	done := make(chan struct{})
	go func() {
		defer close(done)
		slow, _ = svc.Refresh(ctx)
	}()

	<-entered
	fast, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fast.Subscription.ID != "sub_new" {
		t.Fatalf("expected newer subscription, got %s", fast.Subscription.ID)
	}

	close(release)
	<-done

	if slow == nil || slow.Subscription.ID != "sub_new" {
		t.Errorf("expected overtaken refresh to return the newer state, got %+v", slow)
	}
	st, _ := svc.State(ctx)
	if st.Subscription.ID != "sub_new" {
		t.Errorf("expected stored state to stay newer, got %s", st.Subscription.ID)
	}
}

func TestService_AnonymousRefreshNotStored(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)

	if _, err := svc.State(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.State(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.count("plans") != 2 {
		t.Errorf("expected every anonymous call to fetch, got %d", repo.count("plans"))
	}
}

func TestService_ForgetDropsSnapshot(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	ctx := sessionCtx("s1")

	svc.State(ctx)
	svc.Forget("s1")
	svc.State(ctx)
	if repo.count("plans") != 2 {
		t.Errorf("expected refetch after forget, got %d", repo.count("plans"))
	}
}

// =========== Entitlements ===========

func TestService_HasFeature(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	ctx := sessionCtx("s1")

	ok, err := svc.HasFeature(ctx, FeaturePatientManagement)
	if err != nil || !ok {
		t.Errorf("expected patient management granted, got %v, %v", ok, err)
	}
	ok, _ = svc.HasFeature(ctx, FeatureAnalyticsDashboard)
	if ok {
		t.Error("expected analytics denied on monthly")
	}

	e, err := svc.Entitlements(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Tier != IntervalMonth || !e.Active {
		t.Errorf("unexpected entitlements: %+v", e)
	}
}

func TestService_RequireFeature(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)

	e := echo.New()
	handler := svc.RequireFeature(FeatureAnalyticsDashboard)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/dashboard", nil)
	req = req.WithContext(sessionCtx("s1"))
	c := e.NewContext(req, httptest.NewRecorder())

	err := handler(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if msg, _ := he.Message.(string); !strings.Contains(msg, "yearly plan") {
		t.Errorf("expected upgrade message, got %v", he.Message)
	}

	repo.sub = activeSub("pri_year")
	svc.Forget("s1")
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("expected yearly subscriber through, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// =========== Checkout ===========

func TestService_CreateCheckout(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)

	co, err := svc.CreateCheckout(sessionCtx("s1"), "pri_year")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if co.TransactionID != "txn_1" || co.ClientToken != "test_client_token" || co.Environment != "sandbox" {
		t.Errorf("unexpected checkout: %+v", co)
	}
	if co.CustomerEmail != "dr.lee@example.com" {
		t.Errorf("expected session email prefilled, got %q", co.CustomerEmail)
	}
}

func TestService_CreateCheckoutUnconfigured(t *testing.T) {
	repo := newMockRepo()
	n := &recordingNotifier{}
	svc := newTestService(repo, n, CheckoutConfig{})

	_, err := svc.CreateCheckout(sessionCtx("s1"), "pri_year")
	if !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
	if repo.count("checkout") != 0 {
		t.Error("expected no backend call")
	}
	if n.last().level != notify.LevelError {
		t.Errorf("expected error notice, got %+v", n.last())
	}
}

func TestService_CreateCheckoutRequiresPrice(t *testing.T) {
	svc := newTestService(newMockRepo(), &recordingNotifier{}, testCheckout)
	_, err := svc.CreateCheckout(sessionCtx("s1"), " ")
	ve, ok := validation.AsErrors(err)
	if !ok || ve.Fields["price_id"] == "" {
		t.Errorf("expected price_id validation error, got %v", err)
	}
}

func TestService_CreateCheckoutBackendFailure(t *testing.T) {
	repo := newMockRepo()
	repo.actionErr = &apiclient.APIError{StatusCode: 422, Message: "price archived"}
	n := &recordingNotifier{}
	svc := newTestService(repo, n, testCheckout)

	if _, err := svc.CreateCheckout(sessionCtx("s1"), "pri_year"); err == nil {
		t.Fatal("expected error")
	}
	if got := n.last().msg; got != "Failed to start checkout: price archived" {
		t.Errorf("unexpected notice: %q", got)
	}
}

// =========== Lifecycle ===========

func TestService_CancelSubscription(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	n := &recordingNotifier{}
	svc := newTestService(repo, n, testCheckout)
	ctx := sessionCtx("s1")

	res, _ := svc.CancelSubscription(ctx, "sub_1")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if repo.count("cancel") != 1 {
		t.Errorf("expected one cancel call, got %d", repo.count("cancel"))
	}
	if n.last().level != notify.LevelSuccess {
		t.Errorf("expected success notice, got %+v", n.last())
	}
}

func TestService_CancelTwiceRefused(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	n := &recordingNotifier{}
	svc := newTestService(repo, n, testCheckout)
	ctx := sessionCtx("s1")

	if res, _ := svc.CancelSubscription(ctx, "sub_1"); !res.Success {
		t.Fatalf("expected first cancel to succeed, got %+v", res)
	}

	// The backend now reports the scheduled change; the post-cancel refresh picked it up.
	repo.sub = activeSub("pri_month")
	repo.sub.ScheduledChange = &ScheduledChange{
		Action:      ActionCancel,
		EffectiveAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	svc.Forget("s1")

	res, _ := svc.CancelSubscription(ctx, "sub_1")
	if res.Success {
		t.Fatal("expected second cancel refused")
	}
	want := "Your subscription is already scheduled to cancel on July 1, 2024."
	if res.Message != want {
		t.Errorf("expected %q, got %q", want, res.Message)
	}
	if repo.count("cancel") != 1 {
		t.Errorf("expected no second backend call, got %d", repo.count("cancel"))
	}
	if n.last().level != notify.LevelInfo {
		t.Errorf("expected info notice, got %+v", n.last())
	}
}

func TestService_MutateFailure(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	repo.actionErr = &apiclient.APIError{StatusCode: 500, Message: "processor unavailable"}
	n := &recordingNotifier{}
	svc := newTestService(repo, n, testCheckout)
	ctx := sessionCtx("s1")

	res, _ := svc.UpdateSubscription(ctx, "sub_1", "pri_year")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "Failed to update subscription: processor unavailable" {
		t.Errorf("unexpected message: %q", res.Message)
	}
	if n.last().level != notify.LevelError {
		t.Errorf("expected error notice, got %+v", n.last())
	}
	if repo.count("plans") != 0 {
		t.Error("expected no refresh after a failed action")
	}
}

func TestService_MutateSignedOutReturnsUnauthorized(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	repo.actionErr = fmt.Errorf("resume subscription: %w", &apiclient.APIError{StatusCode: http.StatusUnauthorized})
	n := &recordingNotifier{}
	svc := newTestService(repo, n, testCheckout)

	res, err := svc.ResumeSubscription(sessionCtx("s1"), "sub_1")
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v (%+v)", err, res)
	}
	if n.last().level != notify.LevelWarning {
		t.Errorf("expected sign-in warning, got %+v", n.last())
	}
	if repo.count("subscription") != 0 {
		t.Error("expected no refresh after a signed-out action")
	}
}

func TestService_MutateRefreshesOnSuccess(t *testing.T) {
	repo := newMockRepo()
	repo.sub = activeSub("pri_month")
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	ctx := sessionCtx("s1")

	res, _ := svc.ResumeSubscription(ctx, "sub_1")
	if !res.Success || res.Message != "Subscription resumed." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if repo.count("subscription") != 1 {
		t.Errorf("expected a refresh after resume, got %d", repo.count("subscription"))
	}
}

func TestService_MutateRequiresID(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	res, _ := svc.ResumeSubscription(sessionCtx("s1"), "")
	if res.Success || repo.count("resume") != 0 {
		t.Errorf("expected refusal without backend call, got %+v", res)
	}
}

func TestService_UpdateRequiresPrice(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)
	res, _ := svc.UpdateSubscription(sessionCtx("s1"), "sub_1", "")
	if res.Success || repo.count("update") != 0 {
		t.Errorf("expected refusal without backend call, got %+v", res)
	}
}

func TestService_PreviewProration(t *testing.T) {
	repo := newMockRepo()
	repo.preview = &ProrationPreview{Currency: "USD"}
	svc := newTestService(repo, &recordingNotifier{}, testCheckout)

	p, err := svc.PreviewProration(sessionCtx("s1"), "sub_1", "pri_year")
	if err != nil || p.Currency != "USD" {
		t.Errorf("unexpected preview: %+v, %v", p, err)
	}
	if _, err := svc.PreviewProration(sessionCtx("s1"), "sub_1", ""); err == nil {
		t.Error("expected validation error")
	}
}
