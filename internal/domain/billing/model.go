package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrCheckoutUnavailable = errors.New("payment system is not available")

// Interval is a billing interval. It doubles as the entitlement tier.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

func (i Interval) Valid() bool {
	return i == IntervalMonth || i == IntervalYear
}

// Plan is an offering from the catalog. Plans are read-only here.
type Plan struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Interval  Interval        `json:"interval"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Features  []string        `json:"features,omitempty"`
}

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPaused   Status = "paused"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
)

type BillingCycle struct {
	Interval  Interval `json:"interval"`
	Frequency int      `json:"frequency"`
}

type Price struct {
	ID           string        `json:"id"`
	ProductID    string        `json:"product_id,omitempty"`
	BillingCycle *BillingCycle `json:"billing_cycle,omitempty"`
}

type Item struct {
	Price     Price `json:"price"`
	Recurring bool  `json:"recurring"`
	Quantity  int   `json:"quantity"`
}

const ActionCancel = "cancel"

// ScheduledChange is a pending transition that takes effect at EffectiveAt.
type ScheduledChange struct {
	Action      string     `json:"action"`
	EffectiveAt time.Time  `json:"effective_at"`
	ResumeAt    *time.Time `json:"resume_at,omitempty"`
}

type Period struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Subscription is the user's billing relationship as reported by the backend.
type Subscription struct {
	ID              string           `json:"id"`
	Status          Status           `json:"status"`
	CustomerID      string           `json:"customer_id,omitempty"`
	Items           []Item           `json:"items"`
	BillingCycle    *BillingCycle    `json:"billing_cycle,omitempty"`
	NextBilledAt    *time.Time       `json:"next_billed_at,omitempty"`
	ScheduledChange *ScheduledChange `json:"scheduled_change,omitempty"`
	CurrentPeriod   *Period          `json:"current_billing_period,omitempty"`
}

// RequiredAll marks a feature granted on every paid interval.
const RequiredAll = "all"

// Feature is a named capability and the plan it needs.
type Feature struct {
	Key          string `json:"key"`
	RequiredPlan string `json:"required_plan"`
}

const (
	FeaturePatientManagement     = "Patient Management"
	FeatureAppointmentScheduling = "Appointment Scheduling"
	FeaturePracticeSettings      = "Practice Settings"
	FeatureEmailReminders        = "Email Reminders"
	FeatureAnalyticsDashboard    = "Analytics Dashboard"
	FeatureRevenueReports        = "Revenue Reports"
	FeaturePrioritySupport       = "Priority Support"
)

var DefaultFeatures = []Feature{
	{Key: FeaturePatientManagement, RequiredPlan: RequiredAll},
	{Key: FeatureAppointmentScheduling, RequiredPlan: RequiredAll},
	{Key: FeaturePracticeSettings, RequiredPlan: RequiredAll},
	{Key: FeatureEmailReminders, RequiredPlan: RequiredAll},
	{Key: FeatureAnalyticsDashboard, RequiredPlan: string(IntervalYear)},
	{Key: FeatureRevenueReports, RequiredPlan: string(IntervalYear)},
	{Key: FeaturePrioritySupport, RequiredPlan: string(IntervalYear)},
}

// Entitlements summarizes what a subscription unlocks. Derived, never stored.
type Entitlements struct {
	Active                bool            `json:"active"`
	Expired               bool            `json:"expired"`
	Tier                  Interval        `json:"tier,omitempty"`
	ScheduledCancellation bool            `json:"scheduled_cancellation"`
	CancelsAt             *time.Time      `json:"cancels_at,omitempty"`
	Features              map[string]bool `json:"features"`
}

// State is one session's view of the catalog and its subscription. It is
// replaced wholesale after each successful fetch.
type State struct {
	Plans        []Plan        `json:"plans"`
	Subscription *Subscription `json:"subscription"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// CheckoutConfig initializes the processor's embedded checkout widget.
type CheckoutConfig struct {
	Environment string `json:"environment"`
	ClientToken string `json:"client_token"`
}

func (c CheckoutConfig) Configured() bool {
	return c.ClientToken != ""
}

// Checkout is everything the widget needs to open for one transaction.
type Checkout struct {
	TransactionID string `json:"transaction_id"`
	PriceID       string `json:"price_id"`
	ClientToken   string `json:"client_token"`
	Environment   string `json:"environment"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// ActionResult reports a lifecycle action. Refusals are not errors.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ProrationLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ProrationPreview is computed by the processor; it is passed through as is.
type ProrationPreview struct {
	Currency        string          `json:"currency"`
	ImmediateCharge decimal.Decimal `json:"immediate_charge"`
	Credit          decimal.Decimal `json:"credit"`
	NextAmount      decimal.Decimal `json:"next_amount"`
	NextBilledAt    *time.Time      `json:"next_billed_at,omitempty"`
	Lines           []ProrationLine `json:"lines,omitempty"`
}
