package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
	"github.com/dmitrymomot/entitle/pkg/metrics"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
)

// Payments initiates and verifies charges.
type Payments interface {
	Initiate(ctx context.Context, m payment.Method, c payment.Charge) (payment.Handle, error)
	Verify(ctx context.Context, kind payment.Kind, transactionID string) (payment.Status, error)
}

// Notifier is told about billing events. Its errors are logged, never returned.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, s *Subscription, entry BillingEntry) error
	RenewalInitiated(ctx context.Context, s *Subscription, h payment.Handle) error
	SubscriptionExpired(ctx context.Context, s *Subscription) error
}

// UpgradeRequest asks to move a user onto a plan.
type UpgradeRequest struct {
	UserID       string
	PlanID       plan.ID
	BillingCycle plan.BillingCycle
	Method       payment.Method
}

// UpgradeResult carries the updated record and, for paid plans, the payment handle.
type UpgradeResult struct {
	Subscription *Subscription   `json:"subscription"`
	Payment      *payment.Handle `json:"payment,omitempty"`
}

// Result is the outcome of a payment confirmation.
type Result struct {
	Subscription *Subscription  `json:"subscription"`
	Status       payment.Status `json:"status"`
	Duplicate    bool           `json:"duplicate"`
}

// Service drives the subscription lifecycle.
type Service struct {
	store    Store
	catalog  plan.Catalog
	payments Payments

	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	trialPeriod time.Duration
	defaultPlan plan.ID
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithConfig applies trial period and default plan settings.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.TrialPeriod > 0 {
			s.trialPeriod = cfg.TrialPeriod
		}
		if cfg.DefaultPlan != "" {
			s.defaultPlan = cfg.DefaultPlan
		}
	}
}

func NewService(store Store, catalog plan.Catalog, payments Payments, opts ...Option) *Service {
	s := &Service{
		store:       store,
		catalog:     catalog,
		payments:    payments,
		logger:      slog.Default(),
		now:         time.Now,
		trialPeriod: 14 * 24 * time.Hour,
		defaultPlan: plan.Starter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a trial on the default plan.
func (s *Service) Create(ctx context.Context, userID, email string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	p, err := s.catalog.GetPlan(ctx, s.defaultPlan)
	if err != nil {
		return nil, fmt.Errorf("default plan: %w", err)
	}

	now := s.now().UTC()
	trialEnd := now.Add(s.trialPeriod)
	sub := &Subscription{
		UserID:         userID,
		Email:          email,
		Status:         StatusTrial,
		StartDate:      now,
		TrialEndDate:   &trialEnd,
		BillingHistory: []BillingEntry{},
		AutoRenew:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	applyPlan(sub, p)

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription created",
		logger.UserID(userID), logger.Plan(string(p.ID)), logger.Status(string(sub.Status)))
	return sub, nil
}

// Get returns the subscription of userID.
func (s *Service) Get(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.store.Get(ctx, userID)
}

// FindByReference resolves a payment reference to its subscription.
func (s *Service) FindByReference(ctx context.Context, reference string) (*Subscription, error) {
	if reference == "" {
		return nil, ErrNotFound
	}
	return s.store.FindByReference(ctx, reference)
}

// Ensure returns the subscription of userID, starting a trial on first access.
func (s *Service) Ensure(ctx context.Context, userID, email string) (*Subscription, error) {
	sub, err := s.Get(ctx, userID)
	if !errors.Is(err, ErrNotFound) {
		return sub, err
	}
	sub, err = s.Create(ctx, userID, email)
	if errors.Is(err, ErrAlreadyExists) {
		return s.store.Get(ctx, userID)
	}
	return sub, err
}

// Upgrade moves the user onto a plan. Free plans activate immediately; paid
// plans initiate a charge and park the subscription in pending_payment. The
// new plan's limits apply once the charge is confirmed.
func (s *Service) Upgrade(ctx context.Context, req UpgradeRequest) (*UpgradeResult, error) {
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}
	p, err := s.catalog.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	cycle := req.BillingCycle
	if cycle == "" {
		cycle = p.BillingInterval
	}
	if !cycle.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCycle, cycle)
	}

	cur, err := s.store.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if p.Free() {
		return s.upgradeFree(ctx, req.UserID, p)
	}

	if req.Method == nil {
		return nil, ErrMissingMethod
	}
	if !CanFire(cur.Status, EventUpgradePaid) {
		return nil, fmt.Errorf("%w: upgrade from %s", ErrInvalidTransition, cur.Status)
	}

	charge := payment.Charge{
		UserID:      req.UserID,
		Reference:   payment.NewReference(),
		PlanID:      string(p.ID),
		Cycle:       string(cycle),
		Amount:      p.PriceFor(cycle),
		Currency:    p.Currency,
		Description: fmt.Sprintf("%s plan, %s", p.Name, cycle),
	}
	h, err := s.payments.Initiate(ctx, req.Method, charge)
	if err != nil {
		return nil, err
	}

	var from Status
	sub, err := s.store.Update(ctx, req.UserID, func(sub *Subscription) error {
		resume := interrupted(sub)
		f, err := fire(sub, EventUpgradePaid)
		if err != nil {
			return err
		}
		from = f
		if card, ok := req.Method.(payment.CardMethod); ok && sub.Email == "" {
			sub.Email = card.Email
		}
		s.recordCharge(sub, req.Method, charge, h, p.ID, cycle, resume)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "payment initiated but subscription not updated",
			logger.UserID(req.UserID), logger.TransactionID(h.TransactionID), logger.Reference(h.Reference), logger.Error(err))
		return nil, err
	}

	s.transitioned(ctx, sub, EventUpgradePaid, from)
	return &UpgradeResult{Subscription: sub, Payment: &h}, nil
}

func (s *Service) upgradeFree(ctx context.Context, userID string, p plan.Plan) (*UpgradeResult, error) {
	var from Status
	sub, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		f, err := fire(sub, EventUpgradeFree)
		if err != nil {
			return err
		}
		from = f
		applyPlan(sub, p)
		sub.EndDate = nil
		sub.TrialEndDate = nil
		sub.PaymentDetails = nil
		sub.AutoRenew = true
		sub.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, sub, EventUpgradeFree, from)
	return &UpgradeResult{Subscription: sub}, nil
}

// ConfirmPayment verifies transactionID with the provider and applies the
// outcome. kind may be empty to use the method recorded for the transaction.
func (s *Service) ConfirmPayment(ctx context.Context, userID, transactionID string, kind payment.Kind) (*Result, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	cur, err := s.fresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur.Paid(transactionID) {
		return &Result{Subscription: cur, Status: payment.StatusSuccess, Duplicate: true}, nil
	}
	if !cur.knows(transactionID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
	}

	entry, _ := cur.entry(transactionID)
	if kind == "" {
		kind = entry.PaymentMethod
	}
	if kind == "" {
		kind = cur.PaymentMethod
	}

	status, err := s.payments.Verify(ctx, kind, transactionID)
	if err != nil {
		return nil, err
	}

	planID := cur.Plan
	switch {
	case entry.Plan != "":
		planID = entry.Plan
	case cur.PaymentDetails != nil && cur.PaymentDetails.TransactionID == transactionID && cur.PaymentDetails.Plan != "":
		planID = cur.PaymentDetails.Plan
	}
	p, planErr := s.catalog.GetPlan(ctx, planID)

	var (
		from      Status
		duplicate bool
		paid      BillingEntry
	)
	sub, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		if sub.Paid(transactionID) {
			duplicate = true
			return errNoChange
		}
		now := s.now().UTC()

		e, ok := sub.entry(transactionID)
		if !ok && sub.PaymentDetails != nil {
			d := sub.PaymentDetails
			e = BillingEntry{
				Amount: d.Amount, Currency: d.Currency, TransactionID: d.TransactionID, Reference: d.Reference,
				PaymentMethod: kind, Plan: planID, BillingCycle: d.BillingCycle,
			}
		}

		switch status {
		case payment.StatusSuccess:
			f, err := fire(sub, EventPaymentConfirmed)
			if err != nil {
				return err
			}
			from = f
			if planErr == nil && p.ID != sub.Plan {
				applyPlan(sub, p)
			}
			cycle := e.BillingCycle
			if !cycle.Valid() {
				cycle = plan.Monthly
			}
			base := now
			if sub.EndDate != nil && sub.EndDate.After(now) {
				base = *sub.EndDate
			}
			end := cycle.Extend(base)
			sub.EndDate = &end
			sub.TrialEndDate = nil
			sub.AutoRenew = true

			paid = e
			paid.Date, paid.Status, paid.TransactionID, paid.Plan = now, BillingPaid, transactionID, sub.Plan
			sub.BillingHistory = append(sub.BillingHistory, paid)
		case payment.StatusFailed:
			if sub.hasEntry(transactionID, BillingFailed) {
				return errNoChange
			}
			failed := e
			failed.Date, failed.Status, failed.TransactionID = now, BillingFailed, transactionID
			sub.BillingHistory = append(sub.BillingHistory, failed)
		default:
			return errNoChange
		}
		sub.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNoChange) {
		sub, err = s.store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if duplicate {
			status = payment.StatusSuccess
		}
		return &Result{Subscription: sub, Status: status, Duplicate: duplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	switch status {
	case payment.StatusSuccess:
		s.transitioned(ctx, sub, EventPaymentConfirmed, from)
		s.notify(ctx, "payment confirmed", func(n Notifier) error { return n.PaymentConfirmed(ctx, sub, paid) })
	case payment.StatusFailed:
		s.logger.WarnContext(ctx, "payment failed",
			logger.UserID(userID), logger.TransactionID(transactionID), logger.Provider(string(kind)))
	}
	return &Result{Subscription: sub, Status: status}, nil
}

// VerifyTransaction is the client-initiated poll for a transaction.
func (s *Service) VerifyTransaction(ctx context.Context, userID, transactionID string) (*Result, error) {
	return s.ConfirmPayment(ctx, userID, transactionID, "")
}

// Cancel turns off renewal. Access continues until the end of the current
// term; a cancelled trial keeps its trial end as the term end.
func (s *Service) Cancel(ctx context.Context, userID string) (*Subscription, error) {
	var from Status
	sub, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		if sub.Status == StatusCancelled {
			return errNoChange
		}
		f, err := fire(sub, EventCancel)
		if err != nil {
			return err
		}
		from = f
		now := s.now().UTC()
		if sub.EndDate == nil {
			end := now
			if f == StatusTrial && sub.TrialEndDate != nil {
				end = *sub.TrialEndDate
			}
			sub.EndDate = &end
		}
		sub.AutoRenew = false
		sub.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.store.Get(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, sub, EventCancel, from)
	return sub, nil
}

// Expire demotes the subscription to inactive if it is still in status
// 'from' and its term has lapsed. It reports whether a transition happened.
func (s *Service) Expire(ctx context.Context, userID string, from Status) (bool, error) {
	sub, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		now := s.now().UTC()
		if sub.Status != from || !sub.Lapsed(now) {
			return errNoChange
		}
		if _, err := fire(sub, EventExpire); err != nil {
			return err
		}
		sub.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.transitioned(ctx, sub, EventExpire, from)
	s.notify(ctx, "subscription expired", func(n Notifier) error { return n.SubscriptionExpired(ctx, sub) })
	return true, nil
}

// Abandon settles a charge that was never confirmed. A subscription whose
// interrupted trial or paid term is still running returns to the status it
// held before the charge, on the plan it already had; otherwise it expires.
// It returns the resulting status, or "" when the subscription was not
// pending.
func (s *Service) Abandon(ctx context.Context, userID string) (Status, error) {
	event := EventExpire
	sub, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		if sub.Status != StatusPendingPayment {
			return errNoChange
		}
		now := s.now().UTC()
		event = EventExpire
		if prev, ok := sub.resumeStatus(); ok && sub.HasAccess(now) {
			event = resumeEvents[prev]
		}
		if _, err := fire(sub, event); err != nil {
			return err
		}
		sub.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNoChange) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s.transitioned(ctx, sub, event, StatusPendingPayment)
	if event == EventExpire {
		s.notify(ctx, "subscription expired", func(n Notifier) error { return n.SubscriptionExpired(ctx, sub) })
	}
	return sub.Status, nil
}

// Renew charges a lapsed auto-renewing subscription with its last payment
// method and parks it in pending_payment.
func (s *Service) Renew(ctx context.Context, userID string) (*payment.Handle, error) {
	cur, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusActive || !cur.AutoRenew || !cur.Lapsed(s.now()) {
		return nil, ErrNotDue
	}
	p, err := s.catalog.GetPlan(ctx, cur.Plan)
	if err != nil {
		return nil, err
	}
	cycle := p.BillingInterval
	if cur.PaymentDetails != nil && cur.PaymentDetails.BillingCycle.Valid() {
		cycle = cur.PaymentDetails.BillingCycle
	}
	method, err := cur.PaymentMethodFor()
	if err != nil {
		return nil, err
	}

	charge := payment.Charge{
		UserID:      userID,
		Reference:   payment.NewReference(),
		PlanID:      string(p.ID),
		Cycle:       string(cycle),
		Amount:      p.PriceFor(cycle),
		Currency:    p.Currency,
		Description: fmt.Sprintf("%s plan renewal, %s", p.Name, cycle),
	}
	h, err := s.payments.Initiate(ctx, method, charge)
	if err != nil {
		return nil, err
	}

	sub, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		if sub.Status != StatusActive || !sub.Lapsed(s.now()) {
			return ErrNotDue
		}
		resume := interrupted(sub)
		if _, err := fire(sub, EventRenew); err != nil {
			return err
		}
		s.recordCharge(sub, method, charge, h, p.ID, cycle, resume)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "renewal initiated but subscription not updated",
			logger.UserID(userID), logger.TransactionID(h.TransactionID), logger.Error(err))
		return nil, err
	}

	s.transitioned(ctx, sub, EventRenew, StatusActive)
	s.notify(ctx, "renewal initiated", func(n Notifier) error { return n.RenewalInitiated(ctx, sub, h) })
	return &h, nil
}

// fresh reads the record through Update, bypassing any read cache, so payment
// decisions never act on a copy older than another instance's write.
func (s *Service) fresh(ctx context.Context, userID string) (*Subscription, error) {
	var snap *Subscription
	_, err := s.store.Update(ctx, userID, func(sub *Subscription) error {
		snap = sub.Clone()
		return errNoChange
	})
	if errors.Is(err, errNoChange) {
		return snap, nil
	}
	return nil, err
}

// interrupted is the status a new charge interrupts. A charge replacing a
// pending one keeps the status the first charge interrupted.
func interrupted(sub *Subscription) Status {
	if sub.Status == StatusPendingPayment && sub.PaymentDetails != nil {
		return sub.PaymentDetails.ResumeStatus
	}
	return sub.Status
}

// recordCharge stores the payment correlation and the pending billing line.
func (s *Service) recordCharge(sub *Subscription, m payment.Method, c payment.Charge, h payment.Handle,
	planID plan.ID, cycle plan.BillingCycle, resume Status,
) {
	now := s.now().UTC()
	sub.PaymentMethod = m.Kind()
	sub.PaymentDetails = &PaymentDetails{
		TransactionID:    h.TransactionID,
		Reference:        h.Reference,
		PhoneNumber:      payment.PhoneNumber(m),
		AuthorizationURL: h.AuthorizationURL,
		Amount:           c.Amount,
		Currency:         c.Currency,
		BillingCycle:     cycle,
		Plan:             planID,
		ResumeStatus:     resume,
		InitiatedAt:      now,
	}
	sub.BillingHistory = append(sub.BillingHistory, BillingEntry{
		Date:          now,
		Amount:        c.Amount,
		Currency:      c.Currency,
		Status:        BillingPending,
		TransactionID: h.TransactionID,
		Reference:     h.Reference,
		PaymentMethod: m.Kind(),
		Plan:          planID,
		BillingCycle:  cycle,
	})
	sub.UpdatedAt = now
}

func (s *Service) transitioned(ctx context.Context, sub *Subscription, event Event, from Status) {
	s.metrics.SubscriptionTransition(string(event), string(from), string(sub.Status))
	s.logger.InfoContext(ctx, "subscription transitioned",
		logger.UserID(sub.UserID),
		logger.Event(string(event)),
		slog.String("from", string(from)),
		logger.Status(string(sub.Status)),
		logger.Plan(string(sub.Plan)))
}

func (s *Service) notify(ctx context.Context, what string, fn func(Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(s.notifier); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("notification", what), logger.Error(err))
	}
}

// applyPlan snapshots plan limits and features onto the subscription.
func applyPlan(sub *Subscription, p plan.Plan) {
	sub.Plan = p.ID
	sub.Limits = p.Limits.Clone()
	sub.Features = slices.Clone(p.Features)
}
