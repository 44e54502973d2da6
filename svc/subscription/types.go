package subscription

import (
	"slices"
	"time"

	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusTrial          Status = "trial"
	StatusActive         Status = "active"
	StatusInactive       Status = "inactive"
	StatusCancelled      Status = "cancelled"
	StatusPendingPayment Status = "pending_payment"
)

// BillingStatus is the outcome recorded for a charge.
type BillingStatus string

const (
	BillingPaid    BillingStatus = "paid"
	BillingPending BillingStatus = "pending"
	BillingFailed  BillingStatus = "failed"
)

// BillingEntry is one append-only line of billing history.
type BillingEntry struct {
	Date          time.Time         `json:"date"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        BillingStatus     `json:"status"`
	TransactionID string            `json:"transactionId"`
	Reference     string            `json:"reference,omitempty"`
	PaymentMethod payment.Kind      `json:"paymentMethod"`
	Plan          plan.ID           `json:"plan"`
	BillingCycle  plan.BillingCycle `json:"billingCycle,omitempty"`
}

// PaymentDetails correlates the latest charge with the provider. Plan is the
// plan being paid for; ResumeStatus is the status held before the charge.
type PaymentDetails struct {
	TransactionID    string            `json:"transactionId"`
	Reference        string            `json:"reference"`
	PhoneNumber      string            `json:"phoneNumber,omitempty"`
	AuthorizationURL string            `json:"authorizationUrl,omitempty"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	BillingCycle     plan.BillingCycle `json:"billingCycle"`
	Plan             plan.ID           `json:"plan,omitempty"`
	ResumeStatus     Status            `json:"resumeStatus,omitempty"`
	InitiatedAt      time.Time         `json:"initiatedAt"`
}

// Subscription is the single subscription record of a user.
type Subscription struct {
	UserID         string          `json:"userId"`
	Email          string          `json:"email,omitempty"`
	Plan           plan.ID         `json:"plan"`
	Status         Status          `json:"status"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        *time.Time      `json:"endDate,omitempty"`
	TrialEndDate   *time.Time      `json:"trialEndDate,omitempty"`
	PaymentMethod  payment.Kind    `json:"paymentMethod,omitempty"`
	PaymentDetails *PaymentDetails `json:"paymentDetails,omitempty"`
	Limits         plan.Limits     `json:"limits"`
	Features       []string        `json:"features"`
	BillingHistory []BillingEntry  `json:"billingHistory"`
	AutoRenew      bool            `json:"autoRenew"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.EndDate = clonePtr(s.EndDate)
	c.TrialEndDate = clonePtr(s.TrialEndDate)
	c.PaymentDetails = clonePtr(s.PaymentDetails)
	c.Limits = s.Limits.Clone()
	c.Features = slices.Clone(s.Features)
	c.BillingHistory = slices.Clone(s.BillingHistory)
	return &c
}

// HasAccess reports whether the subscription currently grants its limits.
// Cancelled subscriptions keep access until the end of the paid term. While a
// charge is pending the status held before it still applies, so a running
// trial or paid term is not interrupted by an upgrade attempt.
func (s *Subscription) HasAccess(now time.Time) bool {
	switch s.Status {
	case StatusTrial:
		return s.TrialEndDate != nil && now.Before(*s.TrialEndDate)
	case StatusActive:
		return s.EndDate == nil || now.Before(*s.EndDate)
	case StatusCancelled:
		return s.EndDate != nil && now.Before(*s.EndDate)
	case StatusPendingPayment:
		prev, ok := s.resumeStatus()
		if !ok {
			return false
		}
		c := *s
		c.Status = prev
		return c.HasAccess(now)
	}
	return false
}

// Lapsed reports whether the trial or paid term has ended. A pending charge
// has lapsed once the term it interrupted is over.
func (s *Subscription) Lapsed(now time.Time) bool {
	switch s.Status {
	case StatusTrial:
		return s.TrialEndDate != nil && now.After(*s.TrialEndDate)
	case StatusActive, StatusCancelled:
		return s.EndDate != nil && now.After(*s.EndDate)
	case StatusPendingPayment:
		return !s.HasAccess(now)
	}
	return false
}

// resumeStatus returns the status a pending charge interrupted, when that
// status can be returned to.
func (s *Subscription) resumeStatus() (Status, bool) {
	if s.PaymentDetails == nil {
		return "", false
	}
	_, ok := resumeEvents[s.PaymentDetails.ResumeStatus]
	return s.PaymentDetails.ResumeStatus, ok
}

// Paid reports whether transactionID already has a paid billing entry.
func (s *Subscription) Paid(transactionID string) bool {
	return s.hasEntry(transactionID, BillingPaid)
}

func (s *Subscription) hasEntry(transactionID string, status BillingStatus) bool {
	return slices.ContainsFunc(s.BillingHistory, func(e BillingEntry) bool {
		return e.TransactionID == transactionID && e.Status == status
	})
}

// entry returns the most recent billing entry for transactionID.
func (s *Subscription) entry(transactionID string) (BillingEntry, bool) {
	for i := len(s.BillingHistory) - 1; i >= 0; i-- {
		if s.BillingHistory[i].TransactionID == transactionID {
			return s.BillingHistory[i], true
		}
	}
	return BillingEntry{}, false
}

// knows reports whether transactionID belongs to this subscription.
func (s *Subscription) knows(transactionID string) bool {
	if s.PaymentDetails != nil && s.PaymentDetails.TransactionID == transactionID {
		return true
	}
	_, ok := s.entry(transactionID)
	return ok
}

// TransactionFor returns the provider transaction recorded for reference.
func (s *Subscription) TransactionFor(reference string) (string, bool) {
	if d := s.PaymentDetails; d != nil && d.Reference == reference && d.TransactionID != "" {
		return d.TransactionID, true
	}
	for i := len(s.BillingHistory) - 1; i >= 0; i-- {
		if e := s.BillingHistory[i]; e.Reference == reference && e.TransactionID != "" {
			return e.TransactionID, true
		}
	}
	return "", false
}

// PaymentMethodFor rebuilds the method used for the last charge, for renewals.
func (s *Subscription) PaymentMethodFor() (payment.Method, error) {
	switch s.PaymentMethod {
	case payment.KindCard:
		return payment.CardMethod{Email: s.Email}, nil
	case payment.KindMTN, payment.KindAirtel:
		phone := ""
		if s.PaymentDetails != nil {
			phone = s.PaymentDetails.PhoneNumber
		}
		return payment.ParseMethod(s.PaymentMethod, payment.Details{PhoneNumber: phone})
	}
	return nil, payment.ErrInvalidMethod
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
