package subscription

import (
	"github.com/dmitrymomot/entitle/pkg/statemachine"
)

// Event drives a lifecycle transition.
type Event string

const (
	EventUpgradeFree      Event = "upgrade_free"
	EventUpgradePaid      Event = "upgrade_paid"
	EventRenew            Event = "renew"
	EventPaymentConfirmed Event = "payment_confirmed"
	EventCancel           Event = "cancel"
	EventExpire           Event = "expire"

	EventResumeTrial     Event = "resume_trial"
	EventResumeActive    Event = "resume_active"
	EventResumeCancelled Event = "resume_cancelled"
)

// resumeEvents return an abandoned pending charge to the status it interrupted.
var resumeEvents = map[Status]Event{
	StatusTrial:     EventResumeTrial,
	StatusActive:    EventResumeActive,
	StatusCancelled: EventResumeCancelled,
}

// A late confirmation reactivates trial, inactive and cancelled
// subscriptions: the money was collected, so the term is honored.
var lifecycle = statemachine.NewBuilder[Status, Event]().
	Permit(EventUpgradeFree, StatusActive, StatusTrial, StatusActive, StatusInactive, StatusCancelled, StatusPendingPayment).
	Permit(EventUpgradePaid, StatusPendingPayment, StatusTrial, StatusActive, StatusInactive, StatusCancelled, StatusPendingPayment).
	Permit(EventRenew, StatusPendingPayment, StatusTrial, StatusActive, StatusInactive, StatusCancelled, StatusPendingPayment).
	Permit(EventPaymentConfirmed, StatusActive, StatusPendingPayment, StatusTrial, StatusActive, StatusInactive, StatusCancelled).
	Permit(EventCancel, StatusCancelled, StatusTrial, StatusActive, StatusPendingPayment).
	Permit(EventExpire, StatusInactive, StatusTrial, StatusActive, StatusPendingPayment, StatusCancelled).
	Permit(EventResumeTrial, StatusTrial, StatusPendingPayment).
	Permit(EventResumeActive, StatusActive, StatusPendingPayment).
	Permit(EventResumeCancelled, StatusCancelled, StatusPendingPayment).
	MustBuild()

// CanFire reports whether event is permitted from status.
func CanFire(status Status, event Event) bool {
	return lifecycle.CanFire(status, event)
}

// fire moves s to the state reached by event.
func fire(s *Subscription, event Event) (from Status, err error) {
	from = s.Status
	to, err := lifecycle.Next(from, event)
	if err != nil {
		return from, err
	}
	s.Status = to
	return from, nil
}
