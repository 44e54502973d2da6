// Package notify emails billing events to subscribers: receipts for confirmed
// payments, notices for initiated renewals and expiry notices after a
// subscription is demoted.
//
// Delivery goes through a Sender. The Postmark sender is used in production;
// when no Postmark token is configured the notifier is simply not wired and
// billing works without email.
package notify
