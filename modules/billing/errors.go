package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/entitle/handler"
	"github.com/dmitrymomot/entitle/pkg/jwt"
	"github.com/dmitrymomot/entitle/svc/confirmation"
	"github.com/dmitrymomot/entitle/svc/entitlement"
	"github.com/dmitrymomot/entitle/svc/payment"
	"github.com/dmitrymomot/entitle/svc/plan"
	"github.com/dmitrymomot/entitle/svc/subscription"
	"github.com/dmitrymomot/entitle/svc/usage"
)

var (
	errSubscriptionNotFound = handler.NewHTTPError(http.StatusNotFound, "subscription_not_found", "No subscription exists for this account")
	errPlanNotFound         = handler.NewHTTPError(http.StatusNotFound, "plan_not_found", "Unknown plan")
	errUnknownTransaction   = handler.NewHTTPError(http.StatusNotFound, "unknown_transaction", "No such transaction for this account")
	errInvalidTransition    = handler.NewHTTPError(http.StatusConflict, "invalid_transition", "The subscription cannot make this change in its current state")
	errAlreadyExists        = handler.NewHTTPError(http.StatusConflict, "subscription_exists", "A subscription already exists for this account")
	errInvalidCycle         = handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_billing_cycle", "Billing cycle must be monthly or yearly")
	errMissingMethod        = handler.NewHTTPError(http.StatusUnprocessableEntity, "payment_method_required", "Paid plans need a payment method")
	errInvalidMethod        = handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_payment_method", "The payment method details are invalid")
	errInvalidPhone         = handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_phone_number", "The phone number is invalid")
	errInvalidCharge        = handler.NewHTTPError(http.StatusUnprocessableEntity, "currency_not_supported", "This payment method cannot collect the plan's currency")
	errMethodUnavailable    = handler.NewHTTPError(http.StatusUnprocessableEntity, "payment_method_unavailable", "This payment method is not available")
	errUnknownMetric        = handler.NewHTTPError(http.StatusNotFound, "unknown_metric", "Unknown usage metric")
	errInvalidAmount        = handler.NewHTTPError(http.StatusUnprocessableEntity, "invalid_amount", "Amount must be positive")
	errLimitExceeded        = handler.NewHTTPError(http.StatusForbidden, "limit_exceeded", "Usage limit reached for the current period")
	errAdmissionUnavailable = handler.NewHTTPError(http.StatusServiceUnavailable, "admission_unavailable", "Usage cannot be admitted right now, try again later")
	errPaymentRejected      = handler.NewHTTPError(http.StatusPaymentRequired, "payment_rejected", "The payment provider declined the charge")
	errProviderUnavailable  = handler.NewHTTPError(http.StatusServiceUnavailable, "payment_provider_unavailable", "The payment provider is unavailable, try again later")
	errTokenExpired         = handler.NewHTTPError(http.StatusUnauthorized, "token_expired", "Access token has expired")
	errInvalidSignature     = handler.NewHTTPError(http.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
	errMalformedWebhook     = handler.NewHTTPError(http.StatusBadRequest, "malformed_webhook", "Webhook payload could not be read")
	errWebhookTooLarge      = handler.NewHTTPError(http.StatusRequestEntityTooLarge, "payload_too_large", "Webhook payload is too large")
	errRateLimited          = handler.NewHTTPError(http.StatusTooManyRequests, "rate_limited", "Too many requests, slow down")
)

// ErrorMapper translates billing domain errors into HTTP errors. Storage and
// unclassified failures fall through to the generic internal error.
func ErrorMapper(err error) (*handler.HTTPError, bool) {
	var le *entitlement.LimitError
	if errors.As(err, &le) {
		return errLimitExceeded.Wrap(err).WithDetails(map[string]any{
			"metric":    le.Metric,
			"limit":     le.Limit,
			"remaining": le.Remaining,
			"reason":    le.Reason,
		}), true
	}

	var he *handler.HTTPError
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		he = errSubscriptionNotFound
	case errors.Is(err, subscription.ErrAlreadyExists):
		he = errAlreadyExists
	case errors.Is(err, subscription.ErrInvalidTransition):
		he = errInvalidTransition
	case errors.Is(err, subscription.ErrUnknownTransaction), errors.Is(err, payment.ErrTransactionNotFound):
		he = errUnknownTransaction
	case errors.Is(err, subscription.ErrInvalidCycle):
		he = errInvalidCycle
	case errors.Is(err, subscription.ErrMissingMethod):
		he = errMissingMethod
	case errors.Is(err, plan.ErrPlanNotFound):
		he = errPlanNotFound
	case errors.Is(err, payment.ErrInvalidPhoneNumber):
		he = errInvalidPhone
	case errors.Is(err, payment.ErrInvalidMethod):
		he = errInvalidMethod
	case errors.Is(err, payment.ErrInvalidCharge):
		he = errInvalidCharge
	case errors.Is(err, payment.ErrProviderNotConfigured):
		he = errMethodUnavailable
	case errors.Is(err, payment.ErrPaymentRejected):
		he = errPaymentRejected
	case errors.Is(err, payment.ErrProviderUnavailable), errors.Is(err, payment.ErrAuthentication):
		he = errProviderUnavailable
	case errors.Is(err, usage.ErrUnknownMetric):
		he = errUnknownMetric
	case errors.Is(err, usage.ErrInvalidAmount):
		he = errInvalidAmount
	case errors.Is(err, entitlement.ErrReserverFailure):
		he = errAdmissionUnavailable
	case errors.Is(err, jwt.ErrExpiredToken):
		he = errTokenExpired
	case errors.Is(err, jwt.ErrMissingToken), errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrMissingSubject):
		he = handler.ErrUnauthorized
	case errors.Is(err, confirmation.ErrInvalidSignature):
		he = errInvalidSignature
	case errors.Is(err, confirmation.ErrPayloadTooLarge):
		he = errWebhookTooLarge
	case errors.Is(err, confirmation.ErrMalformedPayload), errors.Is(err, confirmation.ErrMissingReference):
		he = errMalformedWebhook
	default:
		return nil, false
	}
	return he.Wrap(err), true
}
