// Package validator checks request values with composable rules.
//
// A Rule pairs a check with the field error it reports. Apply runs every rule
// and collects the failures into Errors:
//
//	err := validator.Apply(
//	    validator.Required("plan", req.PlanID),
//	    validator.OneOf("billingCycle", req.BillingCycle, plan.Monthly, plan.Yearly).Optional(req.BillingCycle == ""),
//	    validator.NonNegative("amount", req.Amount),
//	)
//
// Errors implements error, so it travels through handlers unchanged and is
// rendered by the HTTP layer as a field-to-messages map.
package validator
