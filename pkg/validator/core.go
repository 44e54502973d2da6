package validator

import (
	"errors"
	"strings"
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Message string
}

// Errors collects the failures of one Apply call in rule order.
type Errors []FieldError

func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed at least one rule.
func (ve Errors) Has(field string) bool {
	for _, e := range ve {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Fields groups messages by field.
func (ve Errors) Fields() map[string][]string {
	out := make(map[string][]string, len(ve))
	for _, e := range ve {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// Rule is a single check.
type Rule struct {
	Check func() bool
	Error FieldError
}

// Optional skips the rule when skip is true, typically for absent values.
func (r Rule) Optional(skip bool) Rule {
	if !skip {
		return r
	}
	r.Check = func() bool { return true }
	return r
}

// Apply runs every rule and returns Errors when any fails.
func Apply(rules ...Rule) error {
	var errs Errors
	for _, r := range rules {
		if !r.Check() {
			errs = append(errs, r.Error)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Extract returns the Errors inside err, or nil.
func Extract(err error) Errors {
	var ve Errors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
