package plan

import "errors"

var (
	ErrPlanNotFound     = errors.New("plan: not found")
	ErrInvalidPlan      = errors.New("plan: invalid definition")
	ErrDuplicatePlan    = errors.New("plan: duplicate id")
	ErrUnknownCurrency  = errors.New("plan: unknown currency")
	ErrFailedToReadFile = errors.New("plan: failed to read catalog file")
)
