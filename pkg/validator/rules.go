package validator

import (
	"fmt"
	"slices"
	"strings"
)

type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Required fails for blank strings.
func Required[T ~string](field string, value T) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(string(value)) != "" },
		Error: FieldError{Field: field, Message: "is required"},
	}
}

// OneOf fails unless value is one of allowed.
func OneOf[T comparable](field string, value T, allowed ...T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: FieldError{Field: field, Message: fmt.Sprintf("must be one of %v", allowed)},
	}
}

// NonNegative fails for values below zero.
func NonNegative[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool { return value >= 0 },
		Error: FieldError{Field: field, Message: "must not be negative"},
	}
}

// Max fails for values above limit.
func Max[T Numeric](field string, value, limit T) Rule {
	return Rule{
		Check: func() bool { return value <= limit },
		Error: FieldError{Field: field, Message: fmt.Sprintf("must be at most %v", limit)},
	}
}

// MaxEntries fails for maps with more than limit keys.
func MaxEntries[K comparable, V any](field string, m map[K]V, limit int) Rule {
	return Rule{
		Check: func() bool { return len(m) <= limit },
		Error: FieldError{Field: field, Message: fmt.Sprintf("must have at most %d entries", limit)},
	}
}

// MaxLength fails for strings longer than limit runes.
func MaxLength[T ~string](field string, value T, limit int) Rule {
	return Rule{
		Check: func() bool { return len([]rune(string(value))) <= limit },
		Error: FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", limit)},
	}
}
