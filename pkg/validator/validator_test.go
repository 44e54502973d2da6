package validator_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/validator"
)

type cycle string

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("all rules pass", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.Required("planId", "professional"),
			validator.OneOf("billingCycle", cycle("yearly"), "monthly", "yearly"),
			validator.NonNegative("amount", int64(0)),
			validator.Max("amount", 5, 10),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure in order", func(t *testing.T) {
		t.Parallel()
		err := validator.Apply(
			validator.Required("planId", "  "),
			validator.OneOf("billingCycle", cycle("weekly"), "monthly", "yearly"),
			validator.NonNegative("amount", -1),
			validator.MaxEntries("attributes", map[string]string{"a": "1", "b": "2"}, 1),
			validator.MaxLength("note", "héllo", 4),
		)
		require.Error(t, err)

		ve := validator.Extract(fmt.Errorf("bind: %w", err))
		require.Len(t, ve, 5)
		assert.Equal(t, "planId", ve[0].Field)
		assert.True(t, ve.Has("billingCycle"))
		assert.False(t, ve.Has("email"))
		assert.Equal(t, []string{"must not be negative"}, ve.Fields()["amount"])
		assert.Contains(t, err.Error(), "planId: is required")
	})

	t.Run("optional rule is skipped", func(t *testing.T) {
		t.Parallel()
		var empty cycle
		err := validator.Apply(validator.OneOf("billingCycle", empty, "monthly", "yearly").Optional(empty == ""))
		assert.NoError(t, err)
	})
}

func TestExtract_NotValidation(t *testing.T) {
	t.Parallel()
	assert.Nil(t, validator.Extract(assert.AnError))
	assert.Nil(t, validator.Extract(nil))
}
