package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitle/pkg/logger"
)

type ctxKey struct{}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNew(t *testing.T) {
	t.Run("context values are attached", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithContextValue("request_id", ctxKey{}),
		)

		ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
		log.InfoContext(ctx, "payment confirmed", logger.UserID("u1"), logger.TransactionID("tx-1"))

		rec := decode(t, &buf)
		assert.Equal(t, "req-1", rec["request_id"])
		assert.Equal(t, "u1", rec["user_id"])
		assert.Equal(t, "tx-1", rec["transaction_id"])
	})

	t.Run("environment defaults", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithEnvironment("production", "entitle"))

		log.Debug("hidden")
		assert.Zero(t, buf.Len())

		log.Info("shown")
		rec := decode(t, &buf)
		assert.Equal(t, "entitle", rec["service"])
		assert.Equal(t, "production", rec["env"])
	})

	t.Run("level name", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevelName("warn"))
		log.Info("dropped")
		assert.Zero(t, buf.Len())
		log.Warn("kept")
		assert.NotZero(t, buf.Len())
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
	})
}

func TestAttrs(t *testing.T) {
	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)
	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.Equal(t, "provider", logger.Provider("mtn_momo").Key)
}
