// Package logger builds slog loggers for the service.
//
// New returns a *slog.Logger whose handler is wrapped by LogHandlerDecorator,
// so request-scoped values (request id, authenticated user) registered through
// WithContextExtractors or WithContextValue are attached to every record that
// is logged with a context:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "entitle"),
//		logger.WithContextValue("request_id", requestIDKey),
//	)
//	log.InfoContext(ctx, "payment confirmed", logger.UserID(id), logger.TransactionID(tx))
//
// The attribute helpers in attr.go keep key names identical across packages.
package logger
