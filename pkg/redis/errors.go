package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("redis: failed to parse connection string")
	ErrRedisNotReady                = errors.New("redis: not ready within the connect timeout")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
)
