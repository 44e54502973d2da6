// Package redis connects the go-redis client used for in-flight usage
// reservations, webhook delivery dedupe and distributed rate limiting.
package redis
