// Package ratelimiter limits requests per client with a fixed window counter.
//
// A Limiter counts hits per key in windows of fixed length. Counters live in a
// Store: MemoryStore keeps them in process and evicts expired windows in the
// background, RedisStore keeps them in Redis with a TTL so every replica
// shares the same budget and nothing grows without bound.
//
// Middleware applies a Limiter to HTTP requests, sets the X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset headers and answers 429 with
// Retry-After once the window is exhausted.
package ratelimiter
