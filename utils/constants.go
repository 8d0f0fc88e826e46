package utils

import (
	"time"
)

// Dispatch constants
const (
	// DefaultMaxRetries is applied when a message carries no explicit retry budget
	DefaultMaxRetries = 3

	// DefaultProviderTimeout bounds a single provider send call
	DefaultProviderTimeout = 30 * time.Second

	// DefaultSweepInterval is the scheduler polling interval
	DefaultSweepInterval = 15 * time.Second

	// DefaultSweepBatchSize is how many due messages one sweep claims
	DefaultSweepBatchSize = 200

	// MessageLockTTL is the Redis lock lifetime for one dispatch cycle.
	// Must exceed the provider timeout plus persistence overhead.
	MessageLockTTL = 2 * time.Minute

	// StaleSendingAfter is how long a message may sit in Sending before a
	// sweep requeues it as a crashed cycle. Must exceed MessageLockTTL so an
	// in-flight cycle is never requeued under its owner.
	StaleSendingAfter = 3 * MessageLockTTL

	// MessageLockPrefix namespaces per-message dispatch locks in Redis
	MessageLockPrefix = "courier:lock:message:"

	// CampaignPausePrefix namespaces campaign pause flags in Redis
	CampaignPausePrefix = "courier:pause:campaign:"
)

// Backoff bounds, used when a routing config carries no explicit delays
const (
	DefaultInitialRetryDelay = 30 * time.Second
	DefaultMaxRetryDelay     = 1 * time.Hour
)
