package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// InFlightKey is the idempotency key guarding one (keyword, engine) scan
// window. While it exists, overlapping scheduler ticks must not enqueue a
// second job for the pair.
func InFlightKey(keywordID uuid.UUID, engine string) string {
	return fmt.Sprintf("recurring-%s-%s", keywordID, engine)
}

// SchedulerLockKey is the leader lock taken for one scheduler tick.
func SchedulerLockKey() string {
	return "scheduler:tick:lock"
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// LatestResultKey caches the newest scan result for a keyword+engine pair.
func LatestResultKey(keywordID uuid.UUID, engine string) string {
	return fmt.Sprintf("result:latest:%s:%s", keywordID, engine)
}
