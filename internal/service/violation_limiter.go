package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
)

const (
	violationWindow        = time.Second
	limiterPurgeInterval   = 10 * time.Second
	limiterEntryStaleAfter = 10 * time.Second
)

// RateLimitedError tells the client how long to back off.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("violation reports limited, retry after %s", e.RetryAfter)
}

// ViolationLimiter throttles violation reports per (attempt, violation type)
// pair. A stuck client firing WINDOW_BLUR in a loop would otherwise flood
// the attempt log and the teacher dashboards; one event per second per type
// preserves the signal.
type ViolationLimiter struct {
	mu           sync.Mutex
	lastAccepted map[limiterKey]time.Time
}

type limiterKey struct {
	attemptID     uuid.UUID
	violationType model.ViolationType
}

// NewViolationLimiter creates a limiter. Run Start in its own goroutine to
// keep the entry map from pinning finished attempts.
func NewViolationLimiter() *ViolationLimiter {
	return &ViolationLimiter{
		lastAccepted: make(map[limiterKey]time.Time),
	}
}

// Start runs the purge loop until ctx is cancelled.
func (vl *ViolationLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(limiterPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			vl.purge(now)
		}
	}
}

// Allow reports whether a violation of the given type may be recorded for
// the attempt right now. Acceptance updates the window.
func (vl *ViolationLimiter) Allow(attemptID uuid.UUID, violationType model.ViolationType) error {
	return vl.allowAt(limiterKey{attemptID: attemptID, violationType: violationType}, time.Now())
}

func (vl *ViolationLimiter) allowAt(key limiterKey, now time.Time) error {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	if last, ok := vl.lastAccepted[key]; ok {
		if elapsed := now.Sub(last); elapsed < violationWindow {
			return &RateLimitedError{RetryAfter: violationWindow - elapsed}
		}
	}
	vl.lastAccepted[key] = now
	return nil
}

func (vl *ViolationLimiter) purge(now time.Time) {
	vl.mu.Lock()
	defer vl.mu.Unlock()
	for key, last := range vl.lastAccepted {
		if now.Sub(last) > limiterEntryStaleAfter {
			delete(vl.lastAccepted, key)
		}
	}
}
