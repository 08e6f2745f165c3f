package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserLoginKey returns the cache key tracking a user's active login session.
func (r *CacheKeyStruct) UserLoginKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// SessionDeadlineKey returns the cache key for a running session's deadline.
// Stored as a Unix timestamp when the session starts so the timer worker and
// remaining-time reads avoid a DB round trip.
func (r *CacheKeyStruct) SessionDeadlineKey(sessionID string) string {
	return fmt.Sprintf("session:%s:deadline", sessionID)
}

var CacheKey = NewCacheKeyStruct()
