package tokenstore

import (
	"sync"
	"time"
)

// in-memory token revocation store. Entries are dropped once the token
// would have expired anyway.
var (
	mu            sync.RWMutex
	revokedTokens = map[string]time.Time{}
)

// RevokeToken blocks jti until until. A zero until keeps it for a day.
func RevokeToken(jti string, until time.Time) {
	if jti == "" {
		return
	}
	now := time.Now()
	if until.IsZero() {
		until = now.Add(24 * time.Hour)
	}
	mu.Lock()
	defer mu.Unlock()
	revokedTokens[jti] = until
	for k, exp := range revokedTokens {
		if exp.Before(now) {
			delete(revokedTokens, k)
		}
	}
}

func IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	exp, ok := revokedTokens[jti]
	return ok && time.Now().Before(exp)
}
