package cache

import "time"

// Small distributed lock on top of SET NX EX. Used to keep exactly one
// reconciliation sweep running across processes; the TTL bounds how long a
// crashed holder can block the next sweep.

// AcquireLock tries to take the named lock for ttl. Returns false when
// another holder has it.
func AcquireLock(key string, ttl time.Duration) (bool, error) {
	return GetClient().SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLock drops the named lock.
func ReleaseLock(key string) error {
	return GetClient().Del(ctx, key).Err()
}
