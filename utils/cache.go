package utils

import (
	"context"
	"strconv"
	"time"
)

const (
	balanceKeyPrefix = "cache:balance:"
	balanceCacheTTL  = time.Hour
)

// CachedBalance returns a cached token balance from Redis.
func CachedBalance(userID uint) (int64, bool) {
	rc := GetRedis()
	if rc == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := rc.Get(ctx, balanceKey(userID)).Int64()
	if err != nil {
		if Sugar != nil {
			Sugar.Debugf("balance cache miss user=%d err=%v", userID, err)
		}
		return 0, false
	}
	return v, true
}

// CacheBalance stores a balance read for fast repeated lookups. The ledger
// invalidates it on every apply, so the TTL is just a backstop.
func CacheBalance(userID uint, balance int64) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Set(ctx, balanceKey(userID), balance, balanceCacheTTL).Err(); err != nil {
		if Sugar != nil {
			Sugar.Warnf("balance cache set failed user=%d err=%v", userID, err)
		}
	}
}

// InvalidateBalance drops the cached balance after a mutation.
func InvalidateBalance(userID uint) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = rc.Del(ctx, balanceKey(userID)).Err()
}

// InvalidateAllBalances drops every cached balance, used after a restore
// replaces ledger state wholesale. Uses SCAN to avoid blocking Redis.
func InvalidateAllBalances() {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var cursor uint64
	for {
		keys, next, err := rc.Scan(ctx, cursor, balanceKeyPrefix+"*", 100).Result()
		if err != nil {
			if Sugar != nil {
				Sugar.Warnf("balance cache scan failed: %v", err)
			}
			return
		}
		if len(keys) > 0 {
			_ = rc.Del(ctx, keys...).Err()
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func balanceKey(userID uint) string {
	return balanceKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}
