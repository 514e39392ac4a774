package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisCache struct {
	Client *redis.Client
}

func NewRedisCache(url string) (*RedisCache, error) {
	client := redis.NewClient(
		&redis.Options{
			Addr:     url,
			Password: "",
			DB:       0,
		},
	)
	redisCache := &RedisCache{Client: client}

	return redisCache, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

/*
* seat locks of a showtime
 */

// LockSeats reserves all the given seats for the token, or none of them.
// It returns the ids of the seats that blocked the request; an empty
// slice means every seat was locked.
func (r *RedisCache) LockSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string, ttl time.Duration) ([]uint, error) {
	keys := makeSeatLockKeys(showtimeID, showtimeSeatIDs)
	res, err := lockSeatsScript.Run(ctx, r.Client, keys, token, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, err
	}
	return seatIDsFromIndices(res, showtimeSeatIDs)
}

// ReleaseSeats deletes the seat keys still owned by the token and returns
// the ids of the seats whose keys are free afterwards (deleted here or
// already expired). Idempotent: a key relocked by another token is left
// alone and its seat id is not reported.
func (r *RedisCache) ReleaseSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string) ([]uint, error) {
	keys := makeSeatLockKeys(showtimeID, showtimeSeatIDs)
	res, err := releaseSeatsScript.Run(ctx, r.Client, keys, token).Result()
	if err != nil {
		return nil, err
	}
	return seatIDsFromIndices(res, showtimeSeatIDs)
}

// ExtendSeats resets the TTL on every seat key of the lock. Returns false
// if the token no longer owns all of them (the lock already expired).
func (r *RedisCache) ExtendSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string, ttl time.Duration) (bool, error) {
	keys := makeSeatLockKeys(showtimeID, showtimeSeatIDs)
	res, err := extendSeatsScript.Run(ctx, r.Client, keys, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ConfirmSeats atomically verifies the token still owns every seat key
// and consumes them. Returns false if any key expired or changed hands,
// in which case nothing is consumed.
func (r *RedisCache) ConfirmSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string) (bool, error) {
	keys := makeSeatLockKeys(showtimeID, showtimeSeatIDs)
	res, err := confirmSeatsScript.Run(ctx, r.Client, keys, token).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// seatIDsFromIndices maps a script's (1-based) key indices back onto the
// seat ids the keys were built from.
func seatIDsFromIndices(res interface{}, showtimeSeatIDs []uint) ([]uint, error) {
	indices, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected seat lock script result: %T", res)
	}

	ids := make([]uint, 0, len(indices))
	for _, idx := range indices {
		i, ok := idx.(int64)
		if !ok || i < 1 || int(i) > len(showtimeSeatIDs) {
			return nil, fmt.Errorf("unexpected seat lock script index: %v", idx)
		}
		ids = append(ids, showtimeSeatIDs[i-1])
	}
	return ids, nil
}

func makeSeatLockKeys(showtimeID uint, showtimeSeatIDs []uint) []string {
	keys := make([]string, 0, len(showtimeSeatIDs))
	for _, seatID := range showtimeSeatIDs {
		keys = append(keys, MakeSeatLockKey(showtimeID, seatID))
	}
	return keys
}
