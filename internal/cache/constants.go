package cache

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// key names definition
// key names in lua scripts should follow these formats
const (
	// SeatLockKey guards one showtime seat. The value is the owning
	// lock's token; the key's TTL is the lock's TTL.
	SeatLockKey = "lock:seat:%d:%d" // first '%d' is showtime id, second '%d' is showtime seat id
)

func MakeSeatLockKey(showtimeID, showtimeSeatID uint) string {
	return fmt.Sprintf("lock:seat:%d:%d", showtimeID, showtimeSeatID)
}

// lua scripts
// Redis executes each script atomically, which is what makes the
// multi-seat operations all-or-nothing with no partial application
// visible to concurrent callers.

// lockSeatsScript reserves every key or none. Returns the (1-based)
// indices of blocked keys, empty on success.
var lockSeatsScript = redis.NewScript(`
	-- KEYS    = one seat lock key per requested seat
	-- ARGV[1] = lock token
	-- ARGV[2] = ttl in milliseconds

	local blocked = {}
	for i = 1, #KEYS do
		if redis.call("EXISTS", KEYS[i]) == 1 then
			blocked[#blocked + 1] = i
		end
	end
	if #blocked > 0 then
		return blocked
	end

	for i = 1, #KEYS do
		redis.call("SET", KEYS[i], ARGV[1], "PX", tonumber(ARGV[2]))
	end
	return {}
`)

// releaseSeatsScript deletes only keys still owned by the token, so a
// stale release can never free a seat relocked by someone else. Returns
// the (1-based) indices of keys that are free afterwards: keys this token
// owned and deleted, and keys that had already expired. A key holding
// another token is not free and its index is withheld, which is how the
// caller knows not to touch that seat's durable state.
var releaseSeatsScript = redis.NewScript(`
	-- KEYS    = seat lock keys
	-- ARGV[1] = lock token

	local freed = {}
	for i = 1, #KEYS do
		local owner = redis.call("GET", KEYS[i])
		if owner == ARGV[1] then
			redis.call("DEL", KEYS[i])
			freed[#freed + 1] = i
		elseif owner == false then
			freed[#freed + 1] = i
		end
	end
	return freed
`)

// extendSeatsScript resets the TTL of all keys, but only if the token
// still owns every one of them.
var extendSeatsScript = redis.NewScript(`
	-- KEYS    = seat lock keys
	-- ARGV[1] = lock token
	-- ARGV[2] = new ttl in milliseconds

	for i = 1, #KEYS do
		if redis.call("GET", KEYS[i]) ~= ARGV[1] then
			return 0
		end
	end
	for i = 1, #KEYS do
		redis.call("PEXPIRE", KEYS[i], tonumber(ARGV[2]))
	end
	return 1
`)

// confirmSeatsScript consumes the lock: it verifies the token still owns
// every key and deletes them in the same atomic step. A promote racing
// the expiry sweep resolves here; exactly one of the two wins.
var confirmSeatsScript = redis.NewScript(`
	-- KEYS    = seat lock keys
	-- ARGV[1] = lock token

	for i = 1, #KEYS do
		if redis.call("GET", KEYS[i]) ~= ARGV[1] then
			return 0
		end
	end
	for i = 1, #KEYS do
		redis.call("DEL", KEYS[i])
	end
	return 1
`)
