package domain

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service"
)

// memLocker is an in-memory SeatLocker with the same semantics as the
// Lua scripts: one mutex per store stands in for Redis executing each
// script atomically. LockSeats grants all keys or none; ReleaseSeats
// only frees keys the token owns and reports keys that are free
// afterwards; ExtendSeats and ConfirmSeats verify full ownership.
type memKey struct {
	showtimeID uint
	seatID     uint
}

type memLocker struct {
	mu     sync.Mutex
	tokens map[memKey]string
}

func newMemLocker() *memLocker {
	return &memLocker{tokens: map[memKey]string{}}
}

func (l *memLocker) LockSeats(ctx context.Context, showtimeID uint, seatIDs []uint, token string, ttl time.Duration) ([]uint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var blocked []uint
	for _, id := range seatIDs {
		if _, held := l.tokens[memKey{showtimeID, id}]; held {
			blocked = append(blocked, id)
		}
	}
	if len(blocked) > 0 {
		return blocked, nil
	}
	for _, id := range seatIDs {
		l.tokens[memKey{showtimeID, id}] = token
	}
	return nil, nil
}

func (l *memLocker) ReleaseSeats(ctx context.Context, showtimeID uint, seatIDs []uint, token string) ([]uint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var freed []uint
	for _, id := range seatIDs {
		key := memKey{showtimeID, id}
		owner, held := l.tokens[key]
		switch {
		case held && owner == token:
			delete(l.tokens, key)
			freed = append(freed, id)
		case !held:
			freed = append(freed, id)
		}
	}
	return freed, nil
}

func (l *memLocker) ExtendSeats(ctx context.Context, showtimeID uint, seatIDs []uint, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range seatIDs {
		if l.tokens[memKey{showtimeID, id}] != token {
			return false, nil
		}
	}
	return true, nil
}

func (l *memLocker) ConfirmSeats(ctx context.Context, showtimeID uint, seatIDs []uint, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range seatIDs {
		if l.tokens[memKey{showtimeID, id}] != token {
			return false, nil
		}
	}
	for _, id := range seatIDs {
		delete(l.tokens, memKey{showtimeID, id})
	}
	return true, nil
}

// expireToken drops every key the token owns, as the TTL would.
func (l *memLocker) expireToken(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, owner := range l.tokens {
		if owner == token {
			delete(l.tokens, key)
		}
	}
}

type contentionFixture struct {
	db     *gorm.DB
	locker *memLocker
	svc    *seatLockService
}

// newContentionFixture wires the real service and gorm repositories over
// an in-memory database, with memLocker standing in for the lock store.
func newContentionFixture(t *testing.T, seatCount int) (*contentionFixture, uint, []uint) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every transaction on the same in-memory
	// database and serializes sqlite writers.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Room{},
		&model.Seat{},
		&model.Showtime{},
		&model.ShowtimeSeat{},
		&model.SeatLock{},
		&model.SeatLockSeat{},
	))

	room := &model.Room{CinemaID: 1, Name: "R1", RoomType: "STANDARD"}
	require.NoError(t, db.Create(room).Error)
	showtime := &model.Showtime{
		MovieID: 1,
		RoomID:  room.ID,
		StartAt: time.Date(2026, 9, 5, 19, 0, 0, 0, time.UTC),
		Format:  "2D",
	}
	require.NoError(t, db.Create(showtime).Error)

	seatIDs := make([]uint, 0, seatCount)
	for i := 0; i < seatCount; i++ {
		seat := &model.Seat{RoomID: room.ID, RowLabel: "A", SeatNumber: i + 1, SeatType: "NORMAL"}
		require.NoError(t, db.Create(seat).Error)
		showtimeSeat := &model.ShowtimeSeat{
			ShowtimeID: showtime.ID,
			SeatID:     seat.ID,
			Status:     model.SeatAvailable,
		}
		require.NoError(t, db.Create(showtimeSeat).Error)
		seatIDs = append(seatIDs, showtimeSeat.ID)
	}

	locker := newMemLocker()
	svc := NewSeatLockService(
		db, locker,
		repository.NewShowtimeRepoGorm(db),
		repository.NewShowtimeSeatRepoGorm(db),
		repository.NewSeatLockRepoGorm(db),
		&fakePricing{rules: standardRules()},
		zap.NewNop(), 10*time.Minute)
	svc.now = func() time.Time { return lockTestNow }

	return &contentionFixture{db: db, locker: locker, svc: svc}, showtime.ID, seatIDs
}

// Many sessions race for random overlapping seat sets. Every contested
// seat must go to exactly one session, every loser must see
// SeatLockedError, and no lock may be applied partially in either the
// lock store or the database.
func TestTryLock_ConcurrentSessions_OneWinnerPerSeat(t *testing.T) {
	f, showtimeID, seatIDs := newContentionFixture(t, 12)

	const sessions = 64
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	requests := make([][]uint, sessions)
	for i := range requests {
		n := 1 + rng.Intn(3)
		perm := rng.Perm(len(seatIDs))
		req := make([]uint, 0, n)
		for _, p := range perm[:n] {
			req = append(req, seatIDs[p])
		}
		requests[i] = req
	}

	type outcome struct {
		lock *model.SeatLock
		err  error
	}
	outcomes := make([]outcome, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := service.ForGuest(fmt.Sprintf("guest-%d", i))
			lock, err := f.svc.TryLock(context.Background(), sess, showtimeID, requests[i])
			outcomes[i] = outcome{lock: lock, err: err}
		}(i)
	}
	wg.Wait()

	granted := map[uint]string{}
	wantSeats := map[string]int{}
	winners := 0
	for i, out := range outcomes {
		if out.err != nil {
			var locked *service.SeatLockedError
			require.ErrorAs(t, out.err, &locked, "session %d failed for another reason", i)
			continue
		}
		winners++
		require.Len(t, out.lock.Seats, len(requests[i]), "session %d got a partial lock", i)
		wantSeats[out.lock.LockOwnerID] = len(requests[i])
		for _, lockSeat := range out.lock.Seats {
			owner, taken := granted[lockSeat.ShowtimeSeatID]
			assert.Falsef(t, taken, "seat %d granted to both %s and %s",
				lockSeat.ShowtimeSeatID, owner, out.lock.LockOwnerID)
			granted[lockSeat.ShowtimeSeatID] = out.lock.LockOwnerID
		}
	}
	require.Positive(t, winners, "at least one session must win")

	// The durable state agrees with the grants: exactly the granted
	// seats are LOCKED, and every lock row covers its full request.
	var lockedSeats []model.ShowtimeSeat
	require.NoError(t, f.db.Where("status = ?", model.SeatLocked).Find(&lockedSeats).Error)
	assert.Len(t, lockedSeats, len(granted))
	for _, seat := range lockedSeats {
		assert.Contains(t, granted, seat.ID)
	}

	var lockRows []model.SeatLock
	require.NoError(t, f.db.Preload("Seats").Find(&lockRows).Error)
	assert.Len(t, lockRows, winners)
	for _, row := range lockRows {
		assert.True(t, row.Active)
		assert.Len(t, row.Seats, wantSeats[row.LockOwnerID], "owner %s has a partial lock row", row.LockOwnerID)
	}
}

// A seat whose key expired in the lock store can be relocked by a new
// session while the old lock row is still active. Sweeping the old lock
// must not free the relocked seat.
func TestCleanupExpiredLocks_KeepsSeatRelockedAfterExpiry(t *testing.T) {
	f, showtimeID, seatIDs := newContentionFixture(t, 2)
	ctx := context.Background()
	seatID := seatIDs[0]

	current := lockTestNow
	f.svc.now = func() time.Time { return current }

	lockA, err := f.svc.TryLock(ctx, service.ForGuest("guest-a"), showtimeID, []uint{seatID})
	require.NoError(t, err)

	// The key lapses before the sweep runs and another session takes
	// the seat over.
	f.locker.expireToken(lockA.LockKey)
	current = current.Add(11 * time.Minute)

	lockB, err := f.svc.TryLock(ctx, service.ForGuest("guest-b"), showtimeID, []uint{seatID})
	require.NoError(t, err)

	cleaned, err := f.svc.CleanupExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	var sweptLock model.SeatLock
	require.NoError(t, f.db.First(&sweptLock, lockA.ID).Error)
	assert.False(t, sweptLock.Active)

	var seat model.ShowtimeSeat
	require.NoError(t, f.db.First(&seat, seatID).Error)
	assert.Equal(t, model.SeatLocked, seat.Status, "sweep of the stale lock freed the relocked seat")

	// The survivor still holds the seat end to end.
	promoted, err := f.svc.PromoteToBooked(ctx, service.ForGuest("guest-b"), lockB.ID)
	require.NoError(t, err)
	assert.False(t, promoted.Active)
	require.NoError(t, f.db.First(&seat, seatID).Error)
	assert.Equal(t, model.SeatBooked, seat.Status)
}

// Even when the stale lock's keys are simply gone from the store, a seat
// referenced by another active lock row must not be reset by the sweep.
func TestCleanupExpiredLocks_LeavesSeatsOfOtherActiveLocks(t *testing.T) {
	f, showtimeID, seatIDs := newContentionFixture(t, 2)
	ctx := context.Background()
	seatID := seatIDs[0]

	current := lockTestNow
	f.svc.now = func() time.Time { return current }

	lockA, err := f.svc.TryLock(ctx, service.ForGuest("guest-a"), showtimeID, []uint{seatID})
	require.NoError(t, err)
	f.locker.expireToken(lockA.LockKey)
	current = current.Add(11 * time.Minute)

	lockB, err := f.svc.TryLock(ctx, service.ForGuest("guest-b"), showtimeID, []uint{seatID})
	require.NoError(t, err)
	// B's key lapses too, so the sweep sees the seat as free in the
	// store while B's lock row is still active.
	f.locker.expireToken(lockB.LockKey)

	cleaned, err := f.svc.CleanupExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	var seat model.ShowtimeSeat
	require.NoError(t, f.db.First(&seat, seatID).Error)
	assert.Equal(t, model.SeatLocked, seat.Status)
}

// Seats nobody relocked after the keys lapsed go back to the pool.
func TestCleanupExpiredLocks_FreesSeatsNobodyRelocked(t *testing.T) {
	f, showtimeID, seatIDs := newContentionFixture(t, 2)
	ctx := context.Background()

	current := lockTestNow
	f.svc.now = func() time.Time { return current }

	lock, err := f.svc.TryLock(ctx, service.ForGuest("guest-a"), showtimeID, seatIDs)
	require.NoError(t, err)

	f.locker.expireToken(lock.LockKey)
	current = current.Add(11 * time.Minute)

	cleaned, err := f.svc.CleanupExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	var seats []model.ShowtimeSeat
	require.NoError(t, f.db.Where("id IN ?", seatIDs).Find(&seats).Error)
	require.Len(t, seats, 2)
	for _, seat := range seats {
		assert.Equal(t, model.SeatAvailable, seat.Status)
	}
}
