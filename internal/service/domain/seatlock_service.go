package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/repository"
	"github.com/qs-lzh/movie-booking/internal/service"
)

// SeatLocker is the atomic multi-seat lock store. All four operations act
// on the whole seat set of one lock at once: either every seat changes
// state or none does. ReleaseSeats reports which seats are actually free
// afterwards; a seat whose key was relocked by another token is withheld.
type SeatLocker interface {
	LockSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string, ttl time.Duration) ([]uint, error)
	ReleaseSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string) ([]uint, error)
	ExtendSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string, ttl time.Duration) (bool, error)
	ConfirmSeats(ctx context.Context, showtimeID uint, showtimeSeatIDs []uint, token string) (bool, error)
}

type SeatLockService interface {
	TryLock(ctx context.Context, sess service.SessionContext, showtimeID uint, showtimeSeatIDs []uint) (*model.SeatLock, error)
	ExtendLock(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error)
	ReleaseLock(ctx context.Context, sess service.SessionContext, lockID uint) error
	PromoteToBooked(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error)
	GetLock(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error)
	ActiveLocks(ctx context.Context, sess service.SessionContext) ([]model.SeatLock, error)
	Availability(ctx context.Context, showtimeID uint) (*SeatMap, error)
	CleanupExpiredLocks(ctx context.Context) (int, error)
}

// SeatMap is the availability surface for one showtime, partitioned by
// seat status. Locked seats carry the price frozen when they were locked;
// available seats carry the last computed quote.
type SeatMap struct {
	ShowtimeID uint
	Available  []model.ShowtimeSeat
	Locked     []model.ShowtimeSeat
	Booked     []model.ShowtimeSeat
}

type seatLockService struct {
	db           *gorm.DB
	locker       SeatLocker
	showtimeRepo repository.ShowtimeRepo
	seatRepo     repository.ShowtimeSeatRepo
	lockRepo     repository.SeatLockRepo
	pricing      PricingService
	logger       *zap.Logger

	ttl time.Duration
	now func() time.Time
}

var _ SeatLockService = (*seatLockService)(nil)

func NewSeatLockService(
	db *gorm.DB,
	locker SeatLocker,
	showtimeRepo repository.ShowtimeRepo,
	seatRepo repository.ShowtimeSeatRepo,
	lockRepo repository.SeatLockRepo,
	pricing PricingService,
	logger *zap.Logger,
	ttl time.Duration,
) *seatLockService {
	return &seatLockService{
		db:           db,
		locker:       locker,
		showtimeRepo: showtimeRepo,
		seatRepo:     seatRepo,
		lockRepo:     lockRepo,
		pricing:      pricing,
		logger:       logger,
		ttl:          ttl,
		now:          time.Now,
	}
}

// TryLock acquires all requested seats for the session or none of them.
// Prices are computed from the active rule snapshot before the lock store
// is touched and frozen on the lock row, so the amount charged at confirm
// is exactly the amount quoted here even if the rules change in between.
func (s *seatLockService) TryLock(ctx context.Context, sess service.SessionContext, showtimeID uint, showtimeSeatIDs []uint) (*model.SeatLock, error) {
	seatIDs := dedupeIDs(showtimeSeatIDs)
	if len(seatIDs) == 0 {
		return nil, &service.NotFoundError{Resource: "showtime seat", Key: showtimeSeatIDs}
	}

	showtime, err := s.showtimeRepo.GetByID(ctx, showtimeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &service.NotFoundError{Resource: "showtime", Key: showtimeID}
		}
		return nil, err
	}

	seats, err := s.seatRepo.GetByIDsAndShowtime(ctx, seatIDs, showtimeID)
	if err != nil {
		return nil, err
	}
	if len(seats) != len(seatIDs) {
		return nil, &service.NotFoundError{Resource: "showtime seat", Key: missingIDs(seatIDs, seats)}
	}

	// Booked seats have no key in the lock store (confirm consumed it),
	// so they must be rejected from the durable state before locking.
	var booked []uint
	for _, seat := range seats {
		if seat.Status == model.SeatBooked {
			booked = append(booked, seat.ID)
		}
	}
	if len(booked) > 0 {
		return nil, &service.SeatLockedError{SeatIDs: booked}
	}

	rules, err := s.pricing.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	roomType := ""
	if showtime.Room != nil {
		roomType = showtime.Room.RoomType
	}

	lock := &model.SeatLock{
		LockKey:       uuid.NewString(),
		LockOwnerID:   sess.LockOwnerID,
		LockOwnerType: sess.LockOwnerType,
		UserID:        sess.UserID,
		ShowtimeID:    showtimeID,
		ExpiresAt:     s.now().Add(s.ttl),
		Active:        true,
	}
	for _, seat := range seats {
		seatType := ""
		if seat.Seat != nil {
			seatType = seat.Seat.SeatType
		}
		quote := rules.Quote(PriceContext{
			StartAt:  showtime.StartAt,
			Format:   showtime.Format,
			RoomType: roomType,
			SeatType: seatType,
		})
		lock.Seats = append(lock.Seats, model.SeatLockSeat{
			ShowtimeSeatID: seat.ID,
			Price:          quote.Price,
			PriceBreakdown: quote.Breakdown(),
		})
		lock.TotalPrice += quote.Price
	}

	blocked, err := s.locker.LockSeats(ctx, showtimeID, seatIDs, lock.LockKey, s.ttl)
	if err != nil {
		return nil, err
	}
	if len(blocked) > 0 {
		return nil, &service.SeatLockedError{SeatIDs: blocked}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockRepo.WithTx(tx).Create(ctx, lock); err != nil {
			return err
		}
		if err := s.seatRepo.WithTx(tx).UpdateStatus(ctx, seatIDs, model.SeatLocked); err != nil {
			return err
		}
		for _, lockSeat := range lock.Seats {
			if err := s.seatRepo.WithTx(tx).UpdateQuote(ctx, lockSeat.ShowtimeSeatID, lockSeat.Price, lockSeat.PriceBreakdown); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The keys would expire on their own, but freeing them now keeps
		// the seats sellable.
		if _, releaseErr := s.locker.ReleaseSeats(ctx, showtimeID, seatIDs, lock.LockKey); releaseErr != nil {
			s.logger.Warn("failed to release seats after lock rollback",
				zap.Uint("showtime_id", showtimeID),
				zap.Error(releaseErr))
		}
		return nil, err
	}

	s.logger.Info("seat lock acquired",
		zap.Uint("lock_id", lock.ID),
		zap.String("owner", sess.LockOwnerID),
		zap.Uint("showtime_id", showtimeID),
		zap.Int("seats", len(seatIDs)),
		zap.Float64("total_price", lock.TotalPrice))
	return lock, nil
}

// ExtendLock pushes the expiry of an active lock out by one full TTL.
func (s *seatLockService) ExtendLock(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error) {
	lock, err := s.ownedLock(ctx, sess, lockID)
	if err != nil {
		return nil, err
	}
	if !lock.Active || s.now().After(lock.ExpiresAt) {
		return nil, &service.LockExpiredError{LockID: lockID}
	}

	ok, err := s.locker.ExtendSeats(ctx, lock.ShowtimeID, lockSeatIDs(lock), lock.LockKey, s.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &service.LockExpiredError{LockID: lockID}
	}

	lock.ExpiresAt = s.now().Add(s.ttl)
	if err := s.lockRepo.Save(ctx, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseLock frees the seats of a lock. Releasing a lock that already
// expired or was already released is a no-op.
func (s *seatLockService) ReleaseLock(ctx context.Context, sess service.SessionContext, lockID uint) error {
	lock, err := s.ownedLock(ctx, sess, lockID)
	if err != nil {
		return err
	}
	if !lock.Active {
		return nil
	}
	return s.deactivate(ctx, lock)
}

// PromoteToBooked converts an active lock into booked seats. The lock
// store arbitrates the race against expiry: the confirm succeeds only if
// this lock's token still owns every seat key, and consuming the keys
// means the sweep can no longer free the seats.
func (s *seatLockService) PromoteToBooked(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error) {
	lock, err := s.ownedLock(ctx, sess, lockID)
	if err != nil {
		return nil, err
	}
	if !lock.Active || s.now().After(lock.ExpiresAt) {
		return nil, &service.LockExpiredError{LockID: lockID}
	}

	seatIDs := lockSeatIDs(lock)
	ok, err := s.locker.ConfirmSeats(ctx, lock.ShowtimeID, seatIDs, lock.LockKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &service.LockExpiredError{LockID: lockID}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SeatLock{}).
			Where("id = ? AND active = ?", lock.ID, true).
			Update("active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &service.ConcurrentBookingError{Reason: "seat lock was released concurrently"}
		}
		return s.seatRepo.WithTx(tx).UpdateStatus(ctx, seatIDs, model.SeatBooked)
	})
	if err != nil {
		return nil, err
	}

	lock.Active = false
	s.logger.Info("seat lock promoted to booked",
		zap.Uint("lock_id", lock.ID),
		zap.String("owner", sess.LockOwnerID),
		zap.Int("seats", len(seatIDs)))
	return lock, nil
}

func (s *seatLockService) GetLock(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error) {
	return s.ownedLock(ctx, sess, lockID)
}

func (s *seatLockService) ActiveLocks(ctx context.Context, sess service.SessionContext) ([]model.SeatLock, error) {
	return s.lockRepo.FindActiveByOwner(ctx, sess.LockOwnerID)
}

func (s *seatLockService) Availability(ctx context.Context, showtimeID uint) (*SeatMap, error) {
	exists, err := s.showtimeRepo.Exists(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &service.NotFoundError{Resource: "showtime", Key: showtimeID}
	}

	seats, err := s.seatRepo.GetByShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	seatMap := &SeatMap{ShowtimeID: showtimeID}
	for _, seat := range seats {
		switch seat.Status {
		case model.SeatLocked:
			seatMap.Locked = append(seatMap.Locked, seat)
		case model.SeatBooked:
			seatMap.Booked = append(seatMap.Booked, seat)
		default:
			seatMap.Available = append(seatMap.Available, seat)
		}
	}
	return seatMap, nil
}

// CleanupExpiredLocks sweeps locks whose expiry has passed and frees
// their seats. A lock being promoted at the same moment is safe: the
// conditional deactivate below and the token-checked release both lose
// to a promote that already went through.
func (s *seatLockService) CleanupExpiredLocks(ctx context.Context) (int, error) {
	locks, err := s.lockRepo.FindExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for i := range locks {
		lock := &locks[i]
		if err := s.deactivate(ctx, lock); err != nil {
			s.logger.Warn("failed to clean up expired lock",
				zap.Uint("lock_id", lock.ID),
				zap.Error(err))
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		s.logger.Info("expired seat locks cleaned", zap.Int("count", cleaned))
	}
	return cleaned, nil
}

// deactivate releases the lock store keys still owned by the lock and
// returns its non-booked seats to the available pool. The conditional
// update on active makes release, sweep and promote mutually exclusive.
// Only seats the lock store reported free are reset, and the reset skips
// seats referenced by any other active lock: a seat whose key expired and
// was relocked by a newer lock stays LOCKED for that lock's owner.
func (s *seatLockService) deactivate(ctx context.Context, lock *model.SeatLock) error {
	seatIDs := lockSeatIDs(lock)
	freed, err := s.locker.ReleaseSeats(ctx, lock.ShowtimeID, seatIDs, lock.LockKey)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SeatLock{}).
			Where("id = ? AND active = ?", lock.ID, true).
			Update("active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Promote or another release got here first.
			return nil
		}
		lock.Active = false
		if len(freed) == 0 {
			return nil
		}
		heldElsewhere := tx.Model(&model.SeatLockSeat{}).
			Select("seat_lock_seats.showtime_seat_id").
			Joins("JOIN seat_locks ON seat_locks.id = seat_lock_seats.seat_lock_id").
			Where("seat_locks.active = ? AND seat_locks.id <> ?", true, lock.ID)
		return tx.Model(&model.ShowtimeSeat{}).
			Where("id IN ? AND status = ?", freed, model.SeatLocked).
			Where("id NOT IN (?)", heldElsewhere).
			Update("status", model.SeatAvailable).Error
	})
}

func (s *seatLockService) ownedLock(ctx context.Context, sess service.SessionContext, lockID uint) (*model.SeatLock, error) {
	lock, err := s.lockRepo.GetByID(ctx, lockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &service.NotFoundError{Resource: "seat lock", Key: lockID}
		}
		return nil, err
	}
	if lock.LockOwnerID != sess.LockOwnerID || lock.LockOwnerType != sess.LockOwnerType {
		return nil, service.ErrLockOwnership
	}
	return lock, nil
}

func lockSeatIDs(lock *model.SeatLock) []uint {
	ids := make([]uint, 0, len(lock.Seats))
	for _, seat := range lock.Seats {
		ids = append(ids, seat.ShowtimeSeatID)
	}
	return ids
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []uint, found []model.ShowtimeSeat) []uint {
	present := make(map[uint]struct{}, len(found))
	for _, seat := range found {
		present[seat.ID] = struct{}{}
	}
	var missing []uint
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
