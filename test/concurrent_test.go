package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/qs-lzh/movie-booking/config"
	"github.com/qs-lzh/movie-booking/internal/cache"
	"github.com/qs-lzh/movie-booking/internal/model"
)

// These tests exercise a running server (with its database, cache and
// message queue up) under heavy concurrent seat-lock traffic.
const baseURL = "http://127.0.0.1:4000"

type LockSeatsRequest struct {
	SeatIDs []uint `json:"seat_ids"`
}

type TestResult struct {
	GrantedCount    int64
	BlockedCount    int64
	OtherErrorCount int64
	TotalRequests   int64
	TotalDuration   time.Duration
	AvgResponseTime time.Duration
}

func setupTestDB(t *testing.T, seatCount int) *gorm.DB {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// clear and rebuild tables
	db.Migrator().DropTable(
		&model.Payment{}, &model.BookingSnack{}, &model.BookingSeat{}, &model.Booking{},
		&model.SeatLockSeat{}, &model.SeatLock{},
		&model.ShowtimeSeat{}, &model.Showtime{}, &model.Seat{}, &model.Room{},
		&model.Cinema{}, &model.Movie{}, &model.PriceModifier{}, &model.PriceBase{})
	db.AutoMigrate(
		&model.Movie{}, &model.Cinema{}, &model.Room{}, &model.Seat{},
		&model.Showtime{}, &model.ShowtimeSeat{},
		&model.PriceBase{}, &model.PriceModifier{},
		&model.SeatLock{}, &model.SeatLockSeat{},
		&model.Booking{}, &model.BookingSeat{}, &model.BookingSnack{}, &model.Payment{})

	movie := model.Movie{Title: "The Wandering Earth 3", Description: "sci-fi"}
	db.Create(&movie)
	cinema := model.Cinema{Name: "Downtown"}
	db.Create(&cinema)
	room := model.Room{CinemaID: cinema.ID, Name: "Hall 1", RoomType: "STANDARD"}
	db.Create(&room)

	for i := 1; i <= seatCount; i++ {
		seat := model.Seat{RoomID: room.ID, RowLabel: "A", SeatNumber: i, SeatType: "NORMAL"}
		db.Create(&seat)
	}

	showtime := model.Showtime{
		MovieID: movie.ID,
		RoomID:  room.ID,
		StartAt: time.Now().Add(6 * time.Hour),
		Format:  "3D",
	}
	db.Create(&showtime)

	for i := 1; i <= seatCount; i++ {
		db.Create(&model.ShowtimeSeat{
			ShowtimeID: showtime.ID,
			SeatID:     uint(i),
			Status:     model.SeatAvailable,
		})
	}

	db.Create(&model.PriceBase{Name: "standard", BasePrice: 45000, IsActive: true})
	db.Create(&model.PriceModifier{
		Name: "weekend surcharge", ConditionType: model.ConditionDayType, ConditionValue: "WEEKEND",
		ModifierType: model.ModifierPercentage, ModifierValue: 20, IsActive: true,
	})

	redisCache, err := cache.NewRedisCache(cfg.CacheURL)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	if err := redisCache.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush redis: %v", err)
	}

	t.Logf("Test data ready: %d seats, 1 showtime", seatCount)

	return db
}

var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        20000,
		MaxIdleConnsPerHost: 20000,
		MaxConnsPerHost:     20000,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	},
	Timeout: 5 * time.Second,
}

func sendLockRequest(sessionID string, showtimeID uint, seatIDs []uint) (statusCode int, responseBody string, duration time.Duration, err error) {
	reqBody := LockSeatsRequest{SeatIDs: seatIDs}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/showtimes/%d/locks", baseURL, showtimeID),
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return 0, "", 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", sessionID)

	start := time.Now()
	resp, err := httpClient.Do(req)
	duration = time.Since(start)

	if err != nil {
		return 0, "", duration, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), duration, nil
}

func concurrentLockTest(t *testing.T, concurrency int, showtimeID uint, seatsFor func(int) []uint) *TestResult {
	result := &TestResult{}
	var wg sync.WaitGroup
	var totalDuration int64

	startTime := time.Now()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			sessionID := fmt.Sprintf("session-%d", index)
			statusCode, body, duration, err := sendLockRequest(sessionID, showtimeID, seatsFor(index))

			atomic.AddInt64(&totalDuration, int64(duration))
			atomic.AddInt64(&result.TotalRequests, 1)

			if err != nil {
				atomic.AddInt64(&result.OtherErrorCount, 1)
				t.Logf("request error [session %d]: %v", index, err)
				return
			}

			switch statusCode {
			case 201:
				atomic.AddInt64(&result.GrantedCount, 1)
			case 409:
				atomic.AddInt64(&result.BlockedCount, 1)
			default:
				atomic.AddInt64(&result.OtherErrorCount, 1)
				t.Logf("unexpected status [session %d]: %d, body: %s", index, statusCode, body)
			}
		}(i)
	}

	wg.Wait()
	result.TotalDuration = time.Since(startTime)
	result.AvgResponseTime = time.Duration(totalDuration / result.TotalRequests)

	return result
}

func printTestResult(t *testing.T, scenarioName string, result *TestResult) {
	t.Logf("--- %s ---", scenarioName)
	t.Logf("granted: %d", result.GrantedCount)
	t.Logf("blocked: %d", result.BlockedCount)
	t.Logf("other errors: %d", result.OtherErrorCount)
	t.Logf("total requests: %d", result.TotalRequests)
	t.Logf("total duration: %v", result.TotalDuration)
	t.Logf("avg response: %v", result.AvgResponseTime)
	t.Logf("qps: %.2f", float64(result.TotalRequests)/result.TotalDuration.Seconds())
}

func verifyNoDoubleLocks(t *testing.T, db *gorm.DB) {
	// every showtime seat may appear in at most one active lock
	var doubleLocked int64
	db.Raw(`
		SELECT COUNT(*) FROM (
			SELECT sls.showtime_seat_id
			FROM seat_lock_seats sls
			JOIN seat_locks sl ON sl.id = sls.seat_lock_id
			WHERE sl.active = true
			GROUP BY sls.showtime_seat_id
			HAVING COUNT(*) > 1
		) doubled
	`).Scan(&doubleLocked)

	if doubleLocked != 0 {
		t.Errorf("found %d seats held by more than one active lock", doubleLocked)
	} else {
		t.Logf("no seat is held by more than one active lock")
	}
}

func verifyActiveLockCount(t *testing.T, db *gorm.DB, expected int64) {
	var actual int64
	db.Model(&model.SeatLock{}).Where("active = ?", true).Count(&actual)

	if actual != expected {
		t.Errorf("active lock count mismatch, expected: %d, actual: %d", expected, actual)
	} else {
		t.Logf("database verified: %d active locks", actual)
	}
}

// Scenario 1: every session fights for the same seat; exactly one wins.
func TestConcurrent_SingleSeatOneWinner(t *testing.T) {
	const (
		concurrency = 5000
		showtimeID  = 1
	)

	db := setupTestDB(t, 10)

	result := concurrentLockTest(t, concurrency, showtimeID, func(i int) []uint {
		return []uint{1}
	})

	printTestResult(t, "scenario 1: single seat", result)

	if result.GrantedCount != 1 {
		t.Errorf("expected exactly 1 granted lock, got %d", result.GrantedCount)
	}
	if result.BlockedCount != int64(concurrency-1) {
		t.Errorf("expected %d blocked requests, got %d", concurrency-1, result.BlockedCount)
	}

	verifyActiveLockCount(t, db, 1)
	verifyNoDoubleLocks(t, db)
}

// Scenario 2: sessions spread over all seats; each seat goes to exactly
// one winner and nothing is oversold.
func TestConcurrent_EverySeatOneWinner(t *testing.T) {
	const (
		seatCount   = 200
		concurrency = 4000
		showtimeID  = 1
	)

	db := setupTestDB(t, seatCount)

	result := concurrentLockTest(t, concurrency, showtimeID, func(i int) []uint {
		return []uint{uint(i%seatCount) + 1}
	})

	printTestResult(t, "scenario 2: every seat", result)

	if result.GrantedCount != seatCount {
		t.Errorf("expected %d granted locks, got %d", seatCount, result.GrantedCount)
	}

	verifyActiveLockCount(t, db, seatCount)
	verifyNoDoubleLocks(t, db)
}

// Scenario 3: overlapping two-seat requests; a session gets both of its
// seats or neither, and no seat ends up in two locks.
func TestConcurrent_OverlappingPairsAllOrNothing(t *testing.T) {
	const (
		seatCount   = 100
		concurrency = 2000
		showtimeID  = 1
	)

	db := setupTestDB(t, seatCount)

	result := concurrentLockTest(t, concurrency, showtimeID, func(i int) []uint {
		// chained pairs: {1,2}, {2,3}, {3,4}, ... so every request
		// overlaps its neighbors
		first := uint(i%(seatCount-1)) + 1
		return []uint{first, first + 1}
	})

	printTestResult(t, "scenario 3: overlapping pairs", result)

	verifyNoDoubleLocks(t, db)

	// every granted lock froze exactly two seats
	var lockSeatCount int64
	db.Model(&model.SeatLockSeat{}).
		Joins("JOIN seat_locks ON seat_locks.id = seat_lock_seats.seat_lock_id").
		Where("seat_locks.active = ?", true).
		Count(&lockSeatCount)
	if lockSeatCount != result.GrantedCount*2 {
		t.Errorf("partial lock detected: %d granted locks but %d locked seats", result.GrantedCount, lockSeatCount)
	} else {
		t.Logf("all-or-nothing verified: %d locks hold %d seats", result.GrantedCount, lockSeatCount)
	}

	var lockedSeats int64
	db.Model(&model.ShowtimeSeat{}).Where("status = ?", model.SeatLocked).Count(&lockedSeats)
	if lockedSeats != lockSeatCount {
		t.Errorf("seat status out of sync: %d LOCKED seats vs %d lock rows", lockedSeats, lockSeatCount)
	}
}
