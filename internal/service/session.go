package service

import (
	"strconv"

	"github.com/qs-lzh/movie-booking/internal/model"
)

// SessionContext identifies the actor behind a request: an authenticated
// user or a guest carrying a client-supplied session id. It is the lock
// ownership key and is immutable for the request's lifetime. The locking
// protocol treats both owner types uniformly.
type SessionContext struct {
	LockOwnerID   string
	LockOwnerType model.LockOwnerType
	UserID        *uint
}

func ForUser(userID uint) SessionContext {
	return SessionContext{
		LockOwnerID:   strconv.FormatUint(uint64(userID), 10),
		LockOwnerType: model.OwnerUser,
		UserID:        &userID,
	}
}

func ForGuest(sessionID string) SessionContext {
	return SessionContext{
		LockOwnerID:   sessionID,
		LockOwnerType: model.OwnerGuestSession,
	}
}

func (s SessionContext) IsAuthenticated() bool {
	return s.LockOwnerType == model.OwnerUser && s.UserID != nil
}

func (s SessionContext) IsGuest() bool {
	return s.LockOwnerType == model.OwnerGuestSession
}
