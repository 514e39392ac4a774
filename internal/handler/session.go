package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/movie-booking/internal/service"
)

const sessionContextKey = "sessionContext"

// SessionMiddleware resolves the actor behind the request. An
// X-User-Id header marks an authenticated user; otherwise X-Session-Id
// identifies a guest session. Requests carrying neither are rejected so
// every lock has an owner.
func SessionMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if userHeader := ctx.GetHeader("X-User-Id"); userHeader != "" {
			userID, err := strconv.ParseUint(userHeader, 10, 64)
			if err != nil {
				ctx.AbortWithStatusJSON(400, gin.H{
					"error": "Invalid X-User-Id header",
				})
				return
			}
			ctx.Set(sessionContextKey, service.ForUser(uint(userID)))
			ctx.Next()
			return
		}

		if sessionID := ctx.GetHeader("X-Session-Id"); sessionID != "" {
			ctx.Set(sessionContextKey, service.ForGuest(sessionID))
			ctx.Next()
			return
		}

		ctx.AbortWithStatusJSON(401, gin.H{
			"error":   "Missing session",
			"message": "Provide X-User-Id or X-Session-Id",
		})
	}
}

// SessionFrom returns the session placed by the middleware. The false
// return writes the error response itself.
func SessionFrom(ctx *gin.Context) (service.SessionContext, bool) {
	value, exists := ctx.Get(sessionContextKey)
	if !exists {
		ctx.JSON(401, gin.H{
			"error": "Missing session",
		})
		return service.SessionContext{}, false
	}
	sess, ok := value.(service.SessionContext)
	if !ok {
		ctx.JSON(500, gin.H{
			"error": "Internal server error",
		})
		return service.SessionContext{}, false
	}
	return sess, true
}
