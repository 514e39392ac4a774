package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs-lzh/movie-booking/internal/model"
	"github.com/qs-lzh/movie-booking/internal/service"
)

func sessionTestRouter(captured *service.SessionContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SessionMiddleware())
	router.GET("/probe", func(ctx *gin.Context) {
		sess, ok := SessionFrom(ctx)
		if !ok {
			return
		}
		*captured = sess
		ctx.JSON(200, gin.H{"ok": true})
	})
	return router
}

func TestSessionMiddleware_UserHeader(t *testing.T) {
	var sess service.SessionContext
	router := sessionTestRouter(&sess)

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("X-User-Id", "42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OwnerUser, sess.LockOwnerType)
	assert.Equal(t, "42", sess.LockOwnerID)
	require.NotNil(t, sess.UserID)
	assert.Equal(t, uint(42), *sess.UserID)
}

func TestSessionMiddleware_GuestHeader(t *testing.T) {
	var sess service.SessionContext
	router := sessionTestRouter(&sess)

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("X-Session-Id", "guest-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OwnerGuestSession, sess.LockOwnerType)
	assert.Equal(t, "guest-abc", sess.LockOwnerID)
	assert.Nil(t, sess.UserID)
}

func TestSessionMiddleware_UserHeaderWins(t *testing.T) {
	var sess service.SessionContext
	router := sessionTestRouter(&sess)

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("X-User-Id", "7")
	req.Header.Set("X-Session-Id", "guest-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OwnerUser, sess.LockOwnerType)
}

func TestSessionMiddleware_MissingHeaders(t *testing.T) {
	var sess service.SessionContext
	router := sessionTestRouter(&sess)

	req := httptest.NewRequest("GET", "/probe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionMiddleware_BadUserHeader(t *testing.T) {
	var sess service.SessionContext
	router := sessionTestRouter(&sess)

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("X-User-Id", "not-a-number")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
