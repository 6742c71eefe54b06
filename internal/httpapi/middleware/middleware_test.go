package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chat-capture/internal/auth"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/who", func(c *gin.Context) {
		uid, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "rid": c.GetString(RequestIDKey)})
	})
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	return r
}

func get(r http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := newEngine(AuthRequired(secret, false))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/who", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/who", map[string]string{"Authorization": "Bearer nope"}).Code)

	tok, err := auth.SignToken(secret, 42, time.Hour)
	require.NoError(t, err)
	w := get(r, "/who", map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":42,"rid":""}`, w.Body.String())
}

func TestAuthDisabled(t *testing.T) {
	w := get(newEngine(AuthRequired(secret, true)), "/who", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":1`)
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := get(r, "/who", map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = get(r, "/who", nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestRecovery(t *testing.T) {
	r := newEngine(RequestID(), Logger(zap.NewNop()), Recovery(zap.NewNop()))
	w := get(r, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":50000,"message":"internal server error","data":null}`, w.Body.String())
}
