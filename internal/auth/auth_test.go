package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	InitJWT("test-secret")

	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	r.GET("/admin", AuthMiddleware(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func request(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	InitJWT("test-secret")
	token, err := GenerateToken("alice", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	r := setupRouter()
	token, err := GenerateToken("alice", RoleUser, time.Hour)
	require.NoError(t, err)

	InitJWT("other-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)

	w := request(r, "/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware(t *testing.T) {
	r := setupRouter()
	userToken, err := GenerateToken("bob", RoleUser, time.Hour)
	require.NoError(t, err)
	adminToken, err := GenerateToken("root", RoleAdmin, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "").Code)
	assert.Equal(t, http.StatusOK, request(r, "/me", userToken).Code)
	assert.Equal(t, http.StatusForbidden, request(r, "/admin", userToken).Code)
	assert.Equal(t, http.StatusNoContent, request(r, "/admin", adminToken).Code)
}
