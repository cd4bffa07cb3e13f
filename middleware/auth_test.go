package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/karanja/foodbridge-go/config"
)

func testConfig(ttl time.Duration) *config.Config {
	return &config.Config{JWTSecret: "test-secret", AccessTokenTTL: ttl}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig(time.Hour)
	userID := primitive.NewObjectID()

	token, err := IssueToken(cfg, userID)
	require.NoError(t, err)

	parsed, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testConfig(-time.Minute)

	token, err := IssueToken(cfg, primitive.NewObjectID())
	require.NoError(t, err)

	_, err = ParseToken(cfg, token)
	assert.Error(t, err)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	token, err := IssueToken(testConfig(time.Hour), primitive.NewObjectID())
	require.NoError(t, err)

	_, err = ParseToken(&config.Config{JWTSecret: "other-secret"}, token)
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := func(c *gin.Context) { c.Status(http.StatusOK) }

	cases := []struct {
		role string
		want int
	}{
		{"volunteer", http.StatusOK},
		{"admin", http.StatusOK},
		{"donor", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/t", func(c *gin.Context) {
			c.Set("role", tc.role)
			c.Next()
		}, RequireRole("volunteer", "admin"), handler)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
		assert.Equal(t, tc.want, rec.Code, "role %q", tc.role)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(time.Hour)

	r := gin.New()
	r.GET("/t", AuthMiddleware(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
