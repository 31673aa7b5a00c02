package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"social/models"
)

func newDenylist(t *testing.T) *DBDenylist {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "auth.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RevokedToken{}))
	return NewDBDenylist(db)
}

func TestPasswordHash(t *testing.T) {
	Cost = bcrypt.MinCost
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("key", newDenylist(t))
	pair, err := issuer.Issue(42)
	require.NoError(t, err)

	id, err := issuer.Verify(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = issuer.Verify(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are not access tokens")

	_, err = NewIssuer("other", newDenylist(t)).Verify(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenExpires(t *testing.T) {
	issuer := NewIssuer("key", newDenylist(t))
	start := time.Now()
	issuer.now = func() time.Time { return start }
	pair, err := issuer.Issue(1)
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(AccessTokenLifetime + time.Minute) }
	_, err = issuer.Verify(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	issuer := NewIssuer("key", newDenylist(t))
	pair, err := issuer.Issue(7)
	require.NoError(t, err)

	next, userID, err := issuer.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)
	assert.NotEqual(t, pair.Refresh, next.Refresh)

	_, _, err = issuer.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestDBDenylistPurge(t *testing.T) {
	ctx := context.Background()
	d := newDenylist(t)
	now := time.Now()
	require.NoError(t, d.Revoke(ctx, "old", now.Add(-time.Hour)))
	require.NoError(t, d.Revoke(ctx, "fresh", now.Add(time.Hour)))
	require.NoError(t, d.Revoke(ctx, "fresh", now.Add(time.Hour)))

	n, err := d.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revoked, err := d.Revoked(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = d.Revoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("key", newDenylist(t))
	pair, err := issuer.Issue(3)
	require.NoError(t, err)

	var seen uint
	h := issuer.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
		user   uint
	}{
		{"no header", "", http.StatusOK, 0},
		{"valid", "Bearer " + pair.Access, http.StatusOK, 3},
		{"lowercase scheme", "bearer " + pair.Access, http.StatusOK, 3},
		{"garbage", "Bearer nope", http.StatusUnauthorized, 0},
		{"refresh as access", "Bearer " + pair.Refresh, http.StatusUnauthorized, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = 0
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.user, seen)
		})
	}
}
