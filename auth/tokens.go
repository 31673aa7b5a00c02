package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessTokenLifetime  = 59 * time.Minute
	RefreshTokenLifetime = 100 * 24 * time.Hour

	accessType  = "access"
	refreshType = "refresh"
)

var (
	ErrInvalidToken = errors.New("Token is invalid or expired")
	ErrRevokedToken = errors.New("Token is blacklisted")
)

// Claims is the payload of both token kinds.
type Claims struct {
	UserID    uint   `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Issuer signs and checks HS256 token pairs. Refresh tokens are single use:
// refreshing revokes the old one.
type Issuer struct {
	key      []byte
	denylist Denylist
	now      func() time.Time
}

func NewIssuer(secret string, denylist Denylist) *Issuer {
	return &Issuer{key: []byte(secret), denylist: denylist, now: time.Now}
}

func (i *Issuer) sign(userID uint, kind string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:    userID,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

func (i *Issuer) Issue(userID uint) (Pair, error) {
	access, err := i.sign(userID, accessType, AccessTokenLifetime)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(userID, refreshType, RefreshTokenLifetime)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (i *Issuer) parse(token, kind string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != kind || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify checks an access token and returns its user id.
func (i *Issuer) Verify(token string) (uint, error) {
	claims, err := i.parse(token, accessType)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old one.
func (i *Issuer) Refresh(ctx context.Context, refresh string) (Pair, uint, error) {
	claims, err := i.parse(refresh, refreshType)
	if err != nil {
		return Pair{}, 0, err
	}
	if err := i.Revoke(ctx, refresh); err != nil {
		return Pair{}, 0, err
	}
	pair, err := i.Issue(claims.UserID)
	return pair, claims.UserID, err
}

// Revoke puts a refresh token on the denylist until it would have expired.
func (i *Issuer) Revoke(ctx context.Context, refresh string) error {
	claims, err := i.parse(refresh, refreshType)
	if err != nil {
		return err
	}
	revoked, err := i.denylist.Revoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrRevokedToken
	}
	return i.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
