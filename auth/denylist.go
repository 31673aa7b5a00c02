package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"social/models"
)

// Denylist remembers revoked refresh token ids until they expire.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

const redisKeyPrefix = "revoked:"

type RedisDenylist struct {
	rdb *redis.Client
}

func NewRedisDenylist(rdb *redis.Client) *RedisDenylist {
	return &RedisDenylist{rdb: rdb}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, redisKeyPrefix+jti, 1, ttl).Err()
}

func (d *RedisDenylist) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, redisKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DBDenylist keeps revoked ids in the revoked_tokens table.
type DBDenylist struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBDenylist(db *gorm.DB) *DBDenylist {
	return &DBDenylist{db: db, now: time.Now}
}

func (d *DBDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RevokedToken{JTI: jti, ExpiresAt: until.UTC()}).Error
}

func (d *DBDenylist) Revoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.RevokedToken{}).Where("jti = ?", jti).Count(&n).Error
	return n > 0, err
}

// Purge drops entries whose tokens have expired anyway.
func (d *DBDenylist) Purge(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).Where("expires_at < ?", d.now().UTC()).Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}
