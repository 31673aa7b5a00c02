package social

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"social/database"
	"social/models"
)

type BlockView struct {
	BlockedUser UserSummary `json:"blocked_user"`
	Reason      string      `json:"reason"`
	BlockAt     time.Time   `json:"block_at"`
}

func userByHandle(db *gorm.DB, handle string) (*models.User, error) {
	var u models.User
	err := db.Where("user_handle = ? AND is_active = ?", strings.ToLower(strings.TrimPrefix(handle, "@")), true).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func adjustFollowCounters(tx *gorm.DB, follower, following uint, delta int) error {
	step := func(id uint, column string) error {
		q := tx.Model(&models.User{}).Where("id = ?", id)
		if delta < 0 {
			q = q.Where(column+" >= ?", -delta)
		}
		return q.UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
	}
	if err := step(follower, "following_amount"); err != nil {
		return err
	}
	return step(following, "follower_amount")
}

// Follow makes viewer follow the user with the given handle.
func (s *Service) Follow(ctx context.Context, viewer uint, handle string) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	target, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return invalid("following", "User not found.")
	}
	if err != nil {
		return err
	}
	if target.ID == viewer {
		return invalid("following", "You cannot follow yourself.")
	}
	if err := guardOwner(db, target.ID, viewer); err != nil {
		return err
	}
	var actor models.User
	if err := db.First(&actor, viewer).Error; err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Follow{FollowerID: viewer, FollowingID: target.ID}).Error; err != nil {
			return err
		}
		if err := adjustFollowCounters(tx, viewer, target.ID, 1); err != nil {
			return err
		}
		return notify(tx, models.NotifyFollow, actor, target.ID, nil)
	})
	if database.IsDuplicate(err) {
		return &ConflictError{Msg: "Follow already exist."}
	}
	if err != nil {
		return err
	}
	s.log.WithField("follower", viewer).WithField("following", target.ID).Info("User followed successfully")
	return nil
}

func (s *Service) Unfollow(ctx context.Context, viewer uint, handle string) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	target, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return notFound("User not found.")
	}
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", viewer, target.ID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("You do not follow this user.")
		}
		return adjustFollowCounters(tx, viewer, target.ID, -1)
	})
}

// Followers lists who follows handle; Followings lists who handle follows.
func (s *Service) Followers(ctx context.Context, viewer uint, handle string) ([]UserSummary, error) {
	return s.followList(ctx, viewer, handle, "following_id", "follower_id")
}

func (s *Service) Followings(ctx context.Context, viewer uint, handle string) ([]UserSummary, error) {
	return s.followList(ctx, viewer, handle, "follower_id", "following_id")
}

func (s *Service) followList(ctx context.Context, viewer uint, handle, match, pick string) ([]UserSummary, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	owner, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return nil, notFound("User not found.")
	}
	if err != nil {
		return nil, err
	}
	if err := guardOwner(db, owner.ID, viewer); err != nil {
		return nil, err
	}

	var users []models.User
	err = db.Joins("JOIN follows ON follows."+pick+" = users.id").
		Where("follows."+match+" = ?", owner.ID).
		Order("follows.id DESC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, summarize(u))
	}
	return out, nil
}

// Block records that viewer blocks handle and drops any follow between the
// two users, in both directions.
func (s *Service) Block(ctx context.Context, viewer uint, handle, reason string) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	target, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return invalid("blocked_user", "User not found.")
	}
	if err != nil {
		return err
	}
	if target.ID == viewer {
		return invalid("blocked_user", "You cannot block yourself.")
	}
	reason = truncate(strings.TrimSpace(reason), models.MaxReasonLength)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Block{BlockedByID: viewer, BlockedUserID: target.ID, Reason: reason}).Error; err != nil {
			return err
		}
		for _, pair := range [][2]uint{{viewer, target.ID}, {target.ID, viewer}} {
			res := tx.Where("follower_id = ? AND following_id = ?", pair[0], pair[1]).Delete(&models.Follow{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				if err := adjustFollowCounters(tx, pair[0], pair[1], -1); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if database.IsDuplicate(err) {
		return &ConflictError{Msg: "User is already block."}
	}
	if err != nil {
		return err
	}
	s.log.WithField("blocked_by", viewer).WithField("blocked_user", target.ID).Info("User blocked")
	return nil
}

func (s *Service) Unblock(ctx context.Context, viewer uint, handle string) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	target, err := userByHandle(db, handle)
	if database.IsNotFound(err) {
		return notFound("User not found.")
	}
	if err != nil {
		return err
	}
	res := db.Where("blocked_by_id = ? AND blocked_user_id = ?", viewer, target.ID).Delete(&models.Block{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("User is not blocked.")
	}
	return nil
}

func (s *Service) ListBlocks(ctx context.Context, viewer uint) ([]BlockView, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	var blocks []models.Block
	err := s.db.WithContext(ctx).Preload("BlockedUser").
		Where("blocked_by_id = ?", viewer).
		Order("id DESC").
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	out := make([]BlockView, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockView{BlockedUser: summarize(b.BlockedUser), Reason: b.Reason, BlockAt: b.BlockAt})
	}
	return out, nil
}
