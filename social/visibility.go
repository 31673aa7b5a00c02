package social

import (
	"context"

	"gorm.io/gorm"

	"social/models"
)

// IsBlockedBy reports whether owner has blocked viewer. Only this direction
// gates access to owner's content.
func (s *Service) IsBlockedBy(ctx context.Context, owner, viewer uint) (bool, error) {
	return isBlockedBy(s.db.WithContext(ctx), owner, viewer)
}

// PostOwnerBlocked returns ErrForbidden when the author of postID has
// blocked viewer, and NotFoundError when the post does not exist.
func (s *Service) PostOwnerBlocked(ctx context.Context, postID, viewer uint) error {
	_, err := visiblePost(s.db.WithContext(ctx), viewer, postID)
	return err
}

func isBlockedBy(db *gorm.DB, owner, viewer uint) (bool, error) {
	var n int64
	err := db.Model(&models.Block{}).
		Where("blocked_by_id = ? AND blocked_user_id = ?", owner, viewer).
		Count(&n).Error
	return n > 0, err
}

// blockedEitherWay is used where any block between two users suppresses an
// interaction, as with mentions.
func blockedEitherWay(db *gorm.DB, a, b uint) (bool, error) {
	var n int64
	err := db.Model(&models.Block{}).
		Where("(blocked_by_id = ? AND blocked_user_id = ?) OR (blocked_by_id = ? AND blocked_user_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// guardOwner fails with ErrForbidden when the owner has blocked the viewer.
func guardOwner(db *gorm.DB, owner, viewer uint) error {
	blocked, err := isBlockedBy(db, owner, viewer)
	if err != nil {
		return err
	}
	if blocked {
		return ErrForbidden
	}
	return nil
}

// blockedByViewer is a subquery of the users viewer has blocked.
func blockedByViewer(db *gorm.DB, viewer uint) *gorm.DB {
	return db.Model(&models.Block{}).Select("blocked_user_id").Where("blocked_by_id = ?", viewer)
}

// followeesOf is a subquery of the users viewer follows.
func followeesOf(db *gorm.DB, viewer uint) *gorm.DB {
	return db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", viewer)
}
