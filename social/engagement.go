package social

import (
	"context"

	"gorm.io/gorm"

	"social/database"
	"social/models"
)

// engagementKind describes a per-user, per-post association with a post
// counter and a notification.
type engagementKind struct {
	model      func(user, post uint) interface{}
	counter    string
	notifyKind string
	duplicate  string
	missing    string
	table      string
}

var (
	likeKind = engagementKind{
		model:      func(user, post uint) interface{} { return &models.Like{UserID: user, PostID: post} },
		counter:    "num_likes",
		notifyKind: models.NotifyLike,
		duplicate:  "You've already liked this post.",
		missing:    "You have not liked this post.",
		table:      "likes",
	}
	repostKind = engagementKind{
		model:      func(user, post uint) interface{} { return &models.Repost{UserID: user, PostID: post} },
		counter:    "num_repost",
		notifyKind: models.NotifyRepost,
		duplicate:  "You've already repost this post.",
		missing:    "You have not repost this post.",
		table:      "reposts",
	}
)

func (s *Service) Like(ctx context.Context, viewer, postID uint) error {
	return s.engage(ctx, likeKind, viewer, postID)
}

func (s *Service) Unlike(ctx context.Context, viewer, postID uint) error {
	return s.disengage(ctx, likeKind, viewer, postID)
}

func (s *Service) Repost(ctx context.Context, viewer, postID uint) error {
	return s.engage(ctx, repostKind, viewer, postID)
}

func (s *Service) Unrepost(ctx context.Context, viewer, postID uint) error {
	return s.disengage(ctx, repostKind, viewer, postID)
}

// Likers lists who liked the post, newest first.
func (s *Service) Likers(ctx context.Context, viewer, postID uint) ([]UserSummary, error) {
	return s.engagers(ctx, likeKind, viewer, postID)
}

// Reposters lists who reposted the post, newest first.
func (s *Service) Reposters(ctx context.Context, viewer, postID uint) ([]UserSummary, error) {
	return s.engagers(ctx, repostKind, viewer, postID)
}

// visiblePost loads a post and applies the owner's block of the viewer.
func visiblePost(db *gorm.DB, viewer, postID uint) (*models.Post, error) {
	var post models.Post
	err := db.First(&post, postID).Error
	if database.IsNotFound(err) {
		return nil, notFound("Post not found.")
	}
	if err != nil {
		return nil, err
	}
	if err := guardOwner(db, post.UserID, viewer); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Service) engage(ctx context.Context, k engagementKind, viewer, postID uint) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	post, err := visiblePost(db, viewer, postID)
	if err != nil {
		return err
	}
	var actor models.User
	if err := db.First(&actor, viewer).Error; err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(k.model(viewer, postID)).Error; err != nil {
			return err
		}
		if err := bump(tx, postID, k.counter, 1); err != nil {
			return err
		}
		return notify(tx, k.notifyKind, actor, post.UserID, &post.ID)
	})
	if database.IsDuplicate(err) {
		return &ConflictError{Msg: k.duplicate}
	}
	if err != nil {
		return err
	}
	s.log.WithField("post", postID).WithField("user", viewer).Info(k.table + " added")
	return nil
}

func (s *Service) disengage(ctx context.Context, k engagementKind, viewer, postID uint) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	if _, err := visiblePost(db, viewer, postID); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", viewer, postID).Delete(k.model(0, 0))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(k.missing)
		}
		return bump(tx, postID, k.counter, -1)
	})
}

func (s *Service) engagers(ctx context.Context, k engagementKind, viewer, postID uint) ([]UserSummary, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	if _, err := visiblePost(db, viewer, postID); err != nil {
		return nil, err
	}

	var users []models.User
	err := db.Joins("JOIN "+k.table+" ON "+k.table+".user_id = users.id").
		Where(k.table+".post_id = ?", postID).
		Order(k.table + ".id DESC").
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
