package social

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"social/database"
	"social/models"
)

type CreatePostInput struct {
	Body          string
	Video         string
	Gif           string
	Images        []string
	QuoteID       *uint
	ParentID      *uint
	DateToPublish *time.Time
	Poll          *PollInput
}

type PostDetail struct {
	Post    *PostView   `json:"post"`
	Replies []*PostView `json:"replies"`
}

func validateMedia(in *CreatePostInput) error {
	images := 0
	for _, img := range in.Images {
		if img != "" {
			images++
		}
	}
	if images > 4 {
		return invalid("media", "A post can hold at most 4 images.")
	}
	kinds := 0
	if in.Video != "" {
		kinds++
	}
	if in.Gif != "" {
		kinds++
	}
	if images > 0 {
		kinds++
	}
	if kinds > 1 {
		return invalid("media", "Only one kind of media is allowed: a video, up to 4 images or a gif.")
	}
	return nil
}

// CreatePost validates and stores a new post owned by viewer, linking it to
// the quoted post and the replied-to parent when given.
func (s *Service) CreatePost(ctx context.Context, viewer uint, in CreatePostInput) (*PostView, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	now := s.clock()

	body := strings.TrimSpace(in.Body)
	switch {
	case body == "":
		return nil, invalid("body", "This field may not be blank.")
	case utf8.RuneCountInString(body) > models.MaxBodyLength:
		return nil, invalid("body", fmt.Sprintf("Ensure this field has no more than %d characters.", models.MaxBodyLength))
	}
	if err := validateMedia(&in); err != nil {
		return nil, err
	}
	hasMedia := in.Video != "" || in.Gif != "" || len(in.Images) > 0

	var (
		options []string
		end     time.Time
	)
	if in.Poll != nil {
		if hasMedia {
			return nil, invalid("poll", "A post cannot have both a poll and media.")
		}
		var err error
		options, end, err = validatePoll(in.Poll, now)
		if err != nil {
			return nil, err
		}
	}

	var author models.User
	if err := db.First(&author, viewer).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	var quote, parent *models.Post
	for _, ref := range []struct {
		field string
		id    *uint
		dst   **models.Post
	}{{"quote", in.QuoteID, &quote}, {"parent", in.ParentID, &parent}} {
		if ref.id == nil {
			continue
		}
		var p models.Post
		err := db.First(&p, *ref.id).Error
		if database.IsNotFound(err) {
			return nil, invalid(ref.field, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *ref.id))
		}
		if err != nil {
			return nil, err
		}
		*ref.dst = &p
	}

	post := models.Post{
		UserID:        viewer,
		Body:          body,
		HaveMedia:     hasMedia,
		HavePoll:      in.Poll != nil,
		Video:         in.Video,
		Gif:           in.Gif,
		QuoteID:       in.QuoteID,
		DateToPublish: now,
	}
	slots := []*string{&post.Img1, &post.Img2, &post.Img3, &post.Img4}
	i := 0
	for _, img := range in.Images {
		if img != "" {
			*slots[i] = img
			i++
		}
	}
	if in.DateToPublish != nil {
		post.DateToPublish = in.DateToPublish.UTC()
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		if in.Poll != nil {
			if err := createPoll(tx, post.ID, options, end); err != nil {
				return err
			}
		}
		if quote != nil {
			if err := bump(tx, quote.ID, "num_repost", 1); err != nil {
				return err
			}
			if err := notify(tx, models.NotifyQuote, author, quote.UserID, &post.ID); err != nil {
				return err
			}
		}
		if parent != nil {
			if err := tx.Create(&models.PostReply{ParentID: parent.ID, ReplyID: post.ID}).Error; err != nil {
				return err
			}
			if err := bump(tx, parent.ID, "num_replies", 1); err != nil {
				return err
			}
			if err := notify(tx, models.NotifyReply, author, parent.UserID, &post.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("post", post.ID).WithField("user", viewer).Info("Post created")
	views, err := loadPosts(db, []uint{post.ID})
	if err != nil {
		return nil, err
	}
	return views[post.ID], nil
}

// GetPost returns a published post with its replies and counts one view.
func (s *Service) GetPost(ctx context.Context, viewer, id uint) (*PostDetail, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	var post models.Post
	err := db.Where("id = ? AND (date_to_publish <= ? OR user_id = ?)", id, s.clock(), viewer).First(&post).Error
	if database.IsNotFound(err) {
		return nil, notFound("Post not found.")
	}
	if err != nil {
		return nil, err
	}
	if err := guardOwner(db, post.UserID, viewer); err != nil {
		return nil, err
	}

	var replyIDs []uint
	if err := db.Model(&models.PostReply{}).Where("parent_id = ?", id).Order("reply_id").
		Pluck("reply_id", &replyIDs).Error; err != nil {
		return nil, err
	}
	views, err := loadPosts(db, append([]uint{id}, replyIDs...))
	if err != nil {
		return nil, err
	}

	detail := &PostDetail{Post: views[id], Replies: []*PostView{}}
	for _, rid := range replyIDs {
		if v, ok := views[rid]; ok {
			detail.Replies = append(detail.Replies, v)
		}
	}
	if err := bump(db, id, "num_views", 1); err != nil {
		return nil, err
	}
	return detail, nil
}

// DeletePost removes viewer's own post along with everything that hangs
// off it and restores the counters it contributed to.
func (s *Service) DeletePost(ctx context.Context, viewer, id uint) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	var post models.Post
	err := db.First(&post, id).Error
	if database.IsNotFound(err) {
		return notFound("Post not found.")
	}
	if err != nil {
		return err
	}
	if post.UserID != viewer {
		return &ForbiddenError{Msg: "You do not have permission to delete this post."}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return removePost(tx, post)
	})
	if err != nil {
		return err
	}
	s.log.WithField("post", id).WithField("user", viewer).Info("Post deleted")
	return nil
}

// removePost deletes post and everything that hangs off it, restoring the
// counters it contributed to.
func removePost(tx *gorm.DB, post models.Post) error {
	id := post.ID
	var link models.PostReply
	err := tx.Where("reply_id = ?", id).First(&link).Error
	switch {
	case err == nil:
		if err := bump(tx, link.ParentID, "num_replies", -1); err != nil {
			return err
		}
	case !database.IsNotFound(err):
		return err
	}
	if err := tx.Where("reply_id = ? OR parent_id = ?", id, id).Delete(&models.PostReply{}).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.Post{}).Where("quote_id = ?", id).
		UpdateColumn("quote_id", gorm.Expr("NULL")).Error; err != nil {
		return err
	}
	if post.QuoteID != nil {
		if err := bump(tx, *post.QuoteID, "num_repost", -1); err != nil {
			return err
		}
	}

	if err := deletePoll(tx, id); err != nil {
		return err
	}
	if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
		return err
	}
	if err := tx.Where("post_id = ?", id).Delete(&models.Repost{}).Error; err != nil {
		return err
	}
	if err := unlinkHashtags(tx, id); err != nil {
		return err
	}
	if err := tx.Where("post_id = ?", id).Delete(&models.Mention{}).Error; err != nil {
		return err
	}
	if err := tx.Where("post_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Post{}, id).Error
}

func deletePoll(tx *gorm.DB, postID uint) error {
	var poll models.Poll
	err := tx.Where("post_id = ?", postID).First(&poll).Error
	if database.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := tx.Where("poll_id = ?", poll.ID).Delete(&models.Vote{}).Error; err != nil {
		return err
	}
	if err := tx.Where("poll_id = ?", poll.ID).Delete(&models.PollOption{}).Error; err != nil {
		return err
	}
	return tx.Delete(&poll).Error
}

func unlinkHashtags(tx *gorm.DB, postID uint) error {
	var tagIDs []uint
	if err := tx.Model(&models.HashtagUse{}).Where("post_id = ?", postID).
		Pluck("hashtag_id", &tagIDs).Error; err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	if err := tx.Model(&models.Hashtag{}).Where("id IN ? AND amount_use > 0", tagIDs).
		UpdateColumn("amount_use", gorm.Expr("amount_use - ?", 1)).Error; err != nil {
		return err
	}
	return tx.Where("post_id = ?", postID).Delete(&models.HashtagUse{}).Error
}

// bump moves a post counter by delta without letting it go below zero.
func bump(tx *gorm.DB, postID uint, column string, delta int) error {
	q := tx.Model(&models.Post{}).Where("id = ?", postID)
	if delta < 0 {
		q = q.Where(column+" >= ?", -delta)
	}
	return q.UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}
