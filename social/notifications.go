package social

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"social/models"
)

var notificationHeaders = map[string]string{
	models.NotifyMention: "%s mentioned you in a post.",
	models.NotifyLike:    "%s liked your post.",
	models.NotifyRepost:  "%s reposted your post.",
	models.NotifyQuote:   "%s quoted your post.",
	models.NotifyFollow:  "%s started following you.",
	models.NotifyReply:   "%s replied to your post.",
}

// notify records a notification from sender to recipient. Acting on your
// own content notifies nobody.
func notify(tx *gorm.DB, kind string, sender models.User, recipient uint, postID *uint) error {
	if sender.ID == recipient {
		return nil
	}
	header := truncate(fmt.Sprintf(notificationHeaders[kind], "@"+sender.UserHandle), models.MaxHeaderLength)
	return tx.Create(&models.Notification{
		SenderID:         sender.ID,
		RecipientID:      recipient,
		NotificationType: kind,
		PostID:           postID,
		Header:           header,
	}).Error
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type NotificationView struct {
	ID               uint        `json:"id"`
	Sender           UserSummary `json:"sender"`
	NotificationType string      `json:"notification_type"`
	Post             *PostView   `json:"post,omitempty"`
	Header           string      `json:"header"`
	Message          *string     `json:"message"`
	IsRead           bool        `json:"is_read"`
	CreateAt         time.Time   `json:"create_at"`
}

// ListNotifications returns the viewer's notifications newest first and then
// marks them read. The returned items still show their previous state.
func (s *Service) ListNotifications(ctx context.Context, viewer uint) ([]NotificationView, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	var rows []models.Notification
	err := db.Preload("Sender").
		Preload("Post.User").
		Preload("Post.Poll.Options").
		Preload("Post.HashtagUses.Hashtag").
		Preload("Post.Mentions.User").
		Where("recipient_id = ?", viewer).
		Order("create_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]NotificationView, 0, len(rows))
	var unread []uint
	for _, n := range rows {
		v := NotificationView{
			ID:               n.ID,
			Sender:           summarize(n.Sender),
			NotificationType: n.NotificationType,
			Header:           n.Header,
			Message:          n.Message,
			IsRead:           n.IsRead,
			CreateAt:         n.CreateAt,
		}
		if n.Post != nil {
			v.Post = present(n.Post, 1)
		}
		if !n.IsRead {
			unread = append(unread, n.ID)
		}
		out = append(out, v)
	}

	if len(unread) > 0 {
		if err := db.Model(&models.Notification{}).Where("id IN ?", unread).
			Update("is_read", true).Error; err != nil {
			return nil, err
		}
	}
	return out, nil
}
