package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	MaxBodyLength   = 280
	MaxOptionLength = 25
	MaxPollOptions  = 4
	MinPollOptions  = 2
	MaxHeaderLength = 150
	MaxHandleLength = 15
	MaxReasonLength = 500
	DefaultPollSpan = 24 * time.Hour
	MaxPollSpan     = 7 * 24 * time.Hour
)

// Notification kinds.
const (
	NotifyMention = "mention"
	NotifyLike    = "like"
	NotifyRepost  = "repost"
	NotifyQuote   = "quote"
	NotifyFollow  = "follow"
	NotifyReply   = "reply"
)

var ErrTooManyOptions = errors.New("a poll cannot have more than 4 options")

type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Username        string    `gorm:"size:150;not null" json:"username"`
	UserHandle      string    `gorm:"size:15;uniqueIndex;not null" json:"user_handle"`
	Email           string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	PWHash          string    `gorm:"not null" json:"-"`
	FirstName       string    `gorm:"size:150" json:"first_name"`
	LastName        string    `gorm:"size:150" json:"last_name"`
	Biography       string    `gorm:"size:160" json:"biography"`
	ProfileImg      string    `json:"profile_img"`
	FollowerAmount  int       `gorm:"not null;default:0" json:"follower_amount"`
	FollowingAmount int       `gorm:"not null;default:0" json:"following_amount"`
	IsActive        bool      `gorm:"not null" json:"is_active"`
	CreateAt        time.Time `gorm:"autoCreateTime" json:"create_at"`
	ModifyAt        time.Time `gorm:"autoUpdateTime" json:"modify_at"`
}

type Post struct {
	ID            uint         `gorm:"primaryKey"`
	UserID        uint         `gorm:"not null;index"`
	User          User         `gorm:"foreignKey:UserID"`
	Body          string       `gorm:"size:280;not null"`
	HaveMedia     bool         `gorm:"not null"`
	HavePoll      bool         `gorm:"not null"`
	Video         string
	Img1          string
	Img2          string
	Img3          string
	Img4          string
	Gif           string
	QuoteID       *uint        `gorm:"index"`
	Quote         *Post        `gorm:"foreignKey:QuoteID;constraint:OnDelete:SET NULL"`
	NumReplies    int          `gorm:"not null;default:0"`
	NumRepost     int          `gorm:"not null;default:0"`
	NumLikes      int          `gorm:"not null;default:0"`
	NumViews      int          `gorm:"not null;default:0"`
	DateToPublish time.Time    `gorm:"not null;index"`
	CreateAt      time.Time    `gorm:"autoCreateTime"`
	ModifyAt      time.Time    `gorm:"autoUpdateTime"`
	Poll          *Poll        `gorm:"foreignKey:PostID"`
	HashtagUses   []HashtagUse `gorm:"foreignKey:PostID"`
	Mentions      []Mention    `gorm:"foreignKey:PostID"`
}

// Images returns the non-empty image slots in order.
func (p *Post) Images() []string {
	var out []string
	for _, img := range []string{p.Img1, p.Img2, p.Img3, p.Img4} {
		if img != "" {
			out = append(out, img)
		}
	}
	return out
}

type PostReply struct {
	ID       uint `gorm:"primaryKey"`
	ParentID uint `gorm:"not null;index"`
	ReplyID  uint `gorm:"not null;uniqueIndex"`
}

type Poll struct {
	ID         uint         `gorm:"primaryKey"`
	PostID     uint         `gorm:"not null;uniqueIndex"`
	TotalVotes int          `gorm:"not null;default:0"`
	EndTime    time.Time    `gorm:"not null"`
	Options    []PollOption `gorm:"foreignKey:PollID"`
}

type PollOption struct {
	ID     uint   `gorm:"primaryKey"`
	PollID uint   `gorm:"not null;uniqueIndex:idx_poll_option"`
	Option string `gorm:"size:25;not null;uniqueIndex:idx_poll_option"`
	Votes  int    `gorm:"not null;default:0"`
}

// BeforeCreate keeps a poll at no more than MaxPollOptions options no matter
// which code path inserts them.
func (o *PollOption) BeforeCreate(tx *gorm.DB) error {
	var n int64
	if err := tx.Session(&gorm.Session{NewDB: true}).Model(&PollOption{}).
		Where("poll_id = ?", o.PollID).Count(&n).Error; err != nil {
		return err
	}
	if n >= MaxPollOptions {
		return ErrTooManyOptions
	}
	return nil
}

type Vote struct {
	ID       uint      `gorm:"primaryKey"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_vote_user_poll"`
	PollID   uint      `gorm:"not null;uniqueIndex:idx_vote_user_poll"`
	OptionID uint      `gorm:"not null;index"`
	VoteDate time.Time `gorm:"autoCreateTime"`
}

type Hashtag struct {
	ID        uint   `gorm:"primaryKey"`
	Tag       string `gorm:"size:100;uniqueIndex;not null"`
	AmountUse int    `gorm:"not null;default:0"`
}

type HashtagUse struct {
	ID        uint    `gorm:"primaryKey"`
	HashtagID uint    `gorm:"not null;uniqueIndex:idx_hashtag_post"`
	Hashtag   Hashtag `gorm:"foreignKey:HashtagID"`
	PostID    uint    `gorm:"not null;uniqueIndex:idx_hashtag_post"`
}

type Mention struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"not null;uniqueIndex:idx_mention_user_post"`
	User   User `gorm:"foreignKey:UserID"`
	PostID uint `gorm:"not null;uniqueIndex:idx_mention_user_post"`
}

type Like struct {
	ID       uint      `gorm:"primaryKey"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_like_user_post"`
	User     User      `gorm:"foreignKey:UserID"`
	PostID   uint      `gorm:"not null;uniqueIndex:idx_like_user_post"`
	CreateAt time.Time `gorm:"autoCreateTime"`
}

type Repost struct {
	ID       uint      `gorm:"primaryKey"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_repost_user_post"`
	User     User      `gorm:"foreignKey:UserID"`
	PostID   uint      `gorm:"not null;uniqueIndex:idx_repost_user_post"`
	CreateAt time.Time `gorm:"autoCreateTime"`
}

type Follow struct {
	ID          uint      `gorm:"primaryKey"`
	FollowerID  uint      `gorm:"not null;uniqueIndex:idx_follow_pair"`
	Follower    User      `gorm:"foreignKey:FollowerID"`
	FollowingID uint      `gorm:"not null;uniqueIndex:idx_follow_pair"`
	Following   User      `gorm:"foreignKey:FollowingID"`
	CreateAt    time.Time `gorm:"autoCreateTime"`
}

type Block struct {
	ID            uint      `gorm:"primaryKey"`
	BlockedByID   uint      `gorm:"not null;uniqueIndex:idx_block_pair"`
	BlockedUserID uint      `gorm:"not null;uniqueIndex:idx_block_pair"`
	BlockedUser   User      `gorm:"foreignKey:BlockedUserID"`
	Reason        string    `gorm:"size:500"`
	BlockAt       time.Time `gorm:"autoCreateTime"`
}

type Notification struct {
	ID               uint      `gorm:"primaryKey"`
	SenderID         uint      `gorm:"not null;index"`
	Sender           User      `gorm:"foreignKey:SenderID"`
	RecipientID      uint      `gorm:"not null;index"`
	NotificationType string    `gorm:"size:10;not null"`
	PostID           *uint     `gorm:"index"`
	Post             *Post     `gorm:"foreignKey:PostID"`
	Header           string    `gorm:"size:150;not null"`
	Message          *string
	IsRead           bool      `gorm:"not null"`
	CreateAt         time.Time `gorm:"autoCreateTime"`
	ModifyAt         time.Time `gorm:"autoUpdateTime"`
}

// RevokedToken records a refresh token id that may no longer be used.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey"`
	JTI       string    `gorm:"size:36;uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// All lists every table in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&PostReply{},
		&Poll{},
		&PollOption{},
		&Vote{},
		&Hashtag{},
		&HashtagUse{},
		&Mention{},
		&Like{},
		&Repost{},
		&Follow{},
		&Block{},
		&Notification{},
		&RevokedToken{},
	}
}
