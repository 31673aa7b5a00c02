package social

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"social/models"
)

type UserSummary struct {
	Username        string `json:"username"`
	UserHandle      string `json:"user_handle"`
	Biography       string `json:"biography"`
	ProfileImg      string `json:"profile_img"`
	FollowerAmount  int    `json:"follower_amount"`
	FollowingAmount int    `json:"following_amount"`
}

func summarize(u models.User) UserSummary {
	return UserSummary{
		Username:        u.Username,
		UserHandle:      u.UserHandle,
		Biography:       u.Biography,
		ProfileImg:      u.ProfileImg,
		FollowerAmount:  u.FollowerAmount,
		FollowingAmount: u.FollowingAmount,
	}
}

// Media holds exactly one kind: a video, up to four images, or a gif.
type Media struct {
	Video string `json:"video,omitempty"`
	Img1  string `json:"img1,omitempty"`
	Img2  string `json:"img2,omitempty"`
	Img3  string `json:"img3,omitempty"`
	Img4  string `json:"img4,omitempty"`
	Gif   string `json:"gif,omitempty"`
}

type OptionView struct {
	Option string `json:"option"`
	Votes  int    `json:"votes"`
}

type PollView struct {
	ID         uint         `json:"id"`
	TotalVotes int          `json:"total_votes"`
	EndTime    time.Time    `json:"end_time"`
	Options    []OptionView `json:"options"`
}

type HashtagView struct {
	Tag       string `json:"tag"`
	AmountUse int    `json:"amount_use"`
}

type PostView struct {
	ID            uint          `json:"id"`
	User          UserSummary   `json:"user"`
	Body          string        `json:"body"`
	Media         *Media        `json:"media,omitempty"`
	Poll          *PollView     `json:"poll,omitempty"`
	Hashtags      []HashtagView `json:"hashtags,omitempty"`
	Mentions      []UserSummary `json:"users-mention,omitempty"`
	Quote         *PostView     `json:"quote,omitempty"`
	NumReplies    int           `json:"num_replies"`
	NumRepost     int           `json:"num_repost"`
	NumLikes      int           `json:"num_likes"`
	NumViews      int           `json:"num_views"`
	DateToPublish time.Time     `json:"date_to_publish"`
	CreateAt      time.Time     `json:"create_at"`
}

// FeedItem is a bare post, or a post wrapped with the followee who liked or
// reposted it.
type FeedItem struct {
	Post     *PostView
	LikedBy  *UserSummary
	RepostBy *UserSummary
}

// PostID is the id of the post carried by the item, wrapped or not.
func (f FeedItem) PostID() uint {
	if f.Post == nil {
		return 0
	}
	return f.Post.ID
}

func (f FeedItem) MarshalJSON() ([]byte, error) {
	switch {
	case f.LikedBy != nil:
		return json.Marshal(struct {
			LikedBy *UserSummary `json:"liked_by"`
			Post    *PostView    `json:"post"`
		}{f.LikedBy, f.Post})
	case f.RepostBy != nil:
		return json.Marshal(struct {
			RepostBy *UserSummary `json:"repost_by"`
			Post     *PostView    `json:"post"`
		}{f.RepostBy, f.Post})
	default:
		return json.Marshal(f.Post)
	}
}

// withPostGraph preloads everything a PostView renders, including one level
// of quoted post.
func withPostGraph(db *gorm.DB) *gorm.DB {
	byID := func(db *gorm.DB) *gorm.DB { return db.Order("id") }
	return db.
		Preload("User").
		Preload("Poll.Options", byID).
		Preload("HashtagUses.Hashtag").
		Preload("Mentions.User").
		Preload("Quote.User").
		Preload("Quote.Poll.Options", byID).
		Preload("Quote.HashtagUses.Hashtag").
		Preload("Quote.Mentions.User")
}

// present renders a post. Quotes are expanded only when depth is zero so a
// quote of a quote is never followed.
func present(p *models.Post, depth int) *PostView {
	v := &PostView{
		ID:            p.ID,
		User:          summarize(p.User),
		Body:          p.Body,
		NumReplies:    p.NumReplies,
		NumRepost:     p.NumRepost,
		NumLikes:      p.NumLikes,
		NumViews:      p.NumViews,
		DateToPublish: p.DateToPublish,
		CreateAt:      p.CreateAt,
	}
	if p.HaveMedia {
		v.Media = &Media{Video: p.Video, Img1: p.Img1, Img2: p.Img2, Img3: p.Img3, Img4: p.Img4, Gif: p.Gif}
	}
	if p.Poll != nil {
		pv := &PollView{ID: p.Poll.ID, TotalVotes: p.Poll.TotalVotes, EndTime: p.Poll.EndTime}
		for _, o := range p.Poll.Options {
			pv.Options = append(pv.Options, OptionView{Option: o.Option, Votes: o.Votes})
		}
		v.Poll = pv
	}
	for _, hu := range p.HashtagUses {
		v.Hashtags = append(v.Hashtags, HashtagView{Tag: hu.Hashtag.Tag, AmountUse: hu.Hashtag.AmountUse})
	}
	for _, m := range p.Mentions {
		v.Mentions = append(v.Mentions, summarize(m.User))
	}
	if depth == 0 && p.Quote != nil {
		v.Quote = present(p.Quote, depth+1)
	}
	return v
}

// loadPosts fetches and renders posts by id, keyed by id.
func loadPosts(db *gorm.DB, ids []uint) (map[uint]*PostView, error) {
	out := make(map[uint]*PostView, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var posts []models.Post
	if err := withPostGraph(db).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, err
	}
	for i := range posts {
		out[posts[i].ID] = present(&posts[i], 0)
	}
	return out, nil
}

func loadUsers(db *gorm.DB, ids []uint) (map[uint]UserSummary, error) {
	out := make(map[uint]UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = summarize(u)
	}
	return out, nil
}
