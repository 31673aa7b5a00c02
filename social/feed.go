package social

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"social/models"
)

type FeedQuery struct {
	Search string
	PageRequest
}

// feedEntry is a feed position before hydration. actor is the followee who
// liked or reposted the post, if any.
type feedEntry struct {
	postID uint
	kind   string
	actor  uint
}

const (
	entryPost   = "post"
	entryLiked  = "liked"
	entryRepost = "repost"
)

// Feed composes the viewer's feed. With a search term it returns matching
// posts from authors the viewer has not blocked. Otherwise followees' posts
// come first, then posts they liked, then posts they reposted, then
// everything else. Every post on the returned page gets one view.
func (s *Service) Feed(ctx context.Context, viewer uint, q FeedQuery) (Page[FeedItem], error) {
	if viewer == 0 {
		return Page[FeedItem]{}, ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)
	now := s.clock()

	var (
		entries []feedEntry
		err     error
	)
	if term := strings.TrimSpace(q.Search); term != "" {
		entries, err = searchEntries(db, viewer, term)
		if err != nil {
			return Page[FeedItem]{}, err
		}
		if len(entries) == 0 {
			return Page[FeedItem]{}, notFound("Not found post that contains %s.", term)
		}
	} else {
		entries, err = rankedEntries(db, viewer, now)
		if err != nil {
			return Page[FeedItem]{}, err
		}
	}

	page, err := paginate(entries, q.PageRequest)
	if err != nil {
		return Page[FeedItem]{}, err
	}
	items, err := hydrate(db, page.Results)
	if err != nil {
		return Page[FeedItem]{}, err
	}
	out := Page[FeedItem]{Count: page.Count, Next: page.Next, Previous: page.Previous, Results: items}

	if err := addViews(db, items); err != nil {
		return Page[FeedItem]{}, err
	}
	s.log.WithField("viewer", viewer).WithField("count", len(items)).Debug("Feed composed")
	return out, nil
}

func searchEntries(db *gorm.DB, viewer uint, term string) ([]feedEntry, error) {
	var ids []uint
	err := db.Model(&models.Post{}).
		Where("LOWER(body) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%").
		Where("user_id NOT IN (?)", blockedByViewer(db, viewer)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return postEntries(ids), nil
}

func rankedEntries(db *gorm.DB, viewer uint, now time.Time) ([]feedEntry, error) {
	var following int64
	if err := db.Model(&models.Follow{}).Where("follower_id = ?", viewer).Count(&following).Error; err != nil {
		return nil, err
	}

	published := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("posts.date_to_publish <= ?", now)
	}

	if following == 0 {
		var ids []uint
		if err := db.Model(&models.Post{}).Scopes(published).
			Order("posts.date_to_publish DESC, posts.id DESC").
			Pluck("posts.id", &ids).Error; err != nil {
			return nil, err
		}
		return postEntries(ids), nil
	}

	seen := map[uint]bool{}
	var entries []feedEntry

	var own []uint
	if err := db.Model(&models.Post{}).Scopes(published).
		Where("posts.user_id IN (?)", followeesOf(db, viewer)).
		Order("posts.date_to_publish DESC, posts.id DESC").
		Pluck("posts.id", &own).Error; err != nil {
		return nil, err
	}
	for _, id := range own {
		seen[id] = true
		entries = append(entries, feedEntry{postID: id, kind: entryPost})
	}

	type engagement struct {
		UserID uint
		PostID uint
	}
	engaged := func(table, kind string) error {
		var rows []engagement
		err := db.Table(table).
			Select(table+".user_id, "+table+".post_id").
			Joins("JOIN posts ON posts.id = "+table+".post_id").
			Scopes(published).
			Where(table+".user_id IN (?)", followeesOf(db, viewer)).
			Where("posts.user_id NOT IN (?)", blockedByViewer(db, viewer)).
			Order(table + ".id DESC").
			Scan(&rows).Error
		if err != nil {
			return err
		}
		for _, r := range rows {
			if seen[r.PostID] {
				continue
			}
			seen[r.PostID] = true
			entries = append(entries, feedEntry{postID: r.PostID, kind: kind, actor: r.UserID})
		}
		return nil
	}
	if err := engaged("likes", entryLiked); err != nil {
		return nil, err
	}
	if err := engaged("reposts", entryRepost); err != nil {
		return nil, err
	}

	var rest []uint
	if err := db.Model(&models.Post{}).Scopes(published).
		Where("posts.user_id NOT IN (?)", blockedByViewer(db, viewer)).
		Order("posts.date_to_publish DESC, posts.id DESC").
		Pluck("posts.id", &rest).Error; err != nil {
		return nil, err
	}
	for _, id := range rest {
		if seen[id] {
			continue
		}
		seen[id] = true
		entries = append(entries, feedEntry{postID: id, kind: entryPost})
	}
	return entries, nil
}

func postEntries(ids []uint) []feedEntry {
	out := make([]feedEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, feedEntry{postID: id, kind: entryPost})
	}
	return out
}

func hydrate(db *gorm.DB, entries []feedEntry) ([]FeedItem, error) {
	var postIDs, actorIDs []uint
	for _, e := range entries {
		postIDs = append(postIDs, e.postID)
		if e.actor != 0 {
			actorIDs = append(actorIDs, e.actor)
		}
	}
	posts, err := loadPosts(db, postIDs)
	if err != nil {
		return nil, err
	}
	actors, err := loadUsers(db, actorIDs)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(entries))
	for _, e := range entries {
		p, ok := posts[e.postID]
		if !ok {
			continue
		}
		item := FeedItem{Post: p}
		if a, ok := actors[e.actor]; ok {
			switch e.kind {
			case entryLiked:
				item.LikedBy = &a
			case entryRepost:
				item.RepostBy = &a
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// addViews counts one view per distinct post in items.
func addViews(db *gorm.DB, items []FeedItem) error {
	seen := map[uint]bool{}
	var ids []uint
	for _, it := range items {
		id := it.PostID()
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&models.Post{}).Where("id IN ?", ids).
		UpdateColumn("num_views", gorm.Expr("num_views + ?", 1)).Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
