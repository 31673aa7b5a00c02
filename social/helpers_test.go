package social

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"social/database"
	"social/models"
)

var ctx = context.Background()

type fixture struct {
	t   *testing.T
	db  *gorm.DB
	svc *Service
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.Connect(database.Options{Path: filepath.Join(t.TempDir(), "social.db")}, log)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &fixture{t: t, db: db, now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = New(db, log, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) user(handle string) models.User {
	f.t.Helper()
	u := models.User{
		Username:   handle,
		UserHandle: handle,
		Email:      handle + "@example.com",
		PWHash:     "x",
		IsActive:   true,
	}
	require.NoError(f.t, f.db.Create(&u).Error)
	return u
}

// post creates a post published minutesAgo before the fixture clock.
func (f *fixture) post(author models.User, body string, minutesAgo int) *PostView {
	f.t.Helper()
	at := f.now.Add(-time.Duration(minutesAgo) * time.Minute)
	v, err := f.svc.CreatePost(ctx, author.ID, CreatePostInput{Body: body, DateToPublish: &at})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) reload(u models.User) models.User {
	f.t.Helper()
	var out models.User
	require.NoError(f.t, f.db.First(&out, u.ID).Error)
	return out
}

func (f *fixture) loadPost(id uint) models.Post {
	f.t.Helper()
	var out models.Post
	require.NoError(f.t, f.db.First(&out, id).Error)
	return out
}

func (f *fixture) follow(a, b models.User) {
	f.t.Helper()
	require.NoError(f.t, f.svc.Follow(ctx, a.ID, b.UserHandle))
}

func (f *fixture) count(model interface{}, query string, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func feedIDs(items []FeedItem) []uint {
	out := make([]uint, 0, len(items))
	for _, it := range items {
		out = append(out, it.PostID())
	}
	return out
}
