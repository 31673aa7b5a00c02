//go:build integration

package database_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"social/database"
	"social/models"
	"social/social"
)

// setupPostgres starts a throwaway postgres and returns a migrated connection.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	db, err := database.Connect(database.Options{
		Host:     host,
		Port:     port.Port(),
		User:     "testuser",
		Password: "testpass",
		Name:     "testdb",
		SSLMode:  "disable",
	}, log)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestPostgresPollRoundTrip(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := social.New(db, log)

	users := make([]models.User, 2)
	for i, handle := range []string{"ana", "ben"} {
		users[i] = models.User{Username: handle, UserHandle: handle, Email: handle + "@x.io", PWHash: "x", IsActive: true}
		require.NoError(t, db.Create(&users[i]).Error)
	}

	post, err := svc.CreatePost(ctx, users[0].ID, social.CreatePostInput{
		Body: "100% #postgres?",
		Poll: &social.PollInput{Options: []string{"yes", "no"}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Vote(ctx, users[1].ID, post.ID, "yes"))
	err = svc.Vote(ctx, users[1].ID, post.ID, "no")
	var conflict *social.ConflictError
	assert.ErrorAs(t, err, &conflict)

	var poll models.Poll
	require.NoError(t, db.Preload("Options").Where("post_id = ?", post.ID).First(&poll).Error)
	assert.Equal(t, 1, poll.TotalVotes)

	page, err := svc.Feed(ctx, users[1].ID, social.FeedQuery{Search: "100%"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	assert.Equal(t, post.ID, page.Results[0].PostID())

	err = db.Create(&models.Follow{FollowerID: users[0].ID, FollowingID: users[1].ID}).Error
	require.NoError(t, err)
	err = db.Create(&models.Follow{FollowerID: users[0].ID, FollowingID: users[1].ID}).Error
	assert.True(t, database.IsDuplicate(err))
}
