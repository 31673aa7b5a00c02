package social

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social/models"
)

func TestLikeLifecycle(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "like me", 1)

	require.NoError(t, f.svc.Like(ctx, bob.ID, p.ID))
	assert.Equal(t, 1, f.loadPost(p.ID).NumLikes)

	var conflict *ConflictError
	require.ErrorAs(t, f.svc.Like(ctx, bob.ID, p.ID), &conflict)
	assert.Equal(t, "You've already liked this post.", conflict.Msg)
	assert.Equal(t, 1, f.loadPost(p.ID).NumLikes)
	assert.Equal(t, int64(1), f.count(&models.Like{}, "post_id = ?", p.ID))

	likers, err := f.svc.Likers(ctx, ana.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, likers, 1)
	assert.Equal(t, "bob", likers[0].UserHandle)

	require.NoError(t, f.svc.Unlike(ctx, bob.ID, p.ID))
	assert.Equal(t, 0, f.loadPost(p.ID).NumLikes)

	var nf *NotFoundError
	require.ErrorAs(t, f.svc.Unlike(ctx, bob.ID, p.ID), &nf)
	assert.Equal(t, "You have not liked this post.", nf.Msg)
	assert.Equal(t, 0, f.loadPost(p.ID).NumLikes)
}

func TestRepostLifecycle(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "share me", 1)

	require.NoError(t, f.svc.Repost(ctx, bob.ID, p.ID))
	var conflict *ConflictError
	require.ErrorAs(t, f.svc.Repost(ctx, bob.ID, p.ID), &conflict)
	assert.Equal(t, 1, f.loadPost(p.ID).NumRepost)

	reposters, err := f.svc.Reposters(ctx, bob.ID, p.ID)
	require.NoError(t, err)
	assert.Len(t, reposters, 1)

	require.NoError(t, f.svc.Unrepost(ctx, bob.ID, p.ID))
	assert.Equal(t, 0, f.loadPost(p.ID).NumRepost)
}

func TestEngagementNotifications(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "hello", 1)

	require.NoError(t, f.svc.Like(ctx, ana.ID, p.ID))
	assert.Zero(t, f.count(&models.Notification{}, "1 = 1"), "liking your own post notifies nobody")

	require.NoError(t, f.svc.Like(ctx, bob.ID, p.ID))
	require.NoError(t, f.svc.Repost(ctx, bob.ID, p.ID))
	assert.Equal(t, int64(1), f.count(&models.Notification{}, "recipient_id = ? AND notification_type = ?", ana.ID, models.NotifyLike))
	assert.Equal(t, int64(1), f.count(&models.Notification{}, "recipient_id = ? AND notification_type = ?", ana.ID, models.NotifyRepost))
}

func TestEngagementBlocked(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "hello", 1)
	require.NoError(t, f.svc.Like(ctx, bob.ID, p.ID))
	require.NoError(t, f.svc.Block(ctx, ana.ID, "bob", ""))

	assert.ErrorIs(t, f.svc.Unlike(ctx, bob.ID, p.ID), ErrForbidden)
	assert.ErrorIs(t, f.svc.Repost(ctx, bob.ID, p.ID), ErrForbidden)
	_, err := f.svc.Likers(ctx, bob.ID, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	var nf *NotFoundError
	require.ErrorAs(t, f.svc.Like(ctx, bob.ID, 999), &nf)
	assert.Equal(t, "Post not found.", nf.Msg)
}

func TestConcurrentLikes(t *testing.T) {
	f := newFixture(t)
	ana := f.user("ana")
	p := f.post(ana, "popular", 1)

	const n = 8
	fans := make([]models.User, n)
	for i := range fans {
		fans[i] = f.user(fmt.Sprintf("fan%d", i))
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, fan := range fans {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			errs[i] = f.svc.Like(ctx, id, p.ID)
		}(i, fan.ID)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "fan%d", i)
	}
	assert.Equal(t, n, f.loadPost(p.ID).NumLikes)
	assert.EqualValues(t, n, f.count(&models.Like{}, "post_id = ?", p.ID))
}
