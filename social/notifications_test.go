package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social/models"
)

func TestListNotificationsMarksRead(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "hello", 1)
	f.follow(bob, ana)
	require.NoError(t, f.svc.Like(ctx, bob.ID, p.ID))

	list, err := f.svc.ListNotifications(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.NotifyLike, list[0].NotificationType, "newest first")
	assert.Equal(t, models.NotifyFollow, list[1].NotificationType)
	assert.Equal(t, "@bob liked your post.", list[0].Header)
	require.NotNil(t, list[0].Post)
	assert.Equal(t, p.ID, list[0].Post.ID)
	assert.Nil(t, list[1].Post)
	for _, n := range list {
		assert.False(t, n.IsRead)
		assert.Equal(t, "bob", n.Sender.UserHandle)
	}

	assert.Zero(t, f.count(&models.Notification{}, "recipient_id = ? AND is_read = ?", ana.ID, false))

	list, err = f.svc.ListNotifications(ctx, ana.ID)
	require.NoError(t, err)
	for _, n := range list {
		assert.True(t, n.IsRead)
	}

	empty, err := f.svc.ListNotifications(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
