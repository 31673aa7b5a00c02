package social

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social/models"
)

func TestCreatePostMediaExclusive(t *testing.T) {
	f := newFixture(t)
	ana := f.user("ana")

	bad := []CreatePostInput{
		{Body: "x", Video: "/m/v.mp4", Gif: "/m/g.gif"},
		{Body: "x", Video: "/m/v.mp4", Images: []string{"/m/a.png"}},
		{Body: "x", Gif: "/m/g.gif", Images: []string{"/m/a.png"}},
		{Body: "x", Images: []string{"/m/1.png", "/m/2.png", "/m/3.png", "/m/4.png", "/m/5.png"}},
	}
	for _, in := range bad {
		_, err := f.svc.CreatePost(ctx, ana.ID, in)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "media")
	}
	assert.Zero(t, f.count(&models.Post{}, "1 = 1"))

	v, err := f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: "pics", Images: []string{"/m/1.png", "", "/m/2.png"}})
	require.NoError(t, err)
	require.NotNil(t, v.Media)
	assert.Equal(t, "/m/1.png", v.Media.Img1)
	assert.Equal(t, "/m/2.png", v.Media.Img2)
	assert.Empty(t, v.Media.Img3)
}

func TestCreatePostBody(t *testing.T) {
	f := newFixture(t)
	ana := f.user("ana")

	_, err := f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: "   "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "body")

	_, err = f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: strings.Repeat("é", models.MaxBodyLength+1)})
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: strings.Repeat("é", models.MaxBodyLength)})
	assert.NoError(t, err)

	_, err = f.svc.CreatePost(ctx, 0, CreatePostInput{Body: "hi"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreatePostMissingReferences(t *testing.T) {
	f := newFixture(t)
	ana := f.user("ana")
	missing := uint(999)

	_, err := f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: "q", QuoteID: &missing})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, `Invalid pk "999" - object does not exist.`, verr.Fields["quote"])

	_, err = f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: "r", ParentID: &missing})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "parent")
}

func TestReplyAndQuoteCounters(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	parent := f.post(ana, "parent", 10)

	reply, err := f.svc.CreatePost(ctx, bob.ID, CreatePostInput{Body: "reply", ParentID: &parent.ID})
	require.NoError(t, err)
	quote, err := f.svc.CreatePost(ctx, bob.ID, CreatePostInput{Body: "quote", QuoteID: &parent.ID})
	require.NoError(t, err)

	p := f.loadPost(parent.ID)
	assert.Equal(t, 1, p.NumReplies)
	assert.Equal(t, 1, p.NumRepost)
	assert.Equal(t, int64(1), f.count(&models.PostReply{}, "parent_id = ? AND reply_id = ?", parent.ID, reply.ID))
	assert.Equal(t, int64(1), f.count(&models.Notification{}, "recipient_id = ? AND notification_type = ?", ana.ID, models.NotifyReply))
	assert.Equal(t, int64(1), f.count(&models.Notification{}, "recipient_id = ? AND notification_type = ?", ana.ID, models.NotifyQuote))

	detail, err := f.svc.GetPost(ctx, bob.ID, parent.ID)
	require.NoError(t, err)
	require.Len(t, detail.Replies, 1)
	assert.Equal(t, reply.ID, detail.Replies[0].ID)
	assert.Equal(t, 1, f.loadPost(parent.ID).NumViews)

	require.NotNil(t, quote.Quote)
	assert.Equal(t, parent.ID, quote.Quote.ID)
}

func TestDeleteReplyRestoresParent(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	parent := f.post(ana, "parent", 10)
	reply, err := f.svc.CreatePost(ctx, bob.ID, CreatePostInput{Body: "reply #tag", ParentID: &parent.ID})
	require.NoError(t, err)
	_, err = f.svc.ExtractHashtags(ctx, bob.ID, &reply.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Like(ctx, ana.ID, reply.ID))

	require.NoError(t, f.svc.DeletePost(ctx, bob.ID, reply.ID))

	assert.Equal(t, 0, f.loadPost(parent.ID).NumReplies)
	assert.Zero(t, f.count(&models.PostReply{}, "reply_id = ?", reply.ID))
	assert.Zero(t, f.count(&models.Like{}, "post_id = ?", reply.ID))
	assert.Zero(t, f.count(&models.Post{}, "id = ?", reply.ID))

	var tag models.Hashtag
	require.NoError(t, f.db.Where("tag = ?", "#tag").First(&tag).Error)
	assert.Equal(t, 0, tag.AmountUse)
}

func TestDeleteQuotedPostNullsQuote(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	original := f.post(ana, "original", 10)
	quoting, err := f.svc.CreatePost(ctx, bob.ID, CreatePostInput{Body: "look", QuoteID: &original.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePost(ctx, ana.ID, original.ID))

	q := f.loadPost(quoting.ID)
	assert.Nil(t, q.QuoteID)
}

func TestDeleteQuotingPostDecrementsRepost(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	original := f.post(ana, "original", 10)
	quoting, err := f.svc.CreatePost(ctx, bob.ID, CreatePostInput{Body: "look", QuoteID: &original.ID})
	require.NoError(t, err)
	require.Equal(t, 1, f.loadPost(original.ID).NumRepost)

	require.NoError(t, f.svc.DeletePost(ctx, bob.ID, quoting.ID))
	assert.Equal(t, 0, f.loadPost(original.ID).NumRepost)
}

func TestDeletePollPost(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	v := f.pollPost(ana, "a", "b")
	require.NoError(t, f.svc.Vote(ctx, bob.ID, v.ID, "a"))

	require.NoError(t, f.svc.DeletePost(ctx, ana.ID, v.ID))
	assert.Zero(t, f.count(&models.Poll{}, "id = ?", v.Poll.ID))
	assert.Zero(t, f.count(&models.PollOption{}, "poll_id = ?", v.Poll.ID))
	assert.Zero(t, f.count(&models.Vote{}, "poll_id = ?", v.Poll.ID))
}

func TestDeletePostPermissions(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "mine", 1)

	var forbidden *ForbiddenError
	require.ErrorAs(t, f.svc.DeletePost(ctx, bob.ID, p.ID), &forbidden)

	var nf *NotFoundError
	require.ErrorAs(t, f.svc.DeletePost(ctx, ana.ID, 12345), &nf)
}

func TestGetPostVisibility(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user("ana"), f.user("bob")
	p := f.post(ana, "hello", 1)
	later := f.now.Add(time.Hour)
	scheduled, err := f.svc.CreatePost(ctx, ana.ID, CreatePostInput{Body: "soon", DateToPublish: &later})
	require.NoError(t, err)

	var nf *NotFoundError
	_, err = f.svc.GetPost(ctx, bob.ID, scheduled.ID)
	require.ErrorAs(t, err, &nf)
	_, err = f.svc.GetPost(ctx, ana.ID, scheduled.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Block(ctx, ana.ID, "bob", ""))
	_, err = f.svc.GetPost(ctx, bob.ID, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// The block only works in one direction.
	_, err = f.svc.GetPost(ctx, ana.ID, f.post(bob, "bob's", 1).ID)
	assert.NoError(t, err)
}
