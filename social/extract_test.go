package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"social/models"
)

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"#go", "#café", "#x_1"},
		candidates(hashtagPattern, "#Go and #go, #café! #x_1 # alone", true))
	assert.Equal(t, []string{"@ana", "@bob"},
		candidates(mentionPattern, "hi @ana @Bob and @ana again, mail@", true))
}

func TestExtractHashtagsIdempotent(t *testing.T) {
	f := newFixture(t)
	ana := f.user("ana")
	p1 := f.post(ana, "#Go is fun #golang", 2)
	p2 := f.post(ana, "more #go", 1)

	report, err := f.svc.ExtractHashtags(ctx, ana.ID, &p1.ID)
	require.NoError(t, err)
	assert.True(t, report.Created())
	assert.Len(t, report.Results, 2)

	report, err = f.svc.ExtractHashtags(ctx, ana.ID, &p1.ID)
	require.NoError(t, err)
	assert.False(t, report.Created())
	for _, r := range report.Results {
		assert.Equal(t, OutcomeSkipped, r.Outcome)
	}

	_, err = f.svc.ExtractHashtags(ctx, ana.ID, &p2.ID)
	require.NoError(t, err)

	var tag models.Hashtag
	require.NoError(t, f.db.Where("tag = ?", "#go").First(&tag).Error)
	assert.Equal(t, 2, tag.AmountUse)

	page, err := f.svc.ListHashtags(ctx, ana.ID, "", PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []HashtagView{{Tag: "#go", AmountUse: 2}, {Tag: "#golang", AmountUse: 1}}, page.Results)

	page, err = f.svc.ListHashtags(ctx, ana.ID, "LANG", PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)

	_, err = f.svc.ListHashtags(ctx, ana.ID, "rust", PageRequest{})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestExtractRequiresPost(t *testing.T) {
	f := newFixture(t)
	ana := f.user("ana")

	_, err := f.svc.ExtractHashtags(ctx, ana.ID, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "This field is required.", verr.Fields["post"])

	missing := uint(404)
	_, err = f.svc.ExtractMentions(ctx, ana.ID, &missing)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestExtractMentions(t *testing.T) {
	f := newFixture(t)
	ana, bob, cid, dan := f.user("ana"), f.user("bob"), f.user("cid"), f.user("dan")
	require.NoError(t, f.svc.Block(ctx, cid.ID, "ana", ""))
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", dan.ID).Update("is_active", false).Error)
	p := f.post(ana, "hey @bob @cid @dan @ghost", 1)

	report, err := f.svc.ExtractMentions(ctx, ana.ID, &p.ID)
	require.NoError(t, err)
	assert.True(t, report.Created())

	outcomes := map[string]ExtractResult{}
	for _, r := range report.Results {
		outcomes[r.Candidate] = r
	}
	assert.Equal(t, OutcomeCreated, outcomes["@bob"].Outcome)
	assert.Equal(t, "blocked", outcomes["@cid"].Reason)
	assert.Equal(t, "user not found", outcomes["@dan"].Reason)
	assert.Equal(t, "user not found", outcomes["@ghost"].Reason)

	assert.Equal(t, int64(1), f.count(&models.Mention{}, "post_id = ?", p.ID))
	assert.Equal(t, int64(1), f.count(&models.Notification{}, "recipient_id = ? AND notification_type = ?", bob.ID, models.NotifyMention))

	report, err = f.svc.ExtractMentions(ctx, ana.ID, &p.ID)
	require.NoError(t, err)
	assert.False(t, report.Created())
}

func TestRunCandidatesRetriesRacedInsert(t *testing.T) {
	f := newFixture(t)

	calls := map[string]int{}
	report, err := runCandidates(f.db, []string{"#raced", "#lost", "#dup"}, func(tx *gorm.DB, c string) error {
		calls[c]++
		switch c {
		case "#raced":
			if calls[c] == 1 {
				return errRace
			}
			return nil
		case "#lost":
			return errRace
		default:
			return gorm.ErrDuplicatedKey
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls["#raced"])
	assert.Equal(t, raceRetries+1, calls["#lost"])
	assert.Equal(t, []ExtractResult{
		{Candidate: "#raced", Outcome: OutcomeCreated},
		{Candidate: "#lost", Outcome: OutcomeSkipped, Reason: "created concurrently"},
		{Candidate: "#dup", Outcome: OutcomeSkipped, Reason: "duplicate"},
	}, report.Results)
}
