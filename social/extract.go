package social

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"social/database"
	"social/models"
)

var (
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionPattern = regexp.MustCompile(`@[\p{L}\p{N}_]+`)
)

const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
)

// ExtractResult is the fate of one candidate tag or handle.
type ExtractResult struct {
	Candidate string `json:"candidate"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
}

// ExtractReport lists every candidate found in a post body.
type ExtractReport struct {
	Results []ExtractResult `json:"results"`
}

// Created reports whether at least one candidate produced a new row.
func (r ExtractReport) Created() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeCreated {
			return true
		}
	}
	return false
}

// errSkip marks an expected per-candidate condition; anything else aborts.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

// errRace marks a candidate whose shared row was inserted by a concurrent
// request after the lookup; the candidate is retried in a new transaction.
var errRace = errors.New("created concurrently")

const raceRetries = 2

// candidates returns the distinct pattern matches in body, in order.
func candidates(re *regexp.Regexp, body string, fold bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range re.FindAllString(body, -1) {
		if fold {
			m = strings.ToLower(m)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func (s *Service) extractionTarget(db *gorm.DB, viewer uint, postID *uint) (*models.Post, error) {
	if viewer == 0 {
		return nil, ErrUnauthenticated
	}
	if postID == nil {
		return nil, invalid("post", "This field is required.")
	}
	var post models.Post
	err := db.First(&post, *postID).Error
	if database.IsNotFound(err) {
		return nil, notFound("Post not found.")
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// runCandidates applies fn to each candidate in its own transaction and
// records whether it created something or was skipped.
func runCandidates(db *gorm.DB, list []string, fn func(tx *gorm.DB, c string) error) (ExtractReport, error) {
	report := ExtractReport{Results: []ExtractResult{}}
	for _, c := range list {
		var err error
		for attempt := 0; attempt <= raceRetries; attempt++ {
			err = db.Transaction(func(tx *gorm.DB) error { return fn(tx, c) })
			if !errors.Is(err, errRace) {
				break
			}
		}
		var skip errSkip
		switch {
		case err == nil:
			report.Results = append(report.Results, ExtractResult{Candidate: c, Outcome: OutcomeCreated})
		case errors.As(err, &skip):
			report.Results = append(report.Results, ExtractResult{Candidate: c, Outcome: OutcomeSkipped, Reason: skip.reason})
		case errors.Is(err, errRace):
			report.Results = append(report.Results, ExtractResult{Candidate: c, Outcome: OutcomeSkipped, Reason: errRace.Error()})
		case database.IsDuplicate(err):
			report.Results = append(report.Results, ExtractResult{Candidate: c, Outcome: OutcomeSkipped, Reason: "duplicate"})
		default:
			return report, err
		}
	}
	return report, nil
}

// ExtractHashtags links every #tag in the post body to the post, creating
// tags on first use and counting each new link.
func (s *Service) ExtractHashtags(ctx context.Context, viewer uint, postID *uint) (ExtractReport, error) {
	db := s.db.WithContext(ctx)
	post, err := s.extractionTarget(db, viewer, postID)
	if err != nil {
		return ExtractReport{}, err
	}

	report, err := runCandidates(db, candidates(hashtagPattern, post.Body, true), func(tx *gorm.DB, tag string) error {
		var h models.Hashtag
		err := tx.Where("tag = ?", tag).First(&h).Error
		switch {
		case database.IsNotFound(err):
			h = models.Hashtag{Tag: tag}
			if err := tx.Create(&h).Error; err != nil {
				if database.IsDuplicate(err) {
					return errRace
				}
				return err
			}
		case err != nil:
			return err
		}
		if err := tx.Create(&models.HashtagUse{HashtagID: h.ID, PostID: post.ID}).Error; err != nil {
			if database.IsDuplicate(err) {
				return errSkip{"already linked"}
			}
			return err
		}
		return tx.Model(&models.Hashtag{}).Where("id = ?", h.ID).
			UpdateColumn("amount_use", gorm.Expr("amount_use + ?", 1)).Error
	})
	if err != nil {
		return report, err
	}
	s.log.WithField("post", post.ID).WithField("candidates", len(report.Results)).Info("Hashtags extracted")
	return report, nil
}

// ExtractMentions links every @handle in the post body that names an active
// user with no block in either direction, and notifies them.
func (s *Service) ExtractMentions(ctx context.Context, viewer uint, postID *uint) (ExtractReport, error) {
	db := s.db.WithContext(ctx)
	post, err := s.extractionTarget(db, viewer, postID)
	if err != nil {
		return ExtractReport{}, err
	}
	var author models.User
	if err := db.First(&author, post.UserID).Error; err != nil {
		return ExtractReport{}, err
	}

	report, err := runCandidates(db, candidates(mentionPattern, post.Body, true), func(tx *gorm.DB, handle string) error {
		var target models.User
		err := tx.Where("user_handle = ? AND is_active = ?", strings.TrimPrefix(handle, "@"), true).First(&target).Error
		if database.IsNotFound(err) {
			return errSkip{"user not found"}
		}
		if err != nil {
			return err
		}
		blocked, err := blockedEitherWay(tx, author.ID, target.ID)
		if err != nil {
			return err
		}
		if blocked {
			return errSkip{"blocked"}
		}
		if err := tx.Create(&models.Mention{UserID: target.ID, PostID: post.ID}).Error; err != nil {
			if database.IsDuplicate(err) {
				return errSkip{"already linked"}
			}
			return err
		}
		return notify(tx, models.NotifyMention, author, target.ID, &post.ID)
	})
	if err != nil {
		return report, err
	}
	s.log.WithField("post", post.ID).WithField("candidates", len(report.Results)).Info("Mentions extracted")
	return report, nil
}

// ListHashtags returns tags by popularity, optionally filtered by a
// case-insensitive substring.
func (s *Service) ListHashtags(ctx context.Context, viewer uint, search string, pr PageRequest) (Page[HashtagView], error) {
	if viewer == 0 {
		return Page[HashtagView]{}, ErrUnauthenticated
	}
	q := s.db.WithContext(ctx).Model(&models.Hashtag{})
	if term := strings.TrimSpace(search); term != "" {
		q = q.Where("LOWER(tag) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%")
	}
	var tags []models.Hashtag
	if err := q.Order("amount_use DESC, id").Find(&tags).Error; err != nil {
		return Page[HashtagView]{}, err
	}
	if len(tags) == 0 {
		return Page[HashtagView]{}, notFound("No matching hashtags found.")
	}
	page, err := paginate(tags, pr)
	if err != nil {
		return Page[HashtagView]{}, err
	}
	return mapPage(page, func(h models.Hashtag) HashtagView {
		return HashtagView{Tag: h.Tag, AmountUse: h.AmountUse}
	}), nil
}
