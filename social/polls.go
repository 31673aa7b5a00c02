package social

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"social/database"
	"social/models"
)

// PollInput describes a poll attached to a new post. A nil EndTime means
// the default span from now.
type PollInput struct {
	Options []string
	EndTime *time.Time
}

// validatePoll checks options and end time and returns the trimmed option
// texts and the resolved end time.
func validatePoll(in *PollInput, now time.Time) ([]string, time.Time, error) {
	if len(in.Options) < models.MinPollOptions || len(in.Options) > models.MaxPollOptions {
		return nil, time.Time{}, invalid("options",
			fmt.Sprintf("A poll needs between %d and %d options.", models.MinPollOptions, models.MaxPollOptions))
	}
	seen := make(map[string]bool, len(in.Options))
	options := make([]string, 0, len(in.Options))
	for _, raw := range in.Options {
		opt := strings.TrimSpace(raw)
		switch {
		case opt == "":
			return nil, time.Time{}, invalid("options", "Options may not be blank.")
		case utf8.RuneCountInString(opt) > models.MaxOptionLength:
			return nil, time.Time{}, invalid("options",
				fmt.Sprintf("Ensure each option has no more than %d characters.", models.MaxOptionLength))
		case seen[opt]:
			return nil, time.Time{}, invalid("options", "Options must be unique.")
		}
		seen[opt] = true
		options = append(options, opt)
	}

	end := now.Add(models.DefaultPollSpan)
	if in.EndTime != nil {
		end = in.EndTime.UTC()
		if !end.After(now) {
			return nil, time.Time{}, invalid("end_time", "The end time must be in the future.")
		}
		if end.After(now.Add(models.MaxPollSpan)) {
			return nil, time.Time{}, invalid("end_time", "The poll duration cannot exceed 7 days.")
		}
	}
	return options, end, nil
}

// createPoll inserts the poll and its options for post inside tx.
func createPoll(tx *gorm.DB, postID uint, options []string, end time.Time) error {
	poll := models.Poll{PostID: postID, EndTime: end}
	if err := tx.Create(&poll).Error; err != nil {
		return err
	}
	for _, text := range options {
		if err := tx.Create(&models.PollOption{PollID: poll.ID, Option: text}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Vote records viewer's choice on the poll attached to postID. The vote row
// and both counters change in one transaction or not at all.
func (s *Service) Vote(ctx context.Context, viewer, postID uint, option string) error {
	if viewer == 0 {
		return ErrUnauthenticated
	}
	db := s.db.WithContext(ctx)

	var post models.Post
	err := db.Where("id = ? AND have_poll = ?", postID, true).First(&post).Error
	if database.IsNotFound(err) {
		return notFound("Post with poll not found.")
	}
	if err != nil {
		return err
	}
	if err := guardOwner(db, post.UserID, viewer); err != nil {
		return err
	}

	var poll models.Poll
	if err := db.Where("post_id = ?", post.ID).First(&poll).Error; err != nil {
		if database.IsNotFound(err) {
			return notFound("Post with poll not found.")
		}
		return err
	}

	var opt models.PollOption
	err = db.Where("poll_id = ? AND option = ?", poll.ID, strings.TrimSpace(option)).First(&opt).Error
	if database.IsNotFound(err) {
		return invalid("option", "Option not found.")
	}
	if err != nil {
		return err
	}

	var voted int64
	if err := db.Model(&models.Vote{}).Where("user_id = ? AND poll_id = ?", viewer, poll.ID).Count(&voted).Error; err != nil {
		return err
	}
	if voted > 0 {
		return &ConflictError{Msg: "You have already voted on an option of this poll."}
	}
	if poll.EndTime.Before(s.clock()) {
		return invalid("poll", "Voting for this poll has ended.")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Vote{UserID: viewer, PollID: poll.ID, OptionID: opt.ID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PollOption{}).Where("id = ?", opt.ID).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Model(&models.Poll{}).Where("id = ?", poll.ID).
			UpdateColumn("total_votes", gorm.Expr("total_votes + ?", 1)).Error
	})
	if database.IsDuplicate(err) {
		return &ConflictError{Msg: "You have already voted on an option of this poll."}
	}
	if err != nil {
		return err
	}

	s.log.WithField("poll", poll.ID).WithField("user", viewer).Info("Vote recorded")
	return nil
}
