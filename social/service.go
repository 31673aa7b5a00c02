// Package social holds the domain rules: feed composition, polls, posts,
// engagement, hashtag and mention extraction, follows, blocks and
// notifications. Every operation takes the acting user explicitly.
package social

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log logrus.FieldLogger
	now func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(db *gorm.DB, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		db:  db,
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}
