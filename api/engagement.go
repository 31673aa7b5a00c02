package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"social/social"
)

func (s *Server) engagementList(w http.ResponseWriter, r *http.Request, label string,
	list func(ctx context.Context, viewer, postID uint) ([]social.UserSummary, error)) {
	viewer, ok := s.viewer(w, r, label)
	if !ok {
		return
	}
	users, err := list(r.Context(), viewer, postID(r))
	if err != nil {
		s.fail(w, r, label, err)
		return
	}
	s.ok(w, label, http.StatusOK, users)
}

func (s *Server) engagementChange(w http.ResponseWriter, r *http.Request, label string, status int, msg string,
	change func(ctx context.Context, viewer, postID uint) error) {
	viewer, ok := s.viewer(w, r, label)
	if !ok {
		return
	}
	id := postID(r)
	if err := change(r.Context(), viewer, id); err != nil {
		s.fail(w, r, label, err)
		return
	}
	s.log.WithFields(logrus.Fields{"user_id": viewer, "post_id": id}).Info(msg)
	s.ok(w, label, status, detail{msg})
}

func (s *Server) LikersHandler(w http.ResponseWriter, r *http.Request) {
	s.engagementList(w, r, "likers", s.svc.Likers)
}

func (s *Server) LikeHandler(w http.ResponseWriter, r *http.Request) {
	s.engagementChange(w, r, "like", http.StatusCreated, "Post liked.", s.svc.Like)
}

func (s *Server) UnlikeHandler(w http.ResponseWriter, r *http.Request) {
	s.engagementChange(w, r, "unlike", http.StatusOK, "Like removed.", s.svc.Unlike)
}

func (s *Server) RepostersHandler(w http.ResponseWriter, r *http.Request) {
	s.engagementList(w, r, "reposters", s.svc.Reposters)
}

func (s *Server) RepostHandler(w http.ResponseWriter, r *http.Request) {
	s.engagementChange(w, r, "repost", http.StatusCreated, "Post reposted.", s.svc.Repost)
}

func (s *Server) UnrepostHandler(w http.ResponseWriter, r *http.Request) {
	s.engagementChange(w, r, "unrepost", http.StatusOK, "Repost removed.", s.svc.Unrepost)
}
