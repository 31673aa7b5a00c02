package api

import (
	"context"
	"net/http"

	"social/social"
)

type extractRequest struct {
	Post *uint `json:"post"`
}

func (s *Server) ListHashtagsHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "list_hashtags")
	if !ok {
		return
	}
	page, err := s.svc.ListHashtags(r.Context(), viewer, r.URL.Query().Get("search"), pageRequest(r))
	if err != nil {
		s.fail(w, r, "list_hashtags", err)
		return
	}
	s.ok(w, "list_hashtags", http.StatusOK, toWire(r, page))
}

// extract answers 201 when at least one candidate was stored and 200 when
// every candidate was skipped.
func (s *Server) extract(w http.ResponseWriter, r *http.Request, label string,
	run func(ctx context.Context, viewer uint, postID *uint) (social.ExtractReport, error)) {
	viewer, ok := s.viewer(w, r, label)
	if !ok {
		return
	}
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, label, err)
		return
	}
	report, err := run(r.Context(), viewer, req.Post)
	if err != nil {
		s.fail(w, r, label, err)
		return
	}
	status := http.StatusOK
	if report.Created() {
		status = http.StatusCreated
	}
	s.ok(w, label, status, report)
}

func (s *Server) ExtractHashtagsHandler(w http.ResponseWriter, r *http.Request) {
	s.extract(w, r, "extract_hashtags", s.svc.ExtractHashtags)
}

func (s *Server) ExtractMentionsHandler(w http.ResponseWriter, r *http.Request) {
	s.extract(w, r, "extract_mentions", s.svc.ExtractMentions)
}

func (s *Server) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "notifications")
	if !ok {
		return
	}
	list, err := s.svc.ListNotifications(r.Context(), viewer)
	if err != nil {
		s.fail(w, r, "notifications", err)
		return
	}
	s.ok(w, "notifications", http.StatusOK, list)
}
