package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"social/social"
)

type followRequest struct {
	Following string `json:"following"`
}

func (s *Server) FollowHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "follow")
	if !ok {
		return
	}
	var req followRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "follow", err)
		return
	}
	if req.Following == "" {
		s.fail(w, r, "follow", &social.ValidationError{Fields: map[string]string{"following": "This field is required."}})
		return
	}
	if err := s.svc.Follow(r.Context(), viewer, req.Following); err != nil {
		s.fail(w, r, "follow", err)
		return
	}

	s.metrics.FollowRequests.WithLabelValues("/follows").Inc()
	s.log.WithFields(logrus.Fields{"user_id": viewer, "following": req.Following}).Info("Follow created")
	s.ok(w, "follow", http.StatusCreated, detail{"You are now following @" + req.Following + "."})
}

func (s *Server) UnfollowHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "unfollow")
	if !ok {
		return
	}
	handle := mux.Vars(r)["handle"]
	if err := s.svc.Unfollow(r.Context(), viewer, handle); err != nil {
		s.fail(w, r, "unfollow", err)
		return
	}

	s.metrics.UnfollowRequests.WithLabelValues("/follows/{handle}").Inc()
	s.log.WithFields(logrus.Fields{"user_id": viewer, "following": handle}).Info("Follow removed")
	s.ok(w, "unfollow", http.StatusOK, detail{"You are no longer following @" + handle + "."})
}

func (s *Server) FollowersHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "followers")
	if !ok {
		return
	}
	users, err := s.svc.Followers(r.Context(), viewer, mux.Vars(r)["handle"])
	if err != nil {
		s.fail(w, r, "followers", err)
		return
	}
	s.ok(w, "followers", http.StatusOK, users)
}

func (s *Server) FollowingsHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "followings")
	if !ok {
		return
	}
	users, err := s.svc.Followings(r.Context(), viewer, mux.Vars(r)["handle"])
	if err != nil {
		s.fail(w, r, "followings", err)
		return
	}
	s.ok(w, "followings", http.StatusOK, users)
}

type blockRequest struct {
	BlockedUser string `json:"blocked_user"`
	Reason      string `json:"reason"`
}

func (s *Server) BlockHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "block")
	if !ok {
		return
	}
	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "block", err)
		return
	}
	if req.BlockedUser == "" {
		s.fail(w, r, "block", &social.ValidationError{Fields: map[string]string{"blocked_user": "This field is required."}})
		return
	}
	if err := s.svc.Block(r.Context(), viewer, req.BlockedUser, req.Reason); err != nil {
		s.fail(w, r, "block", err)
		return
	}
	s.ok(w, "block", http.StatusCreated, detail{"User blocked."})
}

func (s *Server) UnblockHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "unblock")
	if !ok {
		return
	}
	if err := s.svc.Unblock(r.Context(), viewer, mux.Vars(r)["handle"]); err != nil {
		s.fail(w, r, "unblock", err)
		return
	}
	s.ok(w, "unblock", http.StatusOK, detail{"User unblocked."})
}

func (s *Server) ListBlocksHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "list_blocks")
	if !ok {
		return
	}
	list, err := s.svc.ListBlocks(r.Context(), viewer)
	if err != nil {
		s.fail(w, r, "list_blocks", err)
		return
	}
	s.ok(w, "list_blocks", http.StatusOK, list)
}
