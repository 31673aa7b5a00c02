package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"social/social"
)

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in social.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, "register", err)
		return
	}
	s.log.WithField("user_handle", in.UserHandle).Debug("Validating registration input")

	prof, err := s.svc.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	s.ok(w, "register", http.StatusCreated, prof)
}

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler issues a token pair and keeps the refresh token in the
// session cookie as well.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "login", err)
		return
	}
	login := req.Login
	if login == "" {
		login = req.Email
	}

	user, err := s.svc.Authenticate(r.Context(), login, req.Password)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	pair, err := s.issuer.Issue(user.ID)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	if err := s.saveRefresh(w, r, pair.Refresh); err != nil {
		s.log.WithError(err).Warn("Failed to save session")
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID}).Info("User logged in")
	s.ok(w, "login", http.StatusOK, pair)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// refreshToken takes the token from the body, falling back to the session.
// A body that is present but not valid JSON is an error.
func (s *Server) refreshToken(r *http.Request) (string, error) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			return "", err
		}
	}
	if req.Refresh != "" {
		return req.Refresh, nil
	}
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return "", nil
	}
	token, _ := session.Values["refresh"].(string)
	return token, nil
}

func (s *Server) saveRefresh(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := s.store.Get(r, sessionName)
	if token == "" {
		session.Options.MaxAge = -1
		delete(session.Values, "refresh")
	} else {
		session.Values["refresh"] = token
	}
	return session.Save(r, w)
}

func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	token, err := s.refreshToken(r)
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	if token == "" {
		s.fail(w, r, "refresh", &social.ValidationError{Fields: map[string]string{"refresh": "This field is required."}})
		return
	}
	pair, userID, err := s.issuer.Refresh(r.Context(), token)
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	active, err := s.svc.ActiveUser(r.Context(), userID)
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	if !active {
		s.fail(w, r, "refresh", social.ErrInvalidCredentials)
		return
	}
	if err := s.saveRefresh(w, r, pair.Refresh); err != nil {
		s.log.WithError(err).Warn("Failed to save session")
	}
	s.ok(w, "refresh", http.StatusOK, pair)
}

func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token, err := s.refreshToken(r)
	if err != nil {
		s.fail(w, r, "logout", err)
		return
	}
	if token == "" {
		s.fail(w, r, "logout", &social.ValidationError{Fields: map[string]string{"refresh": "This field is required."}})
		return
	}
	if err := s.issuer.Revoke(r.Context(), token); err != nil {
		s.fail(w, r, "logout", err)
		return
	}
	if err := s.saveRefresh(w, r, ""); err != nil {
		s.log.WithError(err).Warn("Failed to clear session")
	}
	s.ok(w, "logout", http.StatusOK, detail{"Logged out."})
}

func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "list_users")
	if !ok {
		return
	}
	page, err := s.svc.ListUsers(r.Context(), viewer, r.URL.Query().Get("search"), pageRequest(r))
	if err != nil {
		s.fail(w, r, "list_users", err)
		return
	}
	s.ok(w, "list_users", http.StatusOK, toWire(r, page))
}

func (s *Server) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "get_user")
	if !ok {
		return
	}
	prof, err := s.svc.GetUser(r.Context(), viewer, mux.Vars(r)["handle"])
	if err != nil {
		s.fail(w, r, "get_user", err)
		return
	}
	s.ok(w, "get_user", http.StatusOK, prof)
}

// UpdateUserHandler serves both PUT and PATCH; either way only the fields
// present in the body change.
func (s *Server) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "update_user")
	if !ok {
		return
	}
	var in social.UpdateUserInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, "update_user", err)
		return
	}
	prof, err := s.svc.UpdateUser(r.Context(), viewer, mux.Vars(r)["handle"], in)
	if err != nil {
		s.fail(w, r, "update_user", err)
		return
	}
	s.ok(w, "update_user", http.StatusOK, prof)
}

func (s *Server) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "delete_user")
	if !ok {
		return
	}
	if err := s.svc.DeleteUser(r.Context(), viewer, mux.Vars(r)["handle"]); err != nil {
		s.fail(w, r, "delete_user", err)
		return
	}
	if err := s.saveRefresh(w, r, ""); err != nil {
		s.log.WithError(err).Warn("Failed to clear session")
	}
	s.ok(w, "delete_user", http.StatusOK, detail{"User has been deleted."})
}

func (s *Server) CheckAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := s.svc.CheckAvailability(r.Context(), vars["field"], vars["value"])
	if err != nil {
		s.fail(w, r, "check_availability", err)
		return
	}
	s.ok(w, "check_availability", http.StatusOK, res)
}

type passwordMatchRequest struct {
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

func (s *Server) PasswordMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req passwordMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "password_match", err)
		return
	}
	match, err := social.PasswordsMatch(req.Password, req.Password2)
	if err != nil {
		s.fail(w, r, "password_match", err)
		return
	}
	s.ok(w, "password_match", http.StatusOK, map[string]bool{"match": match})
}

func (s *Server) PasswordChangeHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "password_change")
	if !ok {
		return
	}
	var in social.PasswordChangeInput
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, "password_change", err)
		return
	}
	if err := s.svc.ChangePassword(r.Context(), viewer, in); err != nil {
		s.fail(w, r, "password_change", err)
		return
	}
	s.ok(w, "password_change", http.StatusOK, detail{"Password changed successfully."})
}
