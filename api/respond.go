package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"social/auth"
	"social/media"
	"social/social"
)

func Error() string {
	return "An error occurred."
}

type detail struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

// statusFor maps a domain error to its HTTP status and response body.
func statusFor(err error) (int, interface{}) {
	var (
		verr      *social.ValidationError
		notFound  *social.NotFoundError
		conflict  *social.ConflictError
		forbidden *social.ForbiddenError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Fields
	case errors.As(err, &notFound):
		return http.StatusNotFound, detail{notFound.Msg}
	case errors.As(err, &conflict):
		return http.StatusConflict, detail{conflict.Msg}
	case errors.As(err, &forbidden):
		return http.StatusForbidden, detail{forbidden.Msg}
	case errors.Is(err, social.ErrUnauthenticated),
		errors.Is(err, social.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrRevokedToken):
		return http.StatusUnauthorized, detail{err.Error()}
	case errors.Is(err, media.ErrUnsupported):
		return http.StatusBadRequest, map[string]string{"media": err.Error()}
	default:
		return http.StatusInternalServerError, detail{Error()}
	}
}

// fail writes err as a response and counts it against label.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, label string, err error) {
	status, body := statusFor(err)
	entry := s.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.WithField("reason", err.Error()).Info("Request rejected")
	}
	s.metrics.BadRequests.WithLabelValues(label).Inc()
	writeJSON(w, status, body)
}

func (s *Server) ok(w http.ResponseWriter, label string, status int, body interface{}) {
	s.metrics.SuccessfulRequests.WithLabelValues(label).Inc()
	writeJSON(w, status, body)
}

// noContent answers 204 with an empty body.
func (s *Server) noContent(w http.ResponseWriter, label string) {
	s.metrics.SuccessfulRequests.WithLabelValues(label).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &social.ValidationError{Fields: map[string]string{"non_field_errors": "Malformed JSON body."}}
	}
	return nil
}

// pageRequest reads page and page_size from the query string.
func pageRequest(r *http.Request) social.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return social.PageRequest{Page: page, PageSize: size}
}

// paginated is the wire form of a page, with next and previous as links.
type paginated[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func pageLink(r *http.Request, page int) *string {
	if page == 0 {
		return nil
	}
	u := url.URL{Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	link := u.String()
	return &link
}

func toWire[T any](r *http.Request, p social.Page[T]) paginated[T] {
	return paginated[T]{
		Count:    p.Count,
		Next:     pageLink(r, p.Next),
		Previous: pageLink(r, p.Previous),
		Results:  p.Results,
	}
}
