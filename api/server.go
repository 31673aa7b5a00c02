// Package api exposes the social service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"social/auth"
	"social/media"
	"social/social"
)

const (
	sessionName   = "social-session"
	sessionMaxAge = 3600 * 16
	slowRequest   = 2 * time.Second
)

type Server struct {
	svc      *social.Service
	issuer   *auth.Issuer
	store    *sessions.CookieStore
	media    *media.DiskStore
	metrics  *Metrics
	registry *prometheus.Registry
	log      logrus.FieldLogger
}

type Deps struct {
	Service    *social.Service
	Issuer     *auth.Issuer
	Media      *media.DiskStore
	SessionKey []byte
	Logger     logrus.FieldLogger
}

func NewServer(d Deps) *Server {
	store := sessions.NewCookieStore(d.SessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	reg := prometheus.NewRegistry()
	return &Server{
		svc:      d.Service,
		issuer:   d.Issuer,
		store:    store,
		media:    d.Media,
		metrics:  InitMetrics(reg),
		registry: reg,
		log:      d.Logger,
	}
}

// Router wires every route. Routes registered for some methods answer
// other methods with 405.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, detail{"Method \"" + r.Method + "\" not allowed."})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, detail{"Not found."})
	})
	r.Use(s.afterRequestLogging)
	r.Use(s.issuer.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		s.fail(w, r, "auth", err)
	}))

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/users", s.RegisterHandler).Methods(http.MethodPost)
	r.HandleFunc("/users", s.ListUsersHandler).Methods(http.MethodGet)
	r.HandleFunc("/users/check-field-availability/{field}/{value}", s.CheckAvailabilityHandler).Methods(http.MethodGet)
	r.HandleFunc("/users/{handle}", s.GetUserHandler).Methods(http.MethodGet)
	r.HandleFunc("/users/{handle}", s.UpdateUserHandler).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/users/{handle}", s.DeleteUserHandler).Methods(http.MethodDelete)
	r.HandleFunc("/check-password-match", s.PasswordMatchHandler).Methods(http.MethodPost)
	r.HandleFunc("/password-change", s.PasswordChangeHandler).Methods(http.MethodPost)
	r.HandleFunc("/token", s.LoginHandler).Methods(http.MethodPost)
	r.HandleFunc("/token/refresh", s.RefreshHandler).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.LogoutHandler).Methods(http.MethodPost)

	r.HandleFunc("/posts", s.FeedHandler).Methods(http.MethodGet)
	r.HandleFunc("/posts", s.CreatePostHandler).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id:[0-9]+}", s.GetPostHandler).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id:[0-9]+}", s.DeletePostHandler).Methods(http.MethodDelete)
	r.HandleFunc("/posts/{id:[0-9]+}/likes", s.LikersHandler).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id:[0-9]+}/likes", s.LikeHandler).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id:[0-9]+}/likes", s.UnlikeHandler).Methods(http.MethodDelete)
	r.HandleFunc("/posts/{id:[0-9]+}/reposts", s.RepostersHandler).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id:[0-9]+}/reposts", s.RepostHandler).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id:[0-9]+}/reposts", s.UnrepostHandler).Methods(http.MethodDelete)
	r.HandleFunc("/posts/{id:[0-9]+}/votepoll", s.VoteHandler).Methods(http.MethodPost)

	r.HandleFunc("/hashtags", s.ListHashtagsHandler).Methods(http.MethodGet)
	r.HandleFunc("/hashtags", s.ExtractHashtagsHandler).Methods(http.MethodPost)
	r.HandleFunc("/user-mention", s.ExtractMentionsHandler).Methods(http.MethodPost)

	r.HandleFunc("/notifications", s.NotificationsHandler).Methods(http.MethodGet)

	r.HandleFunc("/follows", s.FollowHandler).Methods(http.MethodPost)
	r.HandleFunc("/follows/{handle}", s.UnfollowHandler).Methods(http.MethodDelete)
	r.HandleFunc("/follows/{handle}/followers", s.FollowersHandler).Methods(http.MethodGet)
	r.HandleFunc("/follows/{handle}/followings", s.FollowingsHandler).Methods(http.MethodGet)

	r.HandleFunc("/block", s.ListBlocksHandler).Methods(http.MethodGet)
	r.HandleFunc("/block", s.BlockHandler).Methods(http.MethodPost)
	r.HandleFunc("/block/{handle}", s.UnblockHandler).Methods(http.MethodDelete)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) afterRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(duration.Seconds())

		fields := logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    rec.status,
			"duration":  duration,
			"remote_ip": r.RemoteAddr,
		}
		if duration > slowRequest {
			s.log.WithFields(fields).Warn("Slow request detected")
		} else {
			s.log.WithFields(fields).Info("Request completed quickly")
		}
	})
}

// viewer returns the authenticated user id, writing a 401 when there is none.
func (s *Server) viewer(w http.ResponseWriter, r *http.Request, label string) (uint, bool) {
	id := auth.UserID(r.Context())
	if id == 0 {
		s.fail(w, r, label, social.ErrUnauthenticated)
		return 0, false
	}
	return id, true
}
