package api

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"social/media"
	"social/social"
)

const maxUploadMemory = 32 << 20

type postRequest struct {
	Body          string     `json:"body"`
	Quote         *uint      `json:"quote"`
	Parent        *uint      `json:"parent"`
	DateToPublish *time.Time `json:"date_to_publish"`
	Options       []string   `json:"options"`
	EndTime       *time.Time `json:"end_time"`
}

func (p postRequest) input() social.CreatePostInput {
	in := social.CreatePostInput{
		Body:          p.Body,
		QuoteID:       p.Quote,
		ParentID:      p.Parent,
		DateToPublish: p.DateToPublish,
	}
	if len(p.Options) > 0 || p.EndTime != nil {
		in.Poll = &social.PollInput{Options: p.Options, EndTime: p.EndTime}
	}
	return in
}

func postID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

func (s *Server) FeedHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "feed")
	if !ok {
		return
	}
	q := social.FeedQuery{Search: r.URL.Query().Get("search"), PageRequest: pageRequest(r)}
	page, err := s.svc.Feed(r.Context(), viewer, q)
	if err != nil {
		s.fail(w, r, "feed", err)
		return
	}
	s.ok(w, "feed", http.StatusOK, toWire(r, page))
}

// CreatePostHandler accepts either a JSON body or a multipart form with the
// media files attached.
func (s *Server) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "create_post")
	if !ok {
		return
	}

	var (
		in    social.CreatePostInput
		saved []string
		err   error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		in, saved, err = s.multipartPost(r, viewer)
	} else {
		var req postRequest
		err = decodeJSON(r, &req)
		in = req.input()
	}
	if err != nil {
		s.discard(saved)
		s.fail(w, r, "create_post", err)
		return
	}

	post, err := s.svc.CreatePost(r.Context(), viewer, in)
	if err != nil {
		s.discard(saved)
		s.fail(w, r, "create_post", err)
		return
	}

	s.metrics.PostsCreated.WithLabelValues(postKind(post)).Inc()
	s.ok(w, "create_post", http.StatusCreated, post)
}

func postKind(p *social.PostView) string {
	switch {
	case p.Poll != nil:
		return "poll"
	case p.Media != nil:
		return "media"
	case p.Quote != nil:
		return "quote"
	default:
		return "text"
	}
}

// multipartPost reads the form fields and stores the attached files. The
// returned urls must be discarded if the post is not created.
func (s *Server) multipartPost(r *http.Request, viewer uint) (social.CreatePostInput, []string, error) {
	var in social.CreatePostInput
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return in, nil, &social.ValidationError{Fields: map[string]string{"non_field_errors": "Malformed multipart body."}}
	}
	form := r.MultipartForm

	in.Body = r.FormValue("body")
	var err error
	if in.QuoteID, err = formID(r, "quote"); err != nil {
		return in, nil, err
	}
	if in.ParentID, err = formID(r, "parent"); err != nil {
		return in, nil, err
	}
	if in.DateToPublish, err = formTime(r, "date_to_publish"); err != nil {
		return in, nil, err
	}
	options := form.Value["options"]
	end, err := formTime(r, "end_time")
	if err != nil {
		return in, nil, err
	}
	if len(options) > 0 || end != nil {
		in.Poll = &social.PollInput{Options: options, EndTime: end}
	}

	owner := strconv.FormatUint(uint64(viewer), 10)
	var saved []string
	store := func(kind media.Kind, field string) (string, error) {
		files := form.File[field]
		if len(files) == 0 {
			return "", nil
		}
		url, err := s.saveUpload(owner, kind, files[0])
		if err != nil {
			return "", err
		}
		saved = append(saved, url)
		return url, nil
	}

	if in.Video, err = store(media.Video, "video"); err != nil {
		return in, saved, err
	}
	if in.Gif, err = store(media.Gif, "gif"); err != nil {
		return in, saved, err
	}
	for _, field := range []string{"img1", "img2", "img3", "img4"} {
		url, err := store(media.Image, field)
		if err != nil {
			return in, saved, err
		}
		if url != "" {
			in.Images = append(in.Images, url)
		}
	}
	return in, saved, nil
}

func (s *Server) saveUpload(owner string, kind media.Kind, fh *multipart.FileHeader) (string, error) {
	if _, err := media.Validate(kind, fh.Filename); err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.media.Save(owner, kind, fh.Filename, f)
}

func (s *Server) discard(urls []string) {
	for _, url := range urls {
		if err := s.media.Remove(url); err != nil {
			s.log.WithError(err).WithField("url", url).Warn("Failed to remove uploaded file")
		}
	}
}

func formID(r *http.Request, field string) (*uint, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, &social.ValidationError{Fields: map[string]string{field: "A valid integer is required."}}
	}
	id := uint(n)
	return &id, nil
}

func formTime(r *http.Request, field string) (*time.Time, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &social.ValidationError{Fields: map[string]string{field: "Datetime has wrong format. Use RFC 3339."}}
	}
	return &t, nil
}

func (s *Server) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "get_post")
	if !ok {
		return
	}
	post, err := s.svc.GetPost(r.Context(), viewer, postID(r))
	if err != nil {
		s.fail(w, r, "get_post", err)
		return
	}
	s.ok(w, "get_post", http.StatusOK, post)
}

func (s *Server) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "delete_post")
	if !ok {
		return
	}
	if err := s.svc.DeletePost(r.Context(), viewer, postID(r)); err != nil {
		s.fail(w, r, "delete_post", err)
		return
	}
	s.noContent(w, "delete_post")
}

type voteRequest struct {
	Option string `json:"option"`
}

func (s *Server) VoteHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.viewer(w, r, "vote")
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "vote", err)
		return
	}
	if strings.TrimSpace(req.Option) == "" {
		s.fail(w, r, "vote", &social.ValidationError{Fields: map[string]string{"option": "This field is required."}})
		return
	}
	if err := s.svc.Vote(r.Context(), viewer, postID(r), req.Option); err != nil {
		s.fail(w, r, "vote", err)
		return
	}
	s.metrics.Votes.WithLabelValues("/posts/{id}/votepoll").Inc()
	s.ok(w, "vote", http.StatusCreated, detail{"Vote registered."})
}
