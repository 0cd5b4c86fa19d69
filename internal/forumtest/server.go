// Package forumtest runs an in-memory forum backend for tests. It speaks the
// same REST shapes as the real service: Spring-style page envelopes by
// default, bare arrays when asked.
package forumtest

import (
	"cmp"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abelbrown/sharkbox/internal/model"
)

// Server is a fake forum. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	boxes    []model.Box
	threads  map[string][]model.Thread
	comments map[int64][]model.Comment
	nextID   int64
	token    string
	user     string
	bare     bool
	failNext int
	auth     model.AuthConfig
	requests []string
}

// New starts a server and stops it when the test ends. The API root is
// URL()+"/api".
func New(t testing.TB) *Server {
	s := &Server{
		threads:  make(map[string][]model.Thread),
		comments: make(map[int64][]model.Comment),
		nextID:   1000,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL clients should use.
func (s *Server) APIURL() string { return s.URL + "/api" }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.authenticate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/auth/config", s.handleAuthConfig)

		r.Get("/box", s.handleBoxes)
		r.Post("/box", s.handleCreateBox)
		r.Get("/box/{slug}", s.handleBox)
		r.Put("/box/{slug}", s.handleUpdateBox)
		r.Get("/box/{slug}/threads", s.handleThreads)
		r.Post("/box/{slug}/thread", s.handleCreateThread)

		r.Get("/thread/{id}", s.handleThread)
		r.Put("/thread/{id}", s.handleUpdateThread)
		r.Patch("/thread/{id}", s.handleVoteThread)

		r.Get("/comment/{threadID}", s.handleComments)
		r.Post("/comment/{threadID}", s.handleCreateComment)
		r.Put("/comment/{threadID}/{commentID}", s.handleUpdateComment)
		r.Patch("/comment/{threadID}/{commentID}", s.handleVoteComment)

		r.Get("/user/{username}/threads", s.handleUserThreads)
		r.Get("/user/{username}/comments", s.handleUserComments)
	})
	return r
}

// Configuration

// RequireToken makes writes demand "Bearer <token>" and rejects any other
// bearer token with 401. Requests are attributed to user.
func (s *Server) RequireToken(token, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.user = token, user
}

// ServeBareArrays switches paged endpoints to plain JSON arrays of the whole
// collection, ignoring page and size.
func (s *Server) ServeBareArrays(bare bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bare = bare
}

// FailNext makes the next n requests answer 503.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetAuthConfig sets what /v1/auth/config returns.
func (s *Server) SetAuthConfig(ac model.AuthConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = ac
}

// Requests returns "METHOD /path?query" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Seeding

// AddBox stores a box, assigning an id when zero.
func (s *Server) AddBox(b model.Box) model.Box {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.id()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.boxes = append(s.boxes, b)
	return b
}

// AddThread stores a thread in the box with slug.
func (s *Server) AddThread(slug string, t model.Thread) model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addThreadLocked(slug, t)
}

func (s *Server) addThreadLocked(slug string, t model.Thread) model.Thread {
	if t.ID == 0 {
		t.ID = s.id()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Box == nil {
		t.Box = &model.BoxRef{Slug: slug}
	}
	s.threads[slug] = append(s.threads[slug], t)
	return t
}

// AddComment stores a comment on threadID.
func (s *Server) AddComment(threadID int64, c model.Comment) model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCommentLocked(threadID, c)
}

func (s *Server) addCommentLocked(threadID int64, c model.Comment) model.Comment {
	if c.ID == 0 {
		c.ID = s.id()
	}
	c.ThreadID = threadID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.comments[threadID] = append(s.comments[threadID], c)
	for slug, ts := range s.threads {
		for i := range ts {
			if ts[i].ID == threadID {
				s.threads[slug][i].CommentCount++
			}
		}
	}
	return c
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

// Middleware

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		line := r.Method + " " + r.URL.EscapedPath()
		if r.URL.RawQuery != "" {
			line += "?" + r.URL.RawQuery
		}
		s.mu.Lock()
		s.requests = append(s.requests, line)
		fail := s.failNext > 0
		if fail {
			s.failNext--
		}
		s.mu.Unlock()
		if fail {
			http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		header := r.Header.Get("Authorization")
		write := r.Method != http.MethodGet
		switch {
		case token == "":
		case header != "" && header != "Bearer "+token:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		case header == "" && write:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "login required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

func (s *Server) handleAuthConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.auth)
}

func (s *Server) handleBoxes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	boxes := slices.Clone(s.boxes)
	s.mu.Unlock()
	sortBy(boxes, r, map[string]func(a, b model.Box) int{
		"name":      func(a, b model.Box) int { return strings.Compare(a.Name, b.Name) },
		"id":        func(a, b model.Box) int { return cmp.Compare(a.ID, b.ID) },
		"createdAt": func(a, b model.Box) int { return a.CreatedAt.Compare(b.CreatedAt) },
	})
	s.writePage(w, r, boxes)
}

func (s *Server) handleBox(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug := chi.URLParam(r, "slug")
	for _, b := range s.boxes {
		if b.Slug == slug {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	notFound(w)
}

func (s *Server) handleCreateBox(w http.ResponseWriter, r *http.Request) {
	var req model.BoxRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.boxes {
		if b.Slug == req.Slug {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "slug taken"})
			return
		}
	}
	b := model.Box{ID: s.id(), Name: req.Name, Slug: req.Slug, Description: req.Description,
		Access: req.Access, Owner: s.user, CreatedAt: time.Now().UTC()}
	s.boxes = append(s.boxes, b)
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUpdateBox(w http.ResponseWriter, r *http.Request) {
	var req model.BoxRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slug := chi.URLParam(r, "slug")
	for i, b := range s.boxes {
		if b.Slug == slug {
			s.boxes[i].Name, s.boxes[i].Description, s.boxes[i].Access = req.Name, req.Description, req.Access
			writeJSON(w, http.StatusOK, s.boxes[i])
			return
		}
	}
	notFound(w)
}

var threadOrder = map[string]func(a, b model.Thread) int{
	"id":        func(a, b model.Thread) int { return cmp.Compare(a.ID, b.ID) },
	"createdAt": func(a, b model.Thread) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"title":     func(a, b model.Thread) int { return strings.Compare(a.Title, b.Title) },
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	s.mu.Lock()
	if !s.hasBoxLocked(slug) {
		s.mu.Unlock()
		notFound(w)
		return
	}
	threads := slices.Clone(s.threads[slug])
	s.mu.Unlock()
	sortBy(threads, r, threadOrder)
	s.writePage(w, r, threads)
}

func (s *Server) handleUserThreads(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	var out []model.Thread
	s.mu.Lock()
	for _, ts := range s.threads {
		for _, t := range ts {
			if t.Username == user || t.UserID == user {
				out = append(out, t)
			}
		}
	}
	s.mu.Unlock()
	sortBy(out, r, threadOrder)
	s.writePage(w, r, out)
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.threadLocked(id); t != nil {
		writeJSON(w, http.StatusOK, *t)
		return
	}
	notFound(w)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req model.ThreadRequest
	if !decode(w, r, &req) {
		return
	}
	slug := chi.URLParam(r, "slug")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasBoxLocked(slug) {
		notFound(w)
		return
	}
	t := s.addThreadLocked(slug, model.Thread{Title: req.Title, Type: req.Type, Content: req.Content,
		Description: req.Description, UserID: s.user, Username: s.user})
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req model.ThreadRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.threadLocked(id)
	if t == nil {
		notFound(w)
		return
	}
	t.Title, t.Type, t.Content, t.Description = req.Title, req.Type, req.Content, req.Description
	t.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, *t)
}

func (s *Server) handleVoteThread(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req model.VoteRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.threadLocked(id)
	if t == nil {
		notFound(w)
		return
	}
	model.ApplyVote(&t.Upvotes, &t.Downvotes, &t.UserVote, req.IsUpvote)
	writeJSON(w, http.StatusOK, *t)
}

var commentOrder = map[string]func(a, b model.Comment) int{
	"id":        func(a, b model.Comment) int { return cmp.Compare(a.ID, b.ID) },
	"createdAt": func(a, b model.Comment) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	s.mu.Lock()
	comments := slices.Clone(s.comments[id])
	s.mu.Unlock()
	sortBy(comments, r, commentOrder)
	s.writePage(w, r, comments)
}

func (s *Server) handleUserComments(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	var out []model.Comment
	s.mu.Lock()
	for _, cs := range s.comments {
		for _, c := range cs {
			if c.Username == user || c.UserID == user {
				out = append(out, c)
			}
		}
	}
	s.mu.Unlock()
	sortBy(out, r, commentOrder)
	s.writePage(w, r, out)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	var req model.CommentRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadLocked(id) == nil {
		notFound(w)
		return
	}
	c := s.addCommentLocked(id, model.Comment{Content: req.Content, ParentID: req.ParentID,
		UserID: s.user, Username: s.user})
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.commentFromPath(w, r)
	if !ok {
		return
	}
	var req model.CommentRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != "" && c.UserID != s.user {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "not your comment"})
		return
	}
	c.Content = req.Content
	c.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, *c)
}

func (s *Server) handleVoteComment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.commentFromPath(w, r)
	if !ok {
		return
	}
	var req model.VoteRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	model.ApplyVote(&c.Upvotes, &c.Downvotes, &c.UserVote, req.IsUpvote)
	writeJSON(w, http.StatusOK, *c)
}

func (s *Server) commentFromPath(w http.ResponseWriter, r *http.Request) (*model.Comment, bool) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return nil, false
	}
	commentID, ok := pathID(w, r, "commentID")
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.comments[threadID]
	for i := range cs {
		if cs[i].ID == commentID {
			return &cs[i], true
		}
	}
	notFound(w)
	return nil, false
}

// Helpers

func (s *Server) hasBoxLocked(slug string) bool {
	return slices.ContainsFunc(s.boxes, func(b model.Box) bool { return b.Slug == slug })
}

func (s *Server) threadLocked(id int64) *model.Thread {
	for slug := range s.threads {
		ts := s.threads[slug]
		for i := range ts {
			if ts[i].ID == id {
				return &ts[i]
			}
		}
	}
	return nil
}

type envelope[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	Last          bool  `json:"last"`
	TotalElements int64 `json:"totalElements"`
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, items any) {
	s.mu.Lock()
	bare := s.bare
	s.mu.Unlock()
	switch v := items.(type) {
	case []model.Box:
		writeSlice(w, r, v, bare)
	case []model.Thread:
		writeSlice(w, r, v, bare)
	case []model.Comment:
		writeSlice(w, r, v, bare)
	}
}

func writeSlice[T any](w http.ResponseWriter, r *http.Request, all []T, bare bool) {
	if all == nil {
		all = []T{}
	}
	if bare {
		writeJSON(w, http.StatusOK, all)
		return
	}
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 {
		size = 20
	}
	start := min(number*size, len(all))
	end := min(start+size, len(all))
	writeJSON(w, http.StatusOK, envelope[T]{
		Content:       all[start:end],
		Number:        number,
		Size:          size,
		Last:          end >= len(all),
		TotalElements: int64(len(all)),
	})
}

// sortBy applies repeated sort=field,dir parameters in priority order.
func sortBy[T any](items []T, r *http.Request, fields map[string]func(a, b T) int) {
	sorts := r.URL.Query()["sort"]
	if len(sorts) == 0 {
		return
	}
	slices.SortStableFunc(items, func(a, b T) int {
		for _, s := range sorts {
			field, dir, _ := strings.Cut(s, ",")
			compare, ok := fields[field]
			if !ok {
				continue
			}
			c := compare(a, b)
			if strings.EqualFold(dir, "desc") {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad " + name})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return false
	}
	return true
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
