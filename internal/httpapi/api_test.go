package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"phoshare.org/internal/auth"
	"phoshare.org/internal/gallery"
	"phoshare.org/internal/ids"
)

// In-memory auth store.
type memAuthStore struct {
	mu        sync.Mutex
	byID      map[string]*auth.User
	blacklist map[string]bool
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{
		byID:      make(map[string]*auth.User),
		blacklist: make(map[string]bool),
	}
}

func (m *memAuthStore) Users(context.Context) auth.UserStore          { return (*memAuthUsers)(m) }
func (m *memAuthStore) Blacklist(context.Context) auth.BlacklistStore { return (*memAuthBlacklist)(m) }

type memAuthUsers memAuthStore

func (m *memAuthUsers) Create(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return auth.ErrAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.CreatedAt = time.Now()
	clone := *u
	m.byID[u.ID] = &clone
	return nil
}

func (m *memAuthUsers) Find(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memAuthUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAuthUsers) SetRefreshToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (m *memAuthUsers) RotateRefreshToken(_ context.Context, userID, previous, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok || u.RefreshToken != previous {
		return false, nil
	}
	u.RefreshToken = next
	return true, nil
}

func (m *memAuthUsers) UpdateRole(_ context.Context, userID string, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Role = role
	return nil
}

type memAuthBlacklist memAuthStore

func (m *memAuthBlacklist) Add(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[token] = true
	return nil
}

func (m *memAuthBlacklist) Contains(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist[token], nil
}

// In-memory gallery store.
type memGalleryStore struct {
	mu       sync.Mutex
	photos   map[string]*gallery.Photo
	comments map[string]*gallery.Comment
	tags     map[string]*gallery.Tag
	ratings  map[string]*gallery.Rating
}

func newMemGalleryStore() *memGalleryStore {
	return &memGalleryStore{
		photos:   make(map[string]*gallery.Photo),
		comments: make(map[string]*gallery.Comment),
		tags:     make(map[string]*gallery.Tag),
		ratings:  make(map[string]*gallery.Rating),
	}
}

func (m *memGalleryStore) Photos(context.Context) gallery.PhotoStore     { return (*memPhotos)(m) }
func (m *memGalleryStore) Comments(context.Context) gallery.CommentStore { return (*memComments)(m) }
func (m *memGalleryStore) Tags(context.Context) gallery.TagStore         { return (*memTags)(m) }
func (m *memGalleryStore) Ratings(context.Context) gallery.RatingStore   { return (*memRatings)(m) }

type memPhotos memGalleryStore

func (m *memPhotos) Create(_ context.Context, p *gallery.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = time.Now()
	clone := *p
	m.photos[p.ID] = &clone
	return nil
}

func (m *memPhotos) Find(_ context.Context, id string) (*gallery.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok {
		return nil, gallery.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *memPhotos) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]*gallery.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*gallery.Photo
	for _, p := range m.photos {
		if p.OwnerID == ownerID {
			clone := *p
			res = append(res, &clone)
		}
	}
	return res, nil
}

func (m *memPhotos) List(_ context.Context, _, _ int) ([]*gallery.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*gallery.Photo
	for _, p := range m.photos {
		clone := *p
		res = append(res, &clone)
	}
	return res, nil
}

func (m *memPhotos) UpdateDescription(_ context.Context, id, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok {
		return gallery.ErrNotFound
	}
	p.Description = description
	return nil
}

func (m *memPhotos) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.photos[id]; !ok {
		return gallery.ErrNotFound
	}
	delete(m.photos, id)
	return nil
}

func (m *memPhotos) SetTags(context.Context, string, []string) error { return nil }

type memComments memGalleryStore

func (m *memComments) Create(_ context.Context, c *gallery.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	clone := *c
	m.comments[c.ID] = &clone
	return nil
}

func (m *memComments) Find(_ context.Context, id string) (*gallery.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, gallery.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *memComments) ListByPhoto(_ context.Context, photoID string, _, _ int) ([]*gallery.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*gallery.Comment
	for _, c := range m.comments {
		if c.PhotoID == photoID {
			clone := *c
			res = append(res, &clone)
		}
	}
	return res, nil
}

func (m *memComments) UpdateText(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return gallery.ErrNotFound
	}
	c.Text = text
	return nil
}

func (m *memComments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return gallery.ErrNotFound
	}
	delete(m.comments, id)
	return nil
}

type memTags memGalleryStore

func (m *memTags) Ensure(_ context.Context, name string) (*gallery.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tag, ok := m.tags[name]; ok {
		clone := *tag
		return &clone, nil
	}
	tag := &gallery.Tag{ID: ids.New(), Name: name}
	m.tags[name] = tag
	clone := *tag
	return &clone, nil
}

func (m *memTags) List(context.Context) ([]*gallery.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*gallery.Tag
	for _, tag := range m.tags {
		clone := *tag
		res = append(res, &clone)
	}
	return res, nil
}

type memRatings memGalleryStore

func (m *memRatings) Create(_ context.Context, r *gallery.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.New()
	}
	r.CreatedAt = time.Now()
	clone := *r
	m.ratings[r.ID] = &clone
	return nil
}

func (m *memRatings) Find(_ context.Context, id string) (*gallery.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[id]
	if !ok {
		return nil, gallery.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *memRatings) FindByPhotoAndUser(_ context.Context, photoID, userID string) (*gallery.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.PhotoID == photoID && r.UserID == userID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, gallery.ErrNotFound
}

func (m *memRatings) Average(_ context.Context, photoID string) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum, count int
	for _, r := range m.ratings {
		if r.PhotoID == photoID {
			sum += r.Stars
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (m *memRatings) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ratings[id]; !ok {
		return gallery.ErrNotFound
	}
	delete(m.ratings, id)
	return nil
}

// Harness ------------------------------------------------------------------

func newTestAPI(t *testing.T) *API {
	t.Helper()
	api, _ := newTestAPIWithStore(t)
	return api
}

func newTestAPIWithStore(t *testing.T) (*API, *memAuthStore) {
	t.Helper()
	store := newMemAuthStore()
	codec, err := auth.NewCodec([]byte("httpapi-test-secret"), nil)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	authSvc, err := auth.NewService(store, codec)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	gallerySvc, err := gallery.NewService(newMemGalleryStore())
	if err != nil {
		t.Fatalf("gallery.NewService: %v", err)
	}
	return New(ReadyProbe{}, authSvc, gallerySvc, "test"), store
}

func promote(t *testing.T, store *memAuthStore, email string, role auth.Role) {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, u := range store.byID {
		if u.Email == email {
			u.Role = role
			return
		}
	}
	t.Fatalf("no such user: %s", email)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:4321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 && strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rr.Body.Bytes(), &decoded)
	}
	return rr, decoded
}

func doForm(t *testing.T, h http.Handler, path string, form url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.RemoteAddr = "127.0.0.1:4321"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &decoded)
	return rr, decoded
}

func signupAndLogin(t *testing.T, h http.Handler, email, password string) (access, refresh string) {
	t.Helper()
	rr, _ := doJSON(t, h, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	rr, body := doForm(t, h, "/v1/auth/login", url.Values{
		"username": {email},
		"password": {password},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	access, _ = body["access_token"].(string)
	refresh, _ = body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("login: missing tokens in %v", body)
	}
	return access, refresh
}
