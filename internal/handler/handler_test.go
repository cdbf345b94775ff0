package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/background"
	"github.com/sakif/learnmade/internal/broadcast"
	"github.com/sakif/learnmade/internal/email"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/ratelimit"
	"github.com/sakif/learnmade/internal/repository/sqlite"
	"github.com/sakif/learnmade/internal/server"
	"github.com/sakif/learnmade/internal/service"
	"github.com/sakif/learnmade/internal/storage"
)

// =========================================================================
// HARNESS
// =========================================================================

// recordingSender stands in for the email gateway.
type recordingSender struct {
	mu      sync.Mutex
	single  []email.Message
	batches [][]email.Message
	err     error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.single = append(s.single, msg)
	return nil
}

func (s *recordingSender) SendBatch(_ context.Context, msgs []email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]email.Message(nil), msgs...))
	return nil
}

func (s *recordingSender) sentBatches() [][]email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]email.Message(nil), s.batches...)
}

func (s *recordingSender) sentSingles() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.single...)
}

func (s *recordingSender) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakeUploader struct {
	filename    string
	contentType string
	body        []byte
}

func (f *fakeUploader) Upload(_ context.Context, filename, contentType string, body io.Reader) (*storage.Object, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.filename, f.contentType, f.body = filename, contentType, b
	return &storage.Object{
		Key:         "learnmade-courses/abc.png",
		URL:         "https://storage.googleapis.com/bucket/learnmade-courses/abc.png",
		ContentType: contentType,
	}, nil
}

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + state
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
}

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[key]++
	return m.hits[key], nil
}

type harness struct {
	t        *testing.T
	router   http.Handler
	db       *sqlite.DB
	runner   *background.Runner
	tokens   *auth.TokenService
	sender   *recordingSender
	uploader *fakeUploader
	github   *fakeGitHub

	adminToken string
	userToken  string
}

const adminEmail = "owner@learnmade.dev"

type harnessOption func(*server.Deps)

func withRateLimit(max int) harnessOption {
	return func(d *server.Deps) {
		d.Limiter = ratelimit.New(&memCounter{hits: map[string]int64{}}, max, time.Hour, d.Logger)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := background.NewRunner(logger, 5*time.Second, 4)
	t.Cleanup(func() { runner.Wait(context.Background()) })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	h := &harness{
		t:        t,
		db:       db,
		runner:   runner,
		tokens:   tokens,
		sender:   &recordingSender{},
		uploader: &fakeUploader{},
		github:   &fakeGitHub{},
	}

	guard := auth.NewGuard(db.Users())
	composer := email.NewComposer("http://localhost:8080")
	factory := func() (email.Sender, error) { return h.sender, nil }

	subscriptions := service.NewSubscriptionService(db.Subscribers(), guard, tokens, composer, factory, runner, logger)
	dispatcher := broadcast.NewDispatcher(db.Subscribers(), tokens, composer, factory, runner, broadcast.DefaultBatchSize, logger)

	deps := server.Deps{
		Logger:         logger,
		DB:             db,
		Tokens:         tokens,
		Courses:        service.NewCourseService(db.Courses(), guard, dispatcher, runner, logger),
		Subscriptions:  subscriptions,
		Accounts:       service.NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), subscriptions, adminEmail, logger),
		Analytics:      service.NewAnalyticsService(db.Visits(), db.Subscribers(), guard, logger),
		Media:          service.NewMediaService(h.uploader, guard, logger),
		GitHub:         h.github,
		MaxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.router = server.NewRouter(deps)

	h.adminToken = h.createUser("boss@example.com", model.RoleAdmin)
	h.userToken = h.createUser("reader@example.com", model.RoleUser)
	return h
}

func (h *harness) createUser(addr string, role model.Role) string {
	h.t.Helper()
	u := &model.User{Email: addr, Role: role}
	require.NoError(h.t, h.db.Users().Create(context.Background(), u))
	token, err := h.tokens.Generate(u.ID, string(role))
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

// settle waits for background work (views, welcome mail, broadcasts).
func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.runner.Wait(ctx))
}

type envelope struct {
	Success bool                  `json:"success"`
	Data    json.RawMessage       `json:"data"`
	Message string                `json:"message"`
	Error   string                `json:"error"`
	Details []apperror.FieldError `json:"details"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &out))
	return out
}

func chatApp() map[string]any {
	return map[string]any{
		"title":       "Build a Chat App",
		"slug":        "build-chat-app",
		"thumbnail":   "https://x.example.com/y.png",
		"videoUrl":    "https://yt.example.com/embed/1",
		"description": "A full walkthrough of websockets and presence.",
		"tags":        []string{"react", "websockets"},
		"codeSnippets": []map[string]string{
			{"title": "server.js", "language": "js", "code": "console.log(1)"},
		},
	}
}

// =========================================================================
// Course TESTS
// =========================================================================

func TestCourses_CreateThenReadCountsViews(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/courses", chatApp(), h.adminToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeData[model.Course](t, rr)
	assert.Equal(t, int64(0), created.Views)
	assert.Equal(t, []string{"react", "websockets"}, created.Tags)

	first := h.do(http.MethodGet, "/courses/build-chat-app", nil, "")
	require.Equal(t, http.StatusOK, first.Code)
	h.settle()

	second := h.do(http.MethodGet, "/courses/build-chat-app", nil, "")
	require.Equal(t, http.StatusOK, second.Code)
	got := decodeData[model.Course](t, second)
	assert.Equal(t, int64(1), got.Views, "a read returns the record as it was before its own view")
	assert.Equal(t, "Build a Chat App", got.Title)
	assert.Equal(t, "build-chat-app", got.Slug)
	h.settle()

	stored, err := h.db.Courses().GetBySlug(context.Background(), "build-chat-app")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Views)
}

func TestCourses_CreateErrors(t *testing.T) {
	h := newHarness(t)

	invalid := chatApp()
	invalid["title"] = "Go"
	invalid["videoUrl"] = "not a url"

	tests := []struct {
		name      string
		body      any
		token     string
		wantCode  int
		wantError string
	}{
		{"anonymous", chatApp(), "", http.StatusUnauthorized, "unauthorized"},
		{"plain user", chatApp(), h.userToken, http.StatusUnauthorized, "unauthorized"},
		{"validation", invalid, h.adminToken, http.StatusBadRequest, "Validation Error"},
		{"malformed json", `{"title":`, h.adminToken, http.StatusBadRequest, "Validation Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(http.MethodPost, "/courses", tt.body, tt.token)
			assert.Equal(t, tt.wantCode, rr.Code)
			env := decode(t, rr)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantError, env.Error)
		})
	}

	rr := h.do(http.MethodPost, "/courses", invalid, h.adminToken)
	assert.Len(t, decode(t, rr).Details, 2)
}

func TestCourses_DuplicateSlugConflicts(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/courses", chatApp(), h.adminToken).Code)
	rr := h.do(http.MethodPost, "/courses", chatApp(), h.adminToken)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", decode(t, rr).Error)
}

func TestCourses_TagsAsCommaSeparatedString(t *testing.T) {
	h := newHarness(t)

	body := chatApp()
	body["tags"] = "react, websockets ,, "
	rr := h.do(http.MethodPost, "/courses", body, h.adminToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"react", "websockets"}, decodeData[model.Course](t, rr).Tags)
}

func TestCourses_ListAndSearch(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/courses", chatApp(), h.adminToken).Code)

	rr := h.do(http.MethodGet, "/courses", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeData[[]model.Course](t, rr), 1)

	rr = h.do(http.MethodGet, "/courses?search=CONSOLE.LOG", nil, "")
	assert.Len(t, decodeData[[]model.Course](t, rr), 1)

	rr = h.do(http.MethodGet, "/courses?search=nonexistentterm12345", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, string(decode(t, rr).Data))

	rr = h.do(http.MethodGet, "/courses?limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCourses_GetMissing(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/courses/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	env := decode(t, rr)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)
}

func TestCourses_Update(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/courses", chatApp(), h.adminToken).Code)

	rr := h.do(http.MethodPut, "/courses/build-chat-app", map[string]any{"title": "Build a Realtime Chat"}, h.adminToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Build a Realtime Chat", decodeData[model.Course](t, rr).Title)

	rr = h.do(http.MethodPut, "/courses/build-chat-app", map[string]any{"slug": "renamed"}, h.adminToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(http.MethodPut, "/courses/missing", map[string]any{"title": "Whatever title"}, h.adminToken)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodPut, "/courses/build-chat-app", map[string]any{"title": "Hijacked title"}, h.userToken)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// =========================================================================
// Broadcast TESTS
// =========================================================================

func TestCourses_CreateBroadcastsOneBatch(t *testing.T) {
	h := newHarness(t)

	for _, addr := range []string{"a@example.com", "b@example.com"} {
		require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": addr}, "").Code)
	}
	h.settle()

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/courses", chatApp(), h.adminToken).Code)
	h.settle()

	batches := h.sender.sentBatches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "New Course: Build a Chat App", batches[0][0].Subject)
	assert.Contains(t, batches[0][0].Headers["List-Unsubscribe"], "/unsubscribe?token=")
}

func TestCourses_GatewayFailureKeepsCourse(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "").Code)
	h.settle()
	h.sender.failWith(errors.New("gateway rejected batch"))

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/courses", chatApp(), h.adminToken).Code)
	h.settle()

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/courses/build-chat-app", nil, "").Code)
}

// =========================================================================
// Subscriber TESTS
// =========================================================================

func TestSubscribe(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/subscribe", map[string]string{"email": "new@example.com"}, "")
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Successfully subscribed! Check your inbox.", decode(t, rr).Message)

	rr = h.do(http.MethodPost, "/subscribe", map[string]string{"email": "NEW@example.com"}, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "You are already subscribed!", decode(t, rr).Message)

	rr = h.do(http.MethodPost, "/subscribe", map[string]string{"email": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Please enter a valid email address", decode(t, rr).Message)

	h.settle()
	require.Len(t, h.sender.sentSingles(), 1)
	assert.Equal(t, email.WelcomeSubject, h.sender.sentSingles()[0].Subject)
}

func TestSubscribe_Honeypot(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/subscribe", map[string]string{
		"email":                 "bot@example.com",
		"confirm_email_address": "bot@example.com",
	}, "")
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, decode(t, rr).Success)

	h.settle()
	total, _, err := h.db.Subscribers().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, h.sender.sentSingles())
}

func TestSubscribe_ReactivationIs200(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "").Code)
	sub, err := h.db.Subscribers().GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, h.db.Subscribers().SetActive(ctx, sub.ID, false))

	rr := h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Welcome back! You have been resubscribed.", decode(t, rr).Message)
}

func TestSubscribe_RateLimited(t *testing.T) {
	h := newHarness(t, withRateLimit(1))

	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "b@example.com"}, "").Code)
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "").Code)
	sub, err := h.db.Subscribers().GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	token, err := h.tokens.GenerateUnsubscribe(sub.ID)
	require.NoError(t, err)

	// Opening the link (or a mail scanner prefetching it) changes nothing.
	rr := h.do(http.MethodGet, "/unsubscribe?token="+token, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "a@example.com")
	assert.Contains(t, rr.Body.String(), `method="post"`)
	assert.Contains(t, rr.Body.String(), token)

	still, err := h.db.Subscribers().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)

	// RFC 8058 one-click POST performs it.
	req := httptest.NewRequest(http.MethodPost, "/unsubscribe?token="+token, strings.NewReader("List-Unsubscribe=One-Click"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	oneClick := httptest.NewRecorder()
	h.router.ServeHTTP(oneClick, req)
	assert.Equal(t, http.StatusOK, oneClick.Code)
	assert.Equal(t, "You have been unsubscribed.", decode(t, oneClick).Message)

	after, err := h.db.Subscribers().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)

	// The confirmation form posts from a browser and gets a page back; repeating is harmless.
	req = httptest.NewRequest(http.MethodPost, "/unsubscribe?token="+token, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	page := httptest.NewRecorder()
	h.router.ServeHTTP(page, req)
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "You have been unsubscribed.")

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/unsubscribe?token=garbage", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/unsubscribe", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/unsubscribe?token=garbage", nil, "").Code)
}

func TestSubscribers_AdminListAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "").Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/subscribers", nil, h.userToken).Code)

	rr := h.do(http.MethodGet, "/subscribers", nil, h.adminToken)
	require.Equal(t, http.StatusOK, rr.Code)
	subs := decodeData[[]model.Subscriber](t, rr)
	require.Len(t, subs, 1)

	rr = h.do(http.MethodDelete, "/subscribers", map[string]string{}, h.adminToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Subscriber ID is required", decode(t, rr).Message)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/subscribers", map[string]string{"id": "missing"}, h.adminToken).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodDelete, "/subscribers", map[string]string{"id": subs[0].ID}, "").Code)

	rr = h.do(http.MethodDelete, "/subscribers", map[string]string{"id": subs[0].ID}, h.adminToken)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Subscriber deleted", decode(t, rr).Message)

	_, err := h.db.Subscribers().GetByID(ctx, subs[0].ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// A fresh subscription after deletion is a new record.
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/subscribe", map[string]string{"email": "a@example.com"}, "").Code)
}

// =========================================================================
// Analytics TESTS
// =========================================================================

func TestAnalytics(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/analytics/track", map[string]string{"path": "/courses/go"}, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode(t, rr).Success)

	rr = h.do(http.MethodPost, "/analytics/track", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Path is required", decode(t, rr).Message)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/analytics/stats", nil, h.userToken).Code)

	rr = h.do(http.MethodGet, "/analytics/stats", nil, h.adminToken)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decodeData[service.Stats](t, rr)
	assert.Equal(t, 1, stats.TotalVisits)
	require.Len(t, stats.RecentLogs, 1)
	assert.Equal(t, "Direct", stats.RecentLogs[0].Referrer)
}

// =========================================================================
// Auth TESTS
// =========================================================================

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestAuth_SignupLoginMeLogout(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/auth/signup", map[string]string{"email": "Owner@LearnMade.dev", "password": "hunter22"}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	signedUp := decodeData[struct {
		User model.User `json:"user"`
	}](t, rr)
	assert.Equal(t, model.RoleAdmin, signedUp.User.Role, "configured admin address")
	assert.NotContains(t, rr.Body.String(), "$2a$", "password hash never leaves the server")

	rr = h.do(http.MethodPost, "/auth/signup", map[string]string{"email": "owner@learnmade.dev", "password": "hunter22"}, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "User already exists", decode(t, rr).Message)

	rr = h.do(http.MethodPost, "/auth/login", map[string]string{"email": "owner@learnmade.dev", "password": "wrong-pass"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid email or password", decode(t, rr).Message)

	rr = h.do(http.MethodPost, "/auth/login", map[string]string{"email": "owner@learnmade.dev", "password": "hunter22"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	h.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "owner@learnmade.dev", decodeData[model.User](t, me).Email)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/auth/me", nil, "").Code)

	rr = h.do(http.MethodPost, "/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, sessionCookie(rr))
	assert.Less(t, sessionCookie(rr).MaxAge, 0)
}

func TestAuth_Refresh(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/auth/refresh", nil, "").Code)

	rr := h.do(http.MethodPost, "/auth/refresh", nil, h.userToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, sessionCookie(rr))
}

func TestAuth_GitHubFlow(t *testing.T) {
	h := newHarness(t)
	h.github.user = &auth.GitHubUser{ID: 42, Login: "octo", Email: "octo@example.com"}

	rr := h.do(http.MethodGet, "/auth/github/login", nil, "")
	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	var state *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rr.Header().Get("Location"), "state="+state.Value)

	// Mismatched state is rejected.
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=c&state=other", nil)
	req.AddCookie(state)
	bad := httptest.NewRecorder()
	h.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=c&state="+state.Value, nil)
	req.AddCookie(state)
	ok := httptest.NewRecorder()
	h.router.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusSeeOther, ok.Code)
	assert.Equal(t, "/", ok.Header().Get("Location"))
	require.NotNil(t, sessionCookie(ok))

	user, err := h.db.Users().GetByGitHubID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", user.Email)
}

// =========================================================================
// Upload / Health TESTS
// =========================================================================

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 600)...)

	send := func(token, field string) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, field, "Thumb.PNG", png)
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.router.ServeHTTP(rr, req)
		return rr
	}

	rr := send(h.adminToken, "file")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{
		"success": true,
		"url": "https://storage.googleapis.com/bucket/learnmade-courses/abc.png",
		"publicId": "learnmade-courses/abc.png"
	}`, rr.Body.String())
	assert.Equal(t, "image/png", h.uploader.contentType)
	assert.Equal(t, "Thumb.PNG", h.uploader.filename)
	assert.Equal(t, png, h.uploader.body, "sniffed bytes are not lost")

	rr = send(h.adminToken, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No file uploaded", decode(t, rr).Message)

	assert.Equal(t, http.StatusUnauthorized, send(h.userToken, "file").Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
}
