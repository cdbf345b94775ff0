package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/background"
	"github.com/sakif/learnmade/internal/email"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeSender records every message instead of calling a gateway.
type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) SendBatch(ctx context.Context, msgs []email.Message) error {
	for _, m := range msgs {
		if err := f.Send(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSender) messages() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.sent...)
}

// fakeBroadcaster records which courses were announced.
type fakeBroadcaster struct {
	mu    sync.Mutex
	slugs []string
}

func (f *fakeBroadcaster) Dispatch(_ context.Context, course *model.Course) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slugs = append(f.slugs, course.Slug)
}

func (f *fakeBroadcaster) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.slugs...)
}

// testEnv wires every service against a fresh in-memory database.
type testEnv struct {
	db          *sqlite.DB
	runner      *background.Runner
	tokens      *auth.TokenService
	sender      *fakeSender
	broadcaster *fakeBroadcaster

	courses       *CourseService
	subscriptions *SubscriptionService
	auth          *AuthService
	analytics     *AnalyticsService

	admin auth.Principal
	user  auth.Principal
}

const testAdminEmail = "admin@learnmade.dev"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := discardLogger()
	runner := background.NewRunner(logger, 5*time.Second, 4)
	// Registered after db.Close, so it runs first: tasks finish before the DB goes.
	t.Cleanup(func() { runner.Wait(context.Background()) })

	tokens, err := auth.NewTokenService("service-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		db:          db,
		runner:      runner,
		tokens:      tokens,
		sender:      &fakeSender{},
		broadcaster: &fakeBroadcaster{},
	}

	guard := auth.NewGuard(db.Users())
	composer := email.NewComposer("http://localhost:8080")
	factory := func() (email.Sender, error) { return env.sender, nil }

	env.courses = NewCourseService(db.Courses(), guard, env.broadcaster, runner, logger)
	env.subscriptions = NewSubscriptionService(db.Subscribers(), guard, tokens, composer, factory, runner, logger)
	env.auth = NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), env.subscriptions, testAdminEmail, logger)
	env.analytics = NewAnalyticsService(db.Visits(), db.Subscribers(), guard, logger)

	env.admin = env.createUser(t, "boss@example.com", model.RoleAdmin)
	env.user = env.createUser(t, "reader@example.com", model.RoleUser)
	return env
}

func (e *testEnv) createUser(t *testing.T, addr string, role model.Role) auth.Principal {
	t.Helper()
	u := &model.User{Email: addr, Role: role}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return auth.Principal{UserID: u.ID}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// settle waits for every background task (views, welcome mail) to finish.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.runner.Wait(ctx))
}

// errorIs is a small assertion helper used across the service tests.
func errorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
