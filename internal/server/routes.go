package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/handler"
	"github.com/sakif/learnmade/internal/middleware"
	"github.com/sakif/learnmade/internal/ratelimit"
	"github.com/sakif/learnmade/internal/service"
)

// Deps is everything NewRouter needs. Nil optional fields switch the
// matching routes or middleware off.
type Deps struct {
	Logger *slog.Logger
	DB     handler.Pinger
	Tokens *auth.TokenService

	Courses       *service.CourseService
	Subscriptions *service.SubscriptionService
	Accounts      *service.AuthService
	Analytics     *service.AnalyticsService

	Media   *service.MediaService // optional: POST /upload
	GitHub  handler.GitHubOAuth   // optional: /auth/github/*
	Limiter *ratelimit.Limiter    // optional: throttles public writes

	SecureCookies  bool
	MaxUploadBytes int64
	Tracing        bool
}

// NewRouter wires every route.
//
// ROUTES:
//
//	GET    /healthz
//	GET    /courses               list (?search, ?limit, ?offset)
//	GET    /courses/{slug}        one course, counts a view
//	POST   /courses               admin: create + broadcast
//	PUT    /courses/{slug}        admin: partial update
//	POST   /subscribe             rate limited
//	GET    /unsubscribe           confirmation page for the emailed link
//	POST   /unsubscribe           performs it (form or RFC 8058 one-click)
//	GET    /subscribers           admin
//	DELETE /subscribers           admin, body {id}
//	POST   /analytics/track       rate limited
//	GET    /analytics/stats       admin
//	POST   /upload                admin, only with a bucket configured
//	POST   /auth/{signup,login,refresh,logout}, GET /auth/me
//	GET    /auth/github/{login,callback}, only with GitHub configured
//
// MIDDLEWARE ORDER:
// RequestID first so the access log can print it, RealIP before anything
// that keys on the client address, Recoverer inside the logger so a panic
// still logs as a 500, OptionalAuth last so every handler sees a principal.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	if d.Tracing {
		r.Use(routeSpanName)
	}
	r.Use(auth.OptionalAuth(d.Tokens))

	health := handler.NewHealthHandler(d.DB, d.Logger)
	courses := handler.NewCourseHandler(d.Courses, d.Logger)
	subscribers := handler.NewSubscriberHandler(d.Subscriptions, d.Logger)
	analytics := handler.NewAnalyticsHandler(d.Analytics, d.Logger)
	accounts := handler.NewAuthHandler(d.Accounts, d.GitHub, d.SecureCookies, d.Logger)

	limit := func(scope string) func(http.Handler) http.Handler {
		if d.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return d.Limiter.Middleware(scope)
	}

	r.Get("/healthz", health.HandleHealth)

	r.Route("/courses", func(r chi.Router) {
		r.Get("/", courses.HandleList)
		r.Post("/", courses.HandleCreate)
		r.Get("/{slug}", courses.HandleGet)
		r.Put("/{slug}", courses.HandleUpdate)
	})

	r.With(limit("subscribe")).Post("/subscribe", subscribers.HandleSubscribe)
	r.Get("/unsubscribe", subscribers.HandleUnsubscribeConfirm)
	r.Post("/unsubscribe", subscribers.HandleUnsubscribe)
	r.Get("/subscribers", subscribers.HandleList)
	r.Delete("/subscribers", subscribers.HandleDelete)

	r.Route("/analytics", func(r chi.Router) {
		r.With(limit("track")).Post("/track", analytics.HandleTrack)
		r.Get("/stats", analytics.HandleStats)
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(limit("auth")).Post("/signup", accounts.HandleSignup)
		r.With(limit("auth")).Post("/login", accounts.HandleLogin)
		r.With(auth.RequireAuth(d.Tokens)).Post("/refresh", accounts.HandleRefresh)
		r.Post("/logout", accounts.HandleLogout)
		r.Get("/me", accounts.HandleMe)

		if d.GitHub != nil {
			r.Get("/github/login", accounts.HandleGitHubLogin)
			r.Get("/github/callback", accounts.HandleGitHubCallback)
		}
	})

	if d.Media != nil {
		upload := handler.NewUploadHandler(d.Media, d.MaxUploadBytes, d.Logger)
		r.Post("/upload", upload.HandleUpload)
	}

	if d.Tracing {
		return otelhttp.NewHandler(r, "learnmade")
	}
	return r
}

// routeSpanName renames the otelhttp server span to "<METHOD> <route pattern>"
// once chi has matched the route, keeping slugs out of span names.
func routeSpanName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
			}
		}
	})
}
