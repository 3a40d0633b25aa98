package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"readalong/internal/content"
	"readalong/internal/realtime"
	"readalong/internal/security"
	"readalong/internal/service"
)

// Deps are the services the HTTP API is built from.
type Deps struct {
	Auth     *service.AuthService
	Profiles *service.ProfileService
	Hub      *realtime.Hub
	Passages *content.Library
	Limiter  *security.RateLimiter
	Status   *StartupStatus
	Logger   zerolog.Logger
}

// NewRouter registers every route and wraps the mux with request logging.
func NewRouter(deps Deps) http.Handler {
	middleware := NewMiddleware(deps.Auth, deps.Limiter)
	authHandler := NewAuthHandler(deps.Auth)
	profileHandler := NewProfileHandler(deps.Profiles)
	realtimeHandler := NewRealtimeHandler(deps.Hub)

	mux := http.NewServeMux()

	// Accounts
	mux.HandleFunc("POST /api/auth/signup", middleware.RateLimit(authHandler.Signup))
	mux.HandleFunc("POST /api/auth/token", middleware.RateLimit(authHandler.Token))

	// Profiles
	mux.HandleFunc("GET /api/profile/{id}", middleware.RequireBearer(profileHandler.Get))
	mux.HandleFunc("PUT /api/profile/{id}", middleware.RequireBearer(profileHandler.Update))
	mux.HandleFunc("GET /api/profile/{id}/history", middleware.RequireBearer(profileHandler.History))

	// Session channels
	mux.HandleFunc("GET /realtime/{channel}", realtimeHandler.Connect)

	if deps.Passages != nil {
		contentHandler := NewContentHandler(deps.Passages)
		mux.HandleFunc("GET /api/passages", contentHandler.List)
		mux.HandleFunc("GET /api/passages/{id}", contentHandler.Get)
	}

	if deps.Status != nil {
		mux.HandleFunc("GET /healthz", deps.Status.Health(deps.Hub.Channels))
	}

	return Logging(deps.Logger, mux)
}
