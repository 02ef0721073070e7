package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"chatgate-backend/internal/handlers"
	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/websocket"
)

// New wires the HTTP routes. jwtAuth, chatLimiter and usageHandler are
// optional: a nil jwtAuth leaves the chat routes public, a nil chatLimiter
// turns rate limiting off and a nil usageHandler disables GET /api/usage.
func New(
	jwtAuth *middleware.JWTAuth,
	chatLimiter middleware.Limiter,
	chatHandler *handlers.ChatHandler,
	modelsHandler *handlers.ModelsHandler,
	usageHandler *handlers.UsageHandler,
	chatSocket *websocket.ChatSocket,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {

		// ──── Chat Routes ────
		r.Group(func(r chi.Router) {
			if jwtAuth != nil {
				r.Use(jwtAuth.Middleware)
			}

			r.With(rateLimit(chatLimiter)...).Post("/chat", chatHandler.Chat)

			// The socket applies the limit to every turn it serves
			r.Get("/chat/ws", chatSocket.HandleWebSocket)
		})

		// ──── Model Catalog (public) ────
		r.Get("/models", modelsHandler.List)

		// ──── Usage ────
		if usageHandler != nil {
			r.Group(func(r chi.Router) {
				if jwtAuth != nil {
					r.Use(jwtAuth.Middleware)
				}
				r.Get("/usage", usageHandler.Usage)
			})
		}
	})

	return r
}

func rateLimit(l middleware.Limiter) []func(http.Handler) http.Handler {
	if l == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{middleware.RateLimit(l)}
}
