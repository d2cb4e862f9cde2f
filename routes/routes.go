package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/llm-gateway/app"
	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware. No global timeout: streams outlive any fixed deadline
	// and each provider attempt is bounded by the dispatcher.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAPIKey)

		r.Post("/responses", deps.InferenceHandler.HandleCreateResponse)
		r.Post("/responses/stream", deps.InferenceHandler.HandleStreamResponse)
		r.Post("/chat.completions", deps.InferenceHandler.HandleChatCompletion)

		r.Get("/models", deps.ModelsHandler.HandleListModels)
		r.Get("/models/{name}", deps.ModelsHandler.HandleGetModel)

		r.Get("/usage", deps.UsageHandler.HandleGetUsage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, middleware.GetRequestIDFromContext(r.Context()), "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, utils.APIError{
			Code:      utils.CodeBadRequest,
			Message:   "method not allowed",
			RequestID: middleware.GetRequestIDFromContext(r.Context()),
		})
	})

	return r
}
