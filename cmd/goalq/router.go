package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/goalq/internal/api"
	apiMiddleware "github.com/phrazzld/goalq/internal/api/middleware"
	"github.com/phrazzld/goalq/internal/service/auth"
)

// setupRouter builds the HTTP handler. The health probe is public; every
// task route passes the IP allow-list, authentication and the rate limit,
// in that order.
func (app *application) setupRouter() (http.Handler, error) {
	authenticator, err := auth.NewAuthenticator(app.config.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}

	allowList, err := apiMiddleware.NewIPAllowList(app.config.Auth.AllowedIPs)
	if err != nil {
		return nil, fmt.Errorf("invalid auth.allowed_ips: %w", err)
	}

	authMiddleware := apiMiddleware.NewAuthMiddleware(authenticator)
	taskHandler := api.NewTaskHandler(app.taskService)
	healthHandler := api.NewHealthHandler(app.config.Store.Driver, app.dispatcher != nil, version)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Group(func(r chi.Router) {
			r.Use(allowList.Middleware)
			r.Use(authMiddleware.Authenticate)
			if app.config.RateLimit.Enabled {
				r.Use(apiMiddleware.NewRateLimiter(app.config.RateLimit.RequestsPerMinute).Middleware)
			}

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", taskHandler.SubmitTask)
				r.Get("/", taskHandler.ListTasks)
				r.Get("/{id}", taskHandler.GetTask)
				r.Delete("/{id}", taskHandler.CancelTask)
			})
		})
	})

	return r, nil
}
