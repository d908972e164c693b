package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	loginLimiter := limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	})

	app.Post("/api/v1/login", loginLimiter, h.Login)
	app.Post("/api/v1/refresh", h.Refresh)
	app.Post("/api/v1/logout", h.Logout)

	// Session management for the authenticated account
	authed := app.Group("/api/v1", h.RequireAuth())
	authed.Get("/sessions", h.GetSessions)
	authed.Delete("/sessions", h.RevokeSessions)
	authed.Put("/password", h.ChangePassword)
}
