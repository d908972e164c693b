package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pantryledger/auth-service/internal/auth/dto"
	"github.com/pantryledger/auth-service/internal/auth/service"
	autherror "github.com/pantryledger/auth-service/internal/errors"
)

type AuthHandler struct {
	authService *service.AuthService
	tokens      service.TokenGenerator
	validate    *validator.Validate
}

func NewAuthHandler(authService *service.AuthService, tokens service.TokenGenerator) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokens:      tokens,
		validate:    validator.New(),
	}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	tokenPair, err := h.authService.Login(c.UserContext(), input)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenPair)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	tokenPair, err := h.authService.Refresh(c.UserContext(), input)
	if err != nil {
		return writeAuthError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenPair)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input dto.LogoutInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	if err := h.authService.Logout(c.UserContext(), input.RefreshToken); err != nil {
		return writeAuthError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) GetSessions(c *fiber.Ctx) error {
	accountID := accountIDFromCtx(c)
	sessions, err := h.authService.Sessions(c.UserContext(), accountID)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sessions)
}

func (h *AuthHandler) RevokeSessions(c *fiber.Ctx) error {
	accountID := accountIDFromCtx(c)
	if err := h.authService.RevokeAllSessions(c.UserContext(), accountID); err != nil {
		return writeAuthError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var input dto.ChangePasswordInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	accountID := accountIDFromCtx(c)
	if err := h.authService.ChangePassword(c.UserContext(), accountID, input); err != nil {
		return writeAuthError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// writeAuthError maps the service error taxonomy onto the HTTP contract.
// Reasons are machine-readable and never say more than the taxonomy allows.
func writeAuthError(c *fiber.Ctx, err error) error {
	var locked *autherror.AccountLockedError
	if errors.As(err, &locked) {
		return c.Status(fiber.StatusLocked).JSON(fiber.Map{
			"error":               "account_locked",
			"retry_after_seconds": int(locked.RetryAfter.Seconds()),
		})
	}

	switch {
	case errors.Is(err, autherror.ErrIPNotAllowed):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "ip_not_allowed"})
	case errors.Is(err, autherror.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials"})
	case errors.Is(err, autherror.ErrSessionReuseDetected):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session_reuse_detected"})
	case errors.Is(err, autherror.ErrSessionExpired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session_expired"})
	case errors.Is(err, autherror.ErrSessionUnknown), errors.Is(err, autherror.ErrSessionRevoked):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_session"})
	case errors.Is(err, autherror.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}
