package handlers

import (
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/identity"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.Register(&req)
	if err != nil {
		return writeError(c, err)
	}

	slog.Info("user registered", "user_id", resp.Data.ID)
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	tokenID, err := identity.TokenID(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.authService.Logout(tokenID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}

	user, err := h.authService.Me(userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(dto.DataResponse{Message: "success", Data: dto.NewUserResponse(user)})
}
