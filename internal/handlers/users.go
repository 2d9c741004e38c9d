package handlers

import (
	"chatrelay/server/internal/middleware"
	"chatrelay/server/internal/services"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Signup handles user registration
func (h *UserHandler) Signup(c *fiber.Ctx) error {
	var req services.SignupInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.users.Signup(c.UserContext(), req)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, resp)
}

func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := h.users.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, resp)
}

// Search lists users matching ?search= by name or email, without the caller.
func (h *UserHandler) Search(c *fiber.Ctx) error {
	users, err := h.users.Search(c.UserContext(), middleware.GetUserID(c), c.Query("search"))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, users)
}

// CheckAccess returns the profile behind the presented token.
func (h *UserHandler) CheckAccess(c *fiber.Ctx) error {
	user, err := h.users.Profile(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, user)
}
