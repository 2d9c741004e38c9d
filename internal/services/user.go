package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/models"
	"chatrelay/server/internal/store"
	"chatrelay/server/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const SearchLimit = 50

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	GenerateToken(userID string) (string, error)
}

type SignupInput struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required"`
	Pic      *string `json:"pic,omitempty" validate:"omitempty,url"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UserService struct {
	base
	tokens   TokenIssuer
	validate *validator.Validate
}

func NewUserService(st store.Store, tokens TokenIssuer, log logrus.FieldLogger, timeout time.Duration) *UserService {
	return &UserService{
		base:     newBase(st, log.WithField("service", "user"), timeout),
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.AuthResponse, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Pic != nil && strings.TrimSpace(*in.Pic) == "" {
		in.Pic = nil
	}

	if err := s.validate.Struct(in); err != nil {
		return nil, apperror.InvalidInput(validationMessage(err))
	}

	hash, err := utils.HashPassword(in.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return nil, apperror.InvalidInput("Password must be at most 72 bytes")
	}
	if err != nil {
		return nil, s.fail("hash password", err)
	}

	user := &models.User{Name: in.Name, Email: in.Email, Password: hash, Pic: in.Pic}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrEmailTaken) {
		return nil, apperror.InvalidInput("User already exists")
	}
	if err != nil {
		return nil, s.fail("create user", err)
	}

	s.log.WithField("user_id", user.ID).Info("user signed up")
	return s.authResponse(user)
}

// Login fails with the same Unauthorized error for an unknown email and a
// wrong password.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*models.AuthResponse, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate.Struct(in); err != nil {
		return nil, apperror.InvalidInput("Email and password are required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, apperror.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, s.fail("get user by email", err)
	}

	if !utils.CheckPassword(user.Password, in.Password) {
		return nil, apperror.Unauthorized("Invalid email or password")
	}
	return s.authResponse(user)
}

// Search lists users whose name or email contains term, excluding the caller.
func (s *UserService) Search(ctx context.Context, callerID, term string) ([]models.UserResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	users, err := s.store.SearchUsers(ctx, term, callerID, SearchLimit)
	if err != nil {
		return nil, s.fail("search users", err)
	}
	return lo.Map(users, func(u models.User, _ int) models.UserResponse { return u.ToResponse() }), nil
}

// Profile returns the caller. A token for a deleted user is Unauthorized.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.UserResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, apperror.Unauthorized("Unauthorized")
	}
	if err != nil {
		return nil, s.fail("get user", err)
	}
	resp := user.ToResponse()
	return &resp, nil
}

func (s *UserService) authResponse(user *models.User) (*models.AuthResponse, error) {
	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return nil, s.fail("generate token", err)
	}
	return &models.AuthResponse{UserResponse: user.ToResponse(), Token: token}, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}

	switch fe := verrs[0]; fe.Tag() {
	case "required":
		return "Please enter all the fields"
	case "email":
		return "Invalid email address"
	case "url":
		return "Invalid picture URL"
	default:
		return "Invalid " + strings.ToLower(fe.Field())
	}
}
