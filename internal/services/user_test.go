package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chatrelay/server/internal/apperror"
	"chatrelay/server/internal/store/storetest"
	"chatrelay/server/internal/utils"

	"github.com/stretchr/testify/require"
)

type failingIssuer struct{}

func (failingIssuer) GenerateToken(string) (string, error) {
	return "", errors.New("signing failed")
}

func newUserService(t *testing.T) (*UserService, *storetest.Memory, *utils.TokenManager) {
	t.Helper()
	st := storetest.NewMemory()
	tokens := utils.NewTokenManager("test-secret", time.Hour)
	return NewUserService(st, tokens, quietLogger(), time.Second), st, tokens
}

func TestUserService_SignupAndLogin(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	svc, _, tokens := newUserService(t)

	signed, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: " Alice@Example.com ", Password: "secret"})
	r.NoError(err)
	r.Equal("alice@example.com", signed.Email)
	r.NotEmpty(signed.ID)

	subject, err := tokens.Verify(signed.Token)
	r.NoError(err)
	r.Equal(signed.ID, subject)

	logged, err := svc.Login(ctx, LoginInput{Email: "ALICE@example.com", Password: "secret"})
	r.NoError(err)
	r.Equal(signed.ID, logged.ID)
	r.NotEmpty(logged.Token)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
	r.ErrorIs(err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret"})
	r.ErrorIs(err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com"})
	r.ErrorIs(err, apperror.ErrInvalidInput)
}

func TestUserService_SignupRejects(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t)

	_, err := svc.Signup(ctx, SignupInput{Name: "Alice", Email: "alice@example.com", Password: "secret"})
	require.NoError(t, err)

	bad := "not a url"
	tests := []struct {
		name string
		in   SignupInput
		msg  string
	}{
		{"missing name", SignupInput{Email: "a@b.co", Password: "x"}, "Please enter all the fields"},
		{"missing password", SignupInput{Name: "A", Email: "a@b.co"}, "Please enter all the fields"},
		{"bad email", SignupInput{Name: "A", Email: "nope", Password: "x"}, "Invalid email address"},
		{"bad pic", SignupInput{Name: "A", Email: "a@b.co", Password: "x", Pic: &bad}, "Invalid picture URL"},
		{"duplicate", SignupInput{Name: "Other", Email: "ALICE@example.com", Password: "x"}, "User already exists"},
		{"password over 72 bytes", SignupInput{Name: "A", Email: "long@b.co", Password: strings.Repeat("p", 73)}, "Password must be at most 72 bytes"},
		{"multibyte password over 72 bytes", SignupInput{Name: "A", Email: "long@b.co", Password: strings.Repeat("é", 37)}, "Password must be at most 72 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.in)
			require.ErrorIs(t, err, apperror.ErrInvalidInput)
			require.Equal(t, tt.msg, apperror.PublicMessage(err))
		})
	}
}

func TestUserService_SignupTokenFailure(t *testing.T) {
	st := storetest.NewMemory()
	svc := NewUserService(st, failingIssuer{}, quietLogger(), time.Second)

	_, err := svc.Signup(context.Background(), SignupInput{Name: "A", Email: "a@b.co", Password: "x"})
	require.ErrorIs(t, err, apperror.ErrInternal)
}

func TestUserService_SearchAndProfile(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	svc, st, _ := newUserService(t)

	alice := st.AddUser("Alice", "alice@example.com")
	st.AddUser("Alicia", "alicia@example.com")
	st.AddUser("Bob", "bob@mail.org")

	found, err := svc.Search(ctx, alice, "ALI")
	r.NoError(err)
	r.Len(found, 1)
	r.Equal("Alicia", found[0].Name)

	byEmail, err := svc.Search(ctx, alice, "mail.org")
	r.NoError(err)
	r.Len(byEmail, 1)
	r.Equal("Bob", byEmail[0].Name)

	everyone, err := svc.Search(ctx, alice, "")
	r.NoError(err)
	r.Len(everyone, 2)

	me, err := svc.Profile(ctx, alice)
	r.NoError(err)
	r.Equal("alice@example.com", me.Email)

	_, err = svc.Profile(ctx, "00000000-0000-0000-0000-000000000000")
	r.ErrorIs(err, apperror.ErrUnauthorized)
}
