package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wuwenbin0122/marefa.ai/internal/auth"
	"github.com/wuwenbin0122/marefa.ai/internal/models"
)

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	registerResult, err := svc.Register(context.Background(), auth.RegisterInput{
		Name:     "Ahmed Hassan",
		Email:    "ahmed@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if registerResult.Token == "" {
		t.Fatalf("expected token on registration")
	}

	if registerResult.User.Name != "Ahmed Hassan" {
		t.Fatalf("expected name Ahmed Hassan, got %s", registerResult.User.Name)
	}

	if registerResult.User.Role != models.UserRoleUser {
		t.Fatalf("expected role %s, got %s", models.UserRoleUser, registerResult.User.Role)
	}

	if registerResult.User.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped")
	}

	claims, err := svc.VerifyToken(registerResult.Token)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}

	if claims.Subject != registerResult.User.ID {
		t.Fatalf("expected token subject %s, got %s", registerResult.User.ID, claims.Subject)
	}

	if claims.IsAdmin() {
		t.Fatalf("expected regular user token")
	}

	if _, err := svc.Register(context.Background(), auth.RegisterInput{
		Name:     "Someone Else",
		Email:    "AHMED@example.com",
		Password: "another!",
	}); !errors.Is(err, auth.ErrEmailExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	loginResult, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    " Ahmed@Example.com ",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	if loginResult.User.ID != registerResult.User.ID {
		t.Fatalf("expected login user %s, got %s", registerResult.User.ID, loginResult.User.ID)
	}

	if _, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ahmed@example.com",
		Password: "wrong",
	}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	cases := []struct {
		name  string
		input auth.RegisterInput
		want  error
	}{
		{"missing name", auth.RegisterInput{Email: "a@example.com", Password: "secret1"}, auth.ErrNameRequired},
		{"missing email", auth.RegisterInput{Name: "A", Password: "secret1"}, auth.ErrEmailRequired},
		{"short password", auth.RegisterInput{Name: "A", Email: "a@example.com", Password: "12345"}, auth.ErrPasswordTooWeak},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthServiceSeedAdmin(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	if err := svc.SeedAdmin("", ""); err != nil {
		t.Fatalf("expected empty admin seed to be ignored, got %v", err)
	}

	if err := svc.SeedAdmin("admin@marefasource.ai", "admin123"); err != nil {
		t.Fatalf("seed admin failed: %v", err)
	}

	result, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "admin@marefasource.ai",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}

	claims, err := svc.VerifyToken(result.Token)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}

	if !claims.IsAdmin() {
		t.Fatalf("expected admin claims, got role %q", claims.Role)
	}
}

func TestAuthServiceRejectsForeignTokens(t *testing.T) {
	issuer, _ := auth.NewService("secret-a", time.Hour)
	verifier, _ := auth.NewService("secret-b", time.Hour)

	result, err := issuer.Register(context.Background(), auth.RegisterInput{
		Name:     "Fatima",
		Email:    "fatima@example.com",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if _, err := verifier.VerifyToken(result.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}

	if _, err := auth.NewService("  ", time.Hour); !errors.Is(err, auth.ErrSecretRequired) {
		t.Fatalf("expected secret required error, got %v", err)
	}
}
