package services

import (
	"context"
	"errors"
	"testing"

	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

func TestCreateUserIssuesValidToken(t *testing.T) {
	repos := repository.NewMemoryRepositories(repository.NewMemoryStore())
	svc := NewUserService(repos.User, "secret", testRetry)

	user, err := svc.CreateUser(context.Background())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := repos.User.GetByID(context.Background(), user.ID); err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	userID, err := svc.ValidateJWT(user.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("token resolves to %s, want %s", userID, user.ID)
	}
}

func TestValidateJWTRejectsForeignTokens(t *testing.T) {
	svc := NewUserService(nil, "secret", testRetry)
	other := NewUserService(nil, "other-secret", testRetry)

	token, _ := other.GenerateJWT("alice")
	if _, err := svc.ValidateJWT(token); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for a foreign signature, got %v", err)
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := svc.ValidateJWT(unsigned); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for an unsigned token, got %v", err)
	}

	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString([]byte("secret"))
	if _, err := svc.ValidateJWT(noUser); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without user_id, got %v", err)
	}
}
