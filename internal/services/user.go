package services

import (
	"context"
	"fmt"
	"time"

	"dance-match-backend/internal/models"
	"dance-match-backend/internal/repository"
	apperrors "dance-match-backend/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtExpDays = 365

// UserService issues and validates API identities
type UserService struct {
	userRepo  repository.UserRepository
	jwtSecret string
	retry     RetryPolicy
}

// NewUserService creates a new user service
func NewUserService(userRepo repository.UserRepository, jwtSecret string, retry RetryPolicy) *UserService {
	return &UserService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
		retry:     retry,
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w: %w", apperrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token: %w", apperrors.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims: %w", apperrors.ErrUnauthorized)
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token: %w", apperrors.ErrUnauthorized)
	}
	return userID, nil
}

// CreateUser creates a new anonymous user with a signed token
func (s *UserService) CreateUser(ctx context.Context) (*models.User, error) {
	userID := uuid.New().String()
	token, err := s.GenerateJWT(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user := &models.User{
		ID:        userID,
		Token:     token,
		CreatedAt: time.Now(),
	}
	if _, err := retry(ctx, s.retry, "create_user", func() (struct{}, error) {
		return struct{}{}, s.userRepo.Create(ctx, user)
	}); err != nil {
		return nil, err
	}
	return user, nil
}
