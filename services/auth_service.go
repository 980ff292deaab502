package services

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenLifetime = 24 * time.Hour

// AuthService authenticates portal operators
type AuthService struct {
	users     *repositories.UserRepository
	jwtSecret string
}

func NewAuthService(users *repositories.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{users: users, jwtSecret: jwtSecret}
}

// Register creates a new operator account
func (s *AuthService) Register(req dto.RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, newError(ErrValidation, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	role := req.Role
	switch role {
	case "":
		role = models.RoleTeacher
	case models.RoleTeacher, models.RoleAdmin:
	default:
		return nil, newError(ErrValidation, "Invalid role %q", role)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:    email,
		Password: string(hashedPassword),
		Name:     req.Name,
		Role:     role,
		IsActive: true,
	}
	if err := s.users.Create(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser retrieves a user by ID
func (s *AuthService) GetUser(id string) (*models.User, error) {
	user, err := s.users.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates a user and returns a token
func (s *AuthService) Login(req dto.LoginRequest) (*dto.AuthResponse, error) {
	invalid := newError(ErrForbidden, "invalid email or password")

	user, err := s.users.FindByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, invalid
	}
	if !user.IsActive {
		return nil, newError(ErrForbidden, "account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	token, expiresAt, err := s.GenerateToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &dto.AuthResponse{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// GenerateToken signs a HS256 token valid for 24 hours
func (s *AuthService) GenerateToken(userID, email, role string) (string, time.Time, error) {
	if s.jwtSecret == "" {
		return "", time.Time{}, newError(ErrConfiguration, "JWT_SECRET is not configured")
	}

	now := time.Now()
	expiresAt := now.Add(tokenLifetime)
	claims := dto.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims if valid
func (s *AuthService) ValidateToken(tokenString string) (*dto.TokenClaims, error) {
	if s.jwtSecret == "" {
		return nil, newError(ErrConfiguration, "JWT_SECRET is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &dto.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*dto.TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
