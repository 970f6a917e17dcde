package services

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email has already been taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
)

const minPasswordLength = 8

type AuthService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

func (s *AuthService) Register(req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	verr := &ValidationError{}
	if req.Name == "" {
		verr.add("name", "The name field is required.")
	} else if len(req.Name) > 255 {
		verr.add("name", "The name field must not be greater than 255 characters.")
	}
	if req.Email == "" {
		verr.add("email", "The email field is required.")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		verr.add("email", "The email field must be a valid email address.")
	}
	if len(req.Password) < minPasswordLength {
		verr.add("password", fmt.Sprintf("The password field must be at least %d characters.", minPasswordLength))
	} else if req.Password != req.PasswordConfirmation {
		verr.add("password", "The password field confirmation does not match.")
	}
	if !verr.empty() {
		return nil, verr
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, newValidationError(ErrEmailTaken, "email", "The email has already been taken.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
	}
	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newValidationError(ErrEmailTaken, "email", "The email has already been taken.")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issueToken(&user, "User registered successfully")
}

func (s *AuthService) Login(req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		verr := &ValidationError{}
		if email == "" {
			verr.add("email", "The email field is required.")
		}
		if req.Password == "" {
			verr.add("password", "The password field is required.")
		}
		return nil, verr
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueToken(&user, "Login successful")
}

// Logout revokes the access token identified by tokenID.
func (s *AuthService) Logout(tokenID uuid.UUID) error {
	return s.db.Model(&models.AccessToken{}).
		Where("id = ?", tokenID).
		Update("revoked", true).Error
}

func (s *AuthService) Me(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CheckToken reports whether the token row behind a verified JWT is still usable.
func (s *AuthService) CheckToken(tokenID uuid.UUID, userID uint) error {
	var token models.AccessToken
	if err := s.db.Where("id = ? AND user_id = ?", tokenID, userID).First(&token).Error; err != nil {
		return ErrInvalidToken
	}
	if token.Revoked || time.Now().After(token.ExpiresAt) {
		return ErrInvalidToken
	}
	return nil
}

func (s *AuthService) issueToken(user *models.User, message string) (*dto.AuthResponse, error) {
	now := time.Now()
	record := models.AccessToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.cfg.JWTAccessExpiry),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(user.ID), 10),
		"jti":   record.ID.String(),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   record.ExpiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &dto.AuthResponse{
		Message: message,
		Token:   signed,
		Data:    dto.NewUserResponse(user),
	}, nil
}
