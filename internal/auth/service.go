// Package auth handles parent accounts: signup, login, JWT issuance and the
// preference and interest updates made on behalf of a logged-in user.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/models"
)

var (
	ErrUserExists    = errors.New("user already exists")
	ErrInvalidCreds  = errors.New("invalid credentials")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownSchool = errors.New("school is not monitored")
)

const minPasswordLength = 8

// UserStore is the persistence auth needs. *db.Store implements it.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, name, phone string) (*models.User, error)
	UserCredentials(ctx context.Context, email string) (*db.Credentials, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdatePreferences(ctx context.Context, id uuid.UUID, p models.NotificationPreferences) (*models.User, error)
	AddInterest(ctx context.Context, userID uuid.UUID, schoolNo string) (*models.InterestedSchool, error)
	RemoveInterest(ctx context.Context, userID uuid.UUID, schoolNo string) error
	ListInterests(ctx context.Context, userID uuid.UUID) ([]models.InterestedSchool, error)
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type Service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewService signs tokens with secret. An empty secret is replaced by a
// random one, which invalidates every token on restart.
func NewService(store UserStore, secret string, ttl time.Duration, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
		}
		key = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Warn("JWT secret is not set; using ephemeral in-memory fallback secret")
	}
	return &Service{store: store, secret: key, ttl: ttl, now: time.Now, log: log.Named("auth")}, nil
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email address", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash), strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone))
	if errors.Is(err, db.ErrEmailTaken) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user signed up", zap.String("user_id", user.ID.String()))
	return &AuthResponse{Token: token, User: *user}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	creds, err := s.store.UserCredentials(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}
	if !creds.IsActive {
		return nil, ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	if err := s.store.TouchLogin(ctx, creds.UserID, s.now()); err != nil {
		s.log.Warn("record last login", zap.String("user_id", creds.UserID.String()), zap.Error(err))
	}
	user, err := s.store.GetUser(ctx, creds.UserID)
	if err != nil {
		return nil, err
	}
	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: *user}, nil
}

func (s *Service) GenerateToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken validates a token and returns the user it was issued to.
func (s *Service) ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid or expired token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject: %w", err)
	}
	return uuid.Parse(sub)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.store.GetUser(ctx, userID)
}

// UpdatePreferences replaces the user's notification settings. An empty
// frequency means immediate.
func (s *Service) UpdatePreferences(ctx context.Context, userID uuid.UUID, p models.NotificationPreferences) (*models.User, error) {
	switch p.Frequency {
	case "":
		p.Frequency = models.DigestImmediate
	case models.DigestImmediate, models.DigestDaily, models.DigestWeekly:
	default:
		return nil, fmt.Errorf("%w: frequency must be immediate, daily or weekly", ErrInvalidInput)
	}
	return s.store.UpdatePreferences(ctx, userID, p)
}

func (s *Service) AddInterest(ctx context.Context, userID uuid.UUID, schoolNo string) (*models.InterestedSchool, error) {
	schoolNo = strings.TrimSpace(schoolNo)
	if schoolNo == "" {
		return nil, fmt.Errorf("%w: school number is required", ErrInvalidInput)
	}
	in, err := s.store.AddInterest(ctx, userID, schoolNo)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUnknownSchool
	}
	return in, err
}

func (s *Service) RemoveInterest(ctx context.Context, userID uuid.UUID, schoolNo string) error {
	return s.store.RemoveInterest(ctx, userID, schoolNo)
}

func (s *Service) ListInterests(ctx context.Context, userID uuid.UUID) ([]models.InterestedSchool, error) {
	return s.store.ListInterests(ctx, userID)
}
