package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

// ErrInvalidToken is returned for malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

const DefaultTokenTTL = 24 * time.Hour

// Identity is the acting user carried by a validated token.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (Identity, error)
	IssueToken(userID uuid.UUID, role string) (string, error)
}

type service struct {
	users      repository.UserRepository
	wallets    repository.WalletRepository
	secret     []byte
	ttl        time.Duration
	autoVerify bool
	now        func() time.Time
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type Option func(*service)

func WithTokenTTL(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithAutoVerify marks new workers verified at registration. Document
// verification happens outside this service; this is for local setups.
func WithAutoVerify(v bool) Option { return func(s *service) { s.autoVerify = v } }

func NewService(users repository.UserRepository, wallets repository.WalletRepository, secret string, opts ...Option) Service {
	s := &service{
		users:   users,
		wallets: wallets,
		secret:  []byte(secret),
		ttl:     DefaultTokenTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || len(in.Password) < 8 {
		return nil, apperr.Validation("email and a password of at least 8 characters are required")
	}
	if in.Role != models.RoleClient && in.Role != models.RoleWorker {
		return nil, apperr.Validation("role must be client or worker")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	now := s.now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: string(hash),
		Role:         in.Role,
		IsVerified:   in.Role == models.RoleClient || s.autoVerify,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Validation("email already registered")
		}
		return nil, apperr.Internal("create user", err)
	}
	if _, err := s.wallets.Ensure(ctx, u.ID); err != nil {
		return nil, apperr.Internal("create wallet", err)
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	invalid := apperr.New(apperr.ReasonUnauthorized, "invalid credentials")
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return "", invalid
	}
	if err != nil {
		return "", apperr.Internal("load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", invalid
	}
	if !u.IsActive {
		return "", apperr.Unauthorized("account is disabled")
	}
	return s.IssueToken(u.ID, u.Role)
}

func (s *service) IssueToken(userID uuid.UUID, role string) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Role: c.Role}, nil
}
