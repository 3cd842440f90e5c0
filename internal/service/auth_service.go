package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/dto"
)

// AdminRole is the role claim carried by administrator tokens.
const AdminRole = "admin"

// TokenIssuer is the iss claim of every token this service signs.
const TokenIssuer = "mural-api"

// AuthService exchanges the shared administrator passphrase for a short-lived token.
type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error)
}

// AdminClaims is the JWT payload of an administrator session.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	passphrase []byte
	enabled    bool
	secret     []byte
	ttl        time.Duration
	clock      Clock
	validator  *validator.Validate
	logger     zerolog.Logger
}

// AuthOptions configures the administrator gate. An empty passphrase disables it.
type AuthOptions struct {
	Passphrase string
	Enabled    bool
	Secret     string
	TTL        time.Duration
	Clock      Clock
}

// NewAuthService constructs the administrator gate.
func NewAuthService(opts AuthOptions, validate *validator.Validate, logger zerolog.Logger) AuthService {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &authService{
		passphrase: []byte(opts.Passphrase),
		enabled:    opts.Enabled && opts.Passphrase != "",
		secret:     []byte(opts.Secret),
		ttl:        ttl,
		clock:      clock,
		validator:  validate,
		logger:     logger.With().Str("component", "auth_service").Logger(),
	}
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error) {
	if !s.enabled {
		return dto.LoginResponse{}, ErrAdminDisabled
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.LoginResponse{}, err
	}

	if subtle.ConstantTimeCompare([]byte(req.Passphrase), s.passphrase) != 1 {
		s.logger.Warn().Msg("rejected administrator login")
		return dto.LoginResponse{}, ErrInvalidPassphrase
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Subject:   AdminRole,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return dto.LoginResponse{}, err
	}

	s.logger.Info().Str("token_id", claims.ID).Msg("administrator session issued")
	return dto.LoginResponse{Token: token, ExpiresAt: expiresAt.Unix(), Role: AdminRole}, nil
}
