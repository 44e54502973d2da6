package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Config struct {
	Secret   string        `env:"JWT_SECRET"`
	Issuer   string        `env:"JWT_ISSUER" envDefault:"entitle"`
	Audience string        `env:"JWT_AUDIENCE"`
	TTL      time.Duration `env:"JWT_TTL" envDefault:"1h"`
	Leeway   time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
}

// Claims are the registered claims plus the account email.
type Claims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Service signs and verifies tokens with HMAC-SHA256.
type Service struct {
	key    []byte
	cfg    Config
	now    func() time.Time
	parser *jwtlib.Parser
}

// New builds a Service. The secret is required.
func New(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return newService(cfg, time.Now), nil
}

func newService(cfg Config, now func() time.Time) *Service {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithLeeway(cfg.Leeway),
		jwtlib.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	return &Service{
		key:    []byte(cfg.Secret),
		cfg:    cfg,
		now:    now,
		parser: jwtlib.NewParser(opts...),
	}
}

// Issue signs a token for userID valid for the configured TTL.
func (s *Service) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.cfg.TTL)),
		},
		Email: email,
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwtlib.ClaimStrings{s.cfg.Audience}
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return token, nil
}

// Parse verifies the token and returns its claims. Expired tokens return
// ErrExpiredToken; every other rejection returns ErrInvalidToken.
func (s *Service) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, ErrMissingSubject
	}
	return claims, nil
}
