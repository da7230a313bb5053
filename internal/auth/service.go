package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/adreport/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrDevDisabled  = errors.New("dev tokens are disabled")
)

const (
	devSubject = "dev-user"
	devTTL     = 30 * 24 * time.Hour
)

// Service выпускает и проверяет HS256 JWT
type Service struct {
	config *config.Config
	now    func() time.Time
}

func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg, now: time.Now}
}

// IssueDev - dev-токен на 30 дней, только при AUTH_MODE=dev
func (s *Service) IssueDev() (*TokenResponse, error) {
	if s.config.AuthMode != config.AuthModeDev {
		return nil, ErrDevDisabled
	}

	token, err := s.Issue(devSubject, devTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dev JWT: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(devTTL.Seconds()),
	}, nil
}

// Issue signs a token for subject. A zero ttl uses JWT_TTL_MINUTES.
func (s *Service) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Duration(s.config.JWTTTLMinutes) * time.Minute
	}
	now := s.now()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.config.JWTIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// Verify проверяет подпись, срок и issuer, возвращает subject
func (s *Service) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithIssuer(s.config.JWTIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
