package auth

import (
	"net/http"
	"strings"

	"github.com/fdg312/adreport/internal/config"
	"github.com/fdg312/adreport/internal/logger"
	"github.com/sirupsen/logrus"
)

// Middleware - middleware для проверки авторизации
type Middleware struct {
	config  *config.Config
	service *Service
	log     logrus.FieldLogger
}

func NewMiddleware(cfg *config.Config, service *Service, log logrus.FieldLogger) *Middleware {
	return &Middleware{
		config:  cfg,
		service: service,
		log:     log.WithField("component", "auth"),
	}
}

// Wrap picks RequireAuth or OptionalAuth from the config.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m.config.AuthRequired {
		return m.RequireAuth(next)
	}
	return m.OptionalAuth(next)
}

// RequireAuth - middleware для защиты эндпоинтов
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.AuthRequired || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := m.authenticateHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
	})
}

// OptionalAuth validates Bearer token only when it is provided.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.AuthMode == config.AuthModeNone || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := m.authenticateHeader(authHeader)
		if err != nil {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		ctx := WithSubject(r.Context(), subject)
		logger.WithContext(ctx, m.log).Debugf("token accepted: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticateHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidToken
	}

	return m.service.Verify(strings.TrimSpace(parts[1]))
}

func isPublicPath(path string) bool {
	return path == "/" || path == "/healthz" || strings.HasPrefix(path, "/api/auth/")
}
