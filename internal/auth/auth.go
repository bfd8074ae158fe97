// Package auth verifies caller identity for the quiz core. Account
// provisioning lives elsewhere; this only parses and validates the token the
// identity collaborator issued.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classquiz-service/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	Role string `json:"role"` // "teacher" or "student"
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 tokens.
type Service struct{ hmac []byte }

func NewService(secret string) *Service { return &Service{hmac: []byte(secret)} }

func (s *Service) Issue(sub, name string, role domain.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  sub,
		Name: name,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "classquiz-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(8 * time.Hour)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.hmac)
}

func (s *Service) Parse(tokenStr string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.hmac, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrUnauthorized
	}
	c, ok := token.Claims.(*Claims)
	if !ok || c.Sub == "" {
		return domain.Identity{}, ErrUnauthorized
	}
	role := domain.Role(c.Role)
	if role != domain.RoleTeacher && role != domain.RoleStudent {
		return domain.Identity{}, ErrUnauthorized
	}
	return domain.Identity{UserID: c.Sub, Name: c.Name, Role: role}, nil
}

// Identify extracts the caller from a request. Browsers cannot set headers on
// websocket upgrades, so a "token" query parameter is accepted as a fallback.
func (s *Service) Identify(r *http.Request) (domain.Identity, error) {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return s.Parse(strings.TrimPrefix(h, "Bearer "))
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return s.Parse(tok)
	}
	return domain.Identity{}, ErrUnauthorized
}
