package actor

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
)

const principalKey = "actor_principal"

// Principal identifies who is performing a mutating call. Identity is
// used for history attribution only; its absence does not fail the
// request.
type Principal struct {
	ActorID string
	Source  string
}

// ActorRef returns a nullable reference for history records.
func (p Principal) ActorRef() *string {
	if p.ActorID == "" {
		return nil
	}
	id := p.ActorID
	return &id
}

// Middleware extracts the caller identity from a bearer JWT issued by
// the company identity provider, falling back to the X-Actor-ID header.
// No role or permission checks happen here.
type Middleware struct {
	secret []byte
}

// NewMiddleware constructs the identity middleware.
func NewMiddleware(secret string) *Middleware {
	return &Middleware{secret: []byte(secret)}
}

// Handle resolves the principal and stores it on the request.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	principal := Principal{}

	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if subject, err := m.parseSubject(parts[1]); err == nil {
				principal = Principal{ActorID: subject, Source: "token"}
			}
		}
	}
	if principal.ActorID == "" {
		if header := strings.TrimSpace(c.Get("X-Actor-ID")); header != "" {
			principal = Principal{ActorID: header, Source: "header"}
		}
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

func (m *Middleware) parseSubject(tokenStr string) (string, error) {
	parsed, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// FromContext retrieves the caller identity for the request.
func FromContext(c *fiber.Ctx) Principal {
	if val, ok := c.Locals(principalKey).(Principal); ok {
		return val
	}
	return Principal{}
}
