package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/learnizone/enrollcore/pkg/enrollment"
)

// DefaultTokenTTL is the lifetime of tokens issued by TokenManager
const DefaultTokenTTL = 24 * time.Hour

const localUserID = "user_id"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenManager issues and validates HS256 bearer tokens whose subject is
// the caller's user id
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager. An empty secret is rejected.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for userID
func (m *TokenManager) Issue(userID string) (string, error) {
	if userID == "" {
		return "", enrollment.ErrNotAuthenticated
	}
	now := m.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate checks the signature, issuer and expiry and returns the user id
func (m *TokenManager) Validate(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// authenticate resolves the bearer token into the caller's user id
func (s *Server) authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return errorResponse(c, fmt.Errorf("%w: missing bearer token", enrollment.ErrNotAuthenticated))
		}
		userID, err := s.tokens.Validate(token)
		if err != nil {
			return errorResponse(c, fmt.Errorf("%w: %v", enrollment.ErrNotAuthenticated, err))
		}
		c.Locals(localUserID, userID)
		return c.Next()
	}
}

// callerID returns the authenticated user id, empty if none
func callerID(c *fiber.Ctx) string {
	userID, _ := c.Locals(localUserID).(string)
	return userID
}
