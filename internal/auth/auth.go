package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"crashround/internal/game"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the session claims issued by the identity service.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() game.Identity {
	return game.Identity{
		UserID:   strconv.FormatInt(c.ID, 10),
		Username: c.Username,
		IsAdmin:  c.IsAdmin,
	}
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *Verifier) Verify(token string) (game.Identity, error) {
	if token == "" {
		return game.Identity{}, ErrInvalidToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return game.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID <= 0 || claims.Username == "" {
		return game.Identity{}, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	return claims.Identity(), nil
}

// Issue signs a token for the given user. Used by tools and tests; the
// production identity service issues its own.
func (v *Verifier) Issue(id int64, username string, isAdmin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:       id,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
