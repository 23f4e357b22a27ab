// Package auth mints and verifies channel join tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL is used when the minter is built with a zero TTL.
	DefaultTTL = 1 * time.Hour

	Issuer   = "huddle"
	Audience = "huddle-channel"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenMismatch = errors.New("token does not match channel")
	ErrEmptySecret   = errors.New("token secret is empty")
)

// Claims binds a session to one channel of one workspace.
type Claims struct {
	jwt.RegisteredClaims
	Workspace domain.WorkspaceID `json:"workspace"`
	Channel   domain.ChannelName `json:"channel"`
	Role      domain.Role        `json:"role"`
}

func (c *Claims) Key() domain.ChannelKey {
	return domain.ChannelKey{Workspace: c.Workspace, Name: c.Channel}
}

// UserID is the subject the token was minted for.
func (c *Claims) UserID() domain.UserID {
	return domain.UserID(c.Subject)
}

type Minter struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewMinter(secret string, ttl time.Duration) (*Minter, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint signs a token for uid to join key with role.
func (m *Minter) Mint(key domain.ChannelKey, uid domain.UserID, role domain.Role) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   string(uid),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Workspace: key.Workspace,
		Channel:   key.Name,
		Role:      role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	log.Debug().Str("module", "auth").Str("channel", key.String()).Str("uid", string(uid)).Msg("minted token")
	return signed, exp, nil
}

// Verify checks signature, issuer, audience and expiry.
func (m *Minter) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// VerifyFor additionally checks the token belongs to uid and key.
func (m *Minter) VerifyFor(token string, key domain.ChannelKey, uid domain.UserID) (*Claims, error) {
	claims, err := m.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Key() != key {
		return nil, fmt.Errorf("%w: token for %s, requested %s", ErrTokenMismatch, claims.Key(), key)
	}
	if claims.UserID() != uid {
		return nil, fmt.Errorf("%w: token subject differs from session", ErrTokenMismatch)
	}
	return claims, nil
}
