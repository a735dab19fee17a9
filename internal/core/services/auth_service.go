package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/pkg/config"
	"bintunet/pkg/utils"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Credential is one account known to the identity service.
type Credential struct {
	Profile    domain.UserProfile
	Password   string
	AccessCode string
}

// CredentialsFromConfig converts configured users into credentials.
func CredentialsFromConfig(users []config.UserConfig) []Credential {
	creds := make([]Credential, 0, len(users))
	for _, u := range users {
		creds = append(creds, Credential{
			Profile: domain.UserProfile{
				ID:         domain.UserID(u.ID),
				Email:      u.Email,
				Username:   u.Username,
				Tier:       domain.SubscriptionTier(u.Tier),
				Credits:    u.Credits,
				MaxStreams: u.MaxStreams,
			},
			Password:   u.Password,
			AccessCode: u.AccessCode,
		})
	}
	return creds
}

// IdentityService authenticates against a fixed credential list.
type IdentityService struct {
	credentials []Credential
	latency     time.Duration
	clock       clockwork.Clock
}

func NewIdentityService(credentials []Credential, latency time.Duration, clock clockwork.Clock) *IdentityService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IdentityService{
		credentials: credentials,
		latency:     latency,
		clock:       clock,
	}
}

// Authenticate matches identifier against email or username and requires
// the password and access code to match exactly.
func (s *IdentityService) Authenticate(ctx context.Context, identifier, secret, accessCode string) (*domain.UserProfile, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.latency):
		}
	}

	id := utils.NormalizeIdentifier(identifier)
	if id == "" {
		return nil, domain.ErrAuthFailure
	}
	for _, c := range s.credentials {
		if id != utils.NormalizeIdentifier(c.Profile.Email) && id != utils.NormalizeIdentifier(c.Profile.Username) {
			continue
		}
		if c.Password != secret || c.AccessCode != accessCode {
			return nil, domain.ErrAuthFailure
		}
		profile := c.Profile
		return &profile, nil
	}
	return nil, domain.ErrAuthFailure
}

// Lookup returns the profile with the given id.
func (s *IdentityService) Lookup(id domain.UserID) (*domain.UserProfile, bool) {
	for _, c := range s.credentials {
		if c.Profile.ID == id {
			profile := c.Profile
			return &profile, true
		}
	}
	return nil, false
}

type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	jwt.RegisteredClaims
}

// SessionID is the jti claim.
func (c *Claims) SessionID() domain.SessionID {
	return domain.SessionID(c.ID)
}

// TokenIssuer signs and validates HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clock clockwork.Clock) *TokenIssuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// GenerateToken issues a token for a session and returns its expiry.
func (t *TokenIssuer) GenerateToken(profile domain.UserProfile, sessionID domain.SessionID) (string, time.Time, error) {
	now := t.clock.Now()
	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		UserID:   profile.ID,
		Username: profile.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        string(sessionID),
			Subject:   string(profile.ID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (t *TokenIssuer) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.ID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

var _ ports.IdentityProvider = (*IdentityService)(nil)
