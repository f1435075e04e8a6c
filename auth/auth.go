// Package auth verifies the access token a connection presents when it
// opens a session socket, turning it into a player identity when the token
// is valid, falling back to a displayed-name-carrying anonymous identity
// when it is not, and refusing the connection outright when neither a
// usable token nor a displayed name was presented.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenExpired and ErrTokenInvalid distinguish the two ways a presented
// token can fail verification, mostly for logging; in IdentifyConnection
// both fall back to an anonymous identity when a displayed name was given.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrIdentityRequired is returned by IdentifyConnection when the
	// connection presented neither a valid access token nor a displayed
	// name to fall back to — the caller must refuse the join.
	ErrIdentityRequired = errors.New("auth: either credentials or displayed name required")
)

// Claims is the payload carried by an access token minted for a registered
// player.
type Claims struct {
	PlayerID    uuid.UUID `json:"playerId"`
	DisplayName string    `json:"displayName"`
	jwt.RegisteredClaims
}

// JWTService mints and validates access tokens for registered players.
// A connection that presents no token, or an invalid one, is handled as an
// anonymous player when it supplies a displayed name, and refused otherwise
// (see IdentifyConnection).
type JWTService struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewJWTService builds a service signing and validating HS256 tokens with
// the given secret.
func NewJWTService(secret string, issuer string, tokenTTL time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), issuer: issuer, tokenTTL: tokenTTL}
}

// GenerateAccessToken mints a signed token identifying playerID.
func (s *JWTService) GenerateAccessToken(playerID uuid.UUID, displayName string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID:    playerID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			Subject:   playerID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and verifies tokenStr, returning the claims it
// carries. Callers treat any returned error as "fall back to anonymous",
// distinguishing expiry from other invalidity only for diagnostics.
func (s *JWTService) ValidateAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrTokenInvalid, t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Identity is the resolved outcome of verifying a connection's token: either
// a registered player id plus display name, or the anonymous case.
type Identity struct {
	PlayerID    uuid.UUID
	DisplayName string
	Anonymous   bool
}

// IdentifyConnection resolves a connection's presented credentials to an
// Identity. A valid tokenStr resolves to its registered player. A missing or
// invalid token falls back to an anonymous identity named by displayName,
// the way an unauthenticated session participant is still expected to
// supply a name. If neither a valid token nor a displayName was presented,
// ErrIdentityRequired is returned and the caller must refuse the join
// rather than invent an anonymous identity with no name at all.
func (s *JWTService) IdentifyConnection(tokenStr, displayName string) (Identity, error) {
	if tokenStr != "" {
		if claims, err := s.ValidateAccessToken(tokenStr); err == nil {
			return Identity{PlayerID: claims.PlayerID, DisplayName: claims.DisplayName}, nil
		}
	}
	if displayName == "" {
		return Identity{}, ErrIdentityRequired
	}
	return Identity{PlayerID: uuid.New(), DisplayName: displayName, Anonymous: true}, nil
}
