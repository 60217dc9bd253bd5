package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the session issued by the identity provider.
type Claims struct {
	PlayerID    string   `json:"playerId"`
	DisplayName string   `json:"displayName"`
	Rating      *int     `json:"rating,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secretKey string
	duration  time.Duration
}

func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
	}
}

// Generate signs a session token. The orchestrator only verifies tokens; this
// exists for the admin CLI and tests.
func (m *JWTManager) Generate(playerID, displayName string, rating *int, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID:    playerID,
		DisplayName: displayName,
		Rating:      rating,
		Roles:       roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(m.secretKey), nil
		},
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
