package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// HMACVerifier validates HS256 bearer tokens issued by the platform gateway.
type HMACVerifier struct {
	secret []byte
	issuer string
}

type trustClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewHMACVerifier(secret, issuer string) (*HMACVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &HMACVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, raw string) (ports.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &trustClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return ports.Identity{}, err
	}
	claims, ok := parsed.Claims.(*trustClaims)
	if !ok || !parsed.Valid {
		return ports.Identity{}, errors.New("invalid token claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ports.Identity{}, errors.New("token subject is required")
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = "user"
	}
	return ports.Identity{
		SubjectID: claims.Subject,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Sign issues a token for the subject. Used by trustctl and tests.
func (v *HMACVerifier) Sign(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, trustClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
