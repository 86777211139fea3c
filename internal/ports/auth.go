package ports

import (
	"context"
	"time"
)

type Identity struct {
	SubjectID string
	Role      string
	ExpiresAt time.Time
}

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
