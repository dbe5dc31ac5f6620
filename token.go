package peerboard

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var ErrMalformedToken = fmt.Errorf("token is not a well-formed JWT")

// TokenInfo holds the unverified claims of an auth or widget token. The
// signature is never checked here; the remote service is the authority.
type TokenInfo struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

func InspectToken(raw string) (TokenInfo, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	info := TokenInfo{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// checkToken logs suspicious tokens. The token is forwarded regardless.
func checkToken(logger *zap.Logger, kind, raw string, now time.Time) {
	if raw == "" {
		return
	}

	info, err := InspectToken(raw)
	if err != nil {
		logger.Warn("Token will be forwarded unchecked",
			zap.String("token", kind),
			zap.Error(err),
		)
		return
	}

	if info.Expired(now) {
		logger.Warn("Token has expired",
			zap.String("token", kind),
			zap.String("subject", info.Subject),
			zap.Time("expiresAt", info.ExpiresAt),
		)
		return
	}

	logger.Debug("Token inspected",
		zap.String("token", kind),
		zap.String("subject", info.Subject),
	)
}
