package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"userapi/internal/config"
)

var (
	// ErrTokenInvalid covers signature mismatch and malformed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's signature is fine but its
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// accessClaims is what an access token carries: the owning user and the
// signed refresh token it was derived from. Embedding the refresh token lets
// a single verification step recover both credentials.
type accessClaims struct {
	jwt.RegisteredClaims
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

// refreshClaims is the inner token. It only identifies the user; its
// authority comes from the matching record in the credential store.
type refreshClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// AccessToken is the result of a successful two-layer verification.
type AccessToken struct {
	UserID       string
	RefreshToken string
}

// TokenIssuer mints and verifies the paired access/refresh tokens. It is a
// pure function of its secrets and the clock; persistence of refresh tokens
// is the caller's responsibility, which is what enables multi-device
// sessions.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer builds an issuer from the JWT configuration section.
func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// IssueRefresh mints a signed refresh token for userID. No storage side
// effect.
func (i *TokenIssuer) IssueRefresh(userID string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
		UserID: userID,
	})
	return token.SignedString(i.refreshSecret)
}

// Issue mints a signed access token binding userID to an already-signed
// refresh token. The two layers use independent secrets and expiries.
func (i *TokenIssuer) Issue(userID, refreshToken string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		UserID:       userID,
		RefreshToken: refreshToken,
	})
	return token.SignedString(i.accessSecret)
}

// VerifyAccess validates the outer signature and expiry, then the embedded
// refresh token's signature and expiry. Both checks run; an access token
// whose inner refresh token has lapsed is rejected even if the outer token
// is still fresh.
func (i *TokenIssuer) VerifyAccess(tokenString string) (*AccessToken, error) {
	claims := &accessClaims{}
	if err := i.parse(tokenString, claims, i.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.RefreshToken == "" {
		return nil, ErrTokenInvalid
	}

	inner := &refreshClaims{}
	if err := i.parse(claims.RefreshToken, inner, i.refreshSecret); err != nil {
		return nil, err
	}
	if inner.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return &AccessToken{UserID: claims.UserID, RefreshToken: claims.RefreshToken}, nil
}

// VerifyRefresh validates a bare refresh token and returns the owning user
// ID. Used by the refresh flow, where the client presents the refresh token
// directly.
func (i *TokenIssuer) VerifyRefresh(tokenString string) (string, error) {
	claims := &refreshClaims{}
	if err := i.parse(tokenString, claims, i.refreshSecret); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}

func (i *TokenIssuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
