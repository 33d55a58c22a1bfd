// Package auth verifies bearer session tokens. Tokens are compact
// HS256 JWTs signed with a shared secret; verification is hand-rolled
// over stdlib crypto so the gateway carries no JWT dependency.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims are the session claims the gateway cares about. Sub is the
// authenticated subject; Jti identifies the session for revocation.
type Claims struct {
	Sub string `json:"sub"`
	Jti string `json:"jti,omitempty"`
	Exp int64  `json:"exp"`
	Nbf int64  `json:"nbf,omitempty"`
	Iat int64  `json:"iat,omitempty"`
}

// RevocationStore answers whether a session id has been revoked. Any
// lookup error is treated as not revoked; revocation is an
// availability optimization, not the integrity boundary.
type RevocationStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// HS256Verifier validates session tokens against a shared secret and
// an optional revocation store.
type HS256Verifier struct {
	Secret  string
	Revoked RevocationStore
	Now     func() time.Time
}

func (v *HS256Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now().UTC()
}

// Verify checks the token signature and time claims and returns the
// claimed subject.
func (v *HS256Verifier) Verify(ctx context.Context, token string) (string, error) {
	claims, err := VerifyHS256(token, v.Secret, v.now())
	if err != nil {
		return "", err
	}
	if v.Revoked != nil && claims.Jti != "" {
		if val, err := v.Revoked.Get(ctx, revocationKey(claims.Jti)); err == nil && val != "" {
			return "", ErrTokenRevoked
		}
	}
	return claims.Sub, nil
}

func revocationKey(jti string) string {
	return "session:revoked:" + jti
}

// VerifyHS256 validates a compact HS256 token and returns its claims.
func VerifyHS256(token, secret string, now time.Time) (Claims, error) {
	if secret == "" {
		return Claims{}, errors.New("secret is required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if !strings.EqualFold(header.Alg, "HS256") {
		return Claims{}, errors.New("unsupported alg")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payloadRaw, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub == "" {
		return Claims{}, errors.New("subject required")
	}
	if claims.Exp == 0 || now.Unix() >= claims.Exp {
		return Claims{}, ErrTokenExpired
	}
	if claims.Nbf != 0 && now.Unix() < claims.Nbf {
		return Claims{}, errors.New("token not active")
	}
	return claims, nil
}

// MintHS256 produces a signed session token. Used by operator tooling
// and tests; the gateway itself only verifies.
func MintHS256(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(header + "." + payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return header + "." + payload + "." + sig, nil
}
