// Package auth verifies the bearer tokens clients present on REST calls and
// WebSocket upgrades.
package auth

import (
	"net/http"
	"strings"
	"time"

	"socialdm/backend/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDClaim is the claim carrying the authenticated user id.
const UserIDClaim = "user_id"

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns the user id of a valid, unexpired token.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.ErrCredentialMissing
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", apperr.ErrCredentialInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.ErrCredentialInvalid
	}
	userID, ok := claims[UserIDClaim].(string)
	if !ok || userID == "" {
		// Some issuers put the user id in sub.
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return "", apperr.ErrCredentialInvalid
	}
	return userID, nil
}

// Issue signs a token for userID valid for ttl.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		UserIDClaim: userID,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}

// ExtractCredential reads the token from the Authorization header, falling
// back to the "authorization" and "token" query parameters for clients that
// cannot set headers on a WebSocket upgrade.
func ExtractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return stripBearer(h)
	}
	q := r.URL.Query()
	if v := q.Get("authorization"); v != "" {
		return stripBearer(v)
	}
	return strings.TrimSpace(q.Get("token"))
}

func stripBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}
