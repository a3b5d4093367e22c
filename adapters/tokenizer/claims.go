package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with session-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionExpiresAt *jwt.NumericDate `json:"sexp,omitempty"` // expiry of the backing session
}
