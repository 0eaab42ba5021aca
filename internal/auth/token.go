// ABOUTME: JWT handling for learner bearer tokens
// ABOUTME: HS256 issue/verify for the local backend plus unverified expiry inspection for clients

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier checks a bearer token and returns the learner it was issued to.
type TokenVerifier interface {
	Verify(tokenString string) (learnerID string, err error)
}

// learnerClaims is the payload of a learner token; the learner ID is the subject.
type learnerClaims struct {
	jwt.RegisteredClaims
}

// JWTVerifier issues and checks HS256 learner tokens. It backs the fake
// backend; real clients only inspect expiry.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier returns a verifier keyed by secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}
}

func (v *JWTVerifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

// Verify checks signature and expiry and returns the subject.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	var claims learnerClaims
	if _, err := v.parser.ParseWithClaims(tokenString, &claims, v.key); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims.Subject, nil
}

// Generate signs a token for learnerID valid for expiresIn. A negative
// duration yields an already-expired token, which tests use.
func (v *JWTVerifier) Generate(learnerID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := learnerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   learnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ExpiresAt reads the "exp" claim without verifying the signature. Clients
// never hold the signing secret, so this is only used to fail fast on a
// token the server would reject anyway. ok is false for tokens that are not
// JWTs or carry no expiry (opaque tokens are passed through untouched).
func ExpiresAt(tokenString string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}

// CheckExpiry returns ErrExpiredToken when the token carries an expiry that
// has passed at now.
func CheckExpiry(tokenString string, now time.Time) error {
	exp, ok := ExpiresAt(tokenString)
	if ok && !now.Before(exp) {
		return fmt.Errorf("%w: expired at %s", ErrExpiredToken, exp.Format(time.RFC3339))
	}
	return nil
}
