// Package auth turns a bearer token into the ID of the user who presented it.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing access token")
	ErrInvalidToken = errors.New("invalid access token")
	ErrMissingUser  = errors.New("token has no subject")
)

// Claims are the registered claims of an access token. The subject is the
// user ID known to the directory.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HS256 access tokens signed by the LMS.
type Validator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewValidator(secret, issuer string, leeway time.Duration) (*Validator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Validator{secret: []byte(secret), issuer: issuer, leeway: leeway}, nil
}

// Validate parses tokenString and returns its claims.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse token"), ErrInvalidToken)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingUser
	}
	return claims, nil
}

// UserIDFromRequest reads the token from the "token" query parameter or the
// Authorization header. Browsers cannot set headers on a WebSocket
// handshake, so the query parameter is checked first.
func (v *Validator) UserIDFromRequest(r *http.Request) (string, error) {
	claims, err := v.Validate(TokenFromRequest(r))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Issue signs a token for userID. The LMS normally issues tokens; this is
// used by tooling and tests.
func (v *Validator) Issue(userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
