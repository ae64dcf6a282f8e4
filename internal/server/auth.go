package server

import (
	"net/http"
	"strings"
	"time"

	"SwapLedger/internal/ledger"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator maps a bearer JWT to the caller's principal. Tokens are
// HS256 with the principal in sub.
type Authenticator struct {
	secret []byte
	admins map[string]struct{}
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret string, admins []string) *Authenticator {
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			set[a] = struct{}{}
		}
	}
	return &Authenticator{
		secret: []byte(secret),
		admins: set,
		issuer: "swapledger",
		now:    time.Now,
	}
}

// Issue signs a token for principal valid for ttl.
func (a *Authenticator) Issue(principal string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   principal,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Principal validates the Authorization header and returns sub.
func (a *Authenticator) Principal(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", ledger.ErrUnauthorized.Wrap("missing bearer token")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", ledger.ErrUnauthorized.Wrapf("invalid token: %v", err)
	}
	if claims.Subject == "" {
		return "", ledger.ErrUnauthorized.Wrap("token has no subject")
	}
	return claims.Subject, nil
}

// Admin is Principal plus membership in the admin set.
func (a *Authenticator) Admin(r *http.Request) (string, error) {
	p, err := a.Principal(r)
	if err != nil {
		return "", err
	}
	if _, ok := a.admins[p]; !ok {
		return "", ledger.ErrUnauthorized.Wrapf("%s is not an admin", p)
	}
	return p, nil
}
