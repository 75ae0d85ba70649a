package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the actor in an HS256 access token. The subject is the
// actor's email.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewIssuer(secret, issuer string, ttl time.Duration, clock clockwork.Clock) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, clock: clock}
}

// Sign mints a token for actor that expires after the issuer's TTL.
func (i *Issuer) Sign(actor domain.Actor) (string, time.Time, error) {
	if actor.Email == "" || !actor.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: actor needs an email and a known role", domain.ErrValidation)
	}
	now := i.clock.Now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.ToLower(actor.Email),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse validates raw and returns the actor it was minted for.
func (i *Issuer) Parse(raw string) (domain.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return domain.Actor{Email: claims.Subject, Role: claims.Role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// PeekActor reads the actor from raw without checking its signature. Clients
// use it to decide what to offer locally; the API still verifies every call.
func PeekActor(raw string) (domain.Actor, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return domain.Actor{Email: claims.Subject, Role: claims.Role}, nil
}
