// Package keygen mints the long-lived HS256 API keys consumed by the Supabase
// backend. Each key is a JWT whose only variable claim is the role.
package keygen

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dskow/okey-devtools/internal/config"
	"github.com/dskow/okey-devtools/internal/metrics"
	"github.com/golang-jwt/jwt/v5"
)

// ErrSigning wraps any failure of the signing primitive.
var ErrSigning = errors.New("signing token")

// Key is a signed token and the environment variable it is exported as.
type Key struct {
	Name  string
	Role  string
	Token string
}

// Claims holds the verified contents of a key.
type Claims struct {
	Role      string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs role tokens with a shared secret.
type Issuer struct {
	method   jwt.SigningMethod
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// New creates an Issuer from the keygen configuration.
func New(cfg config.KeygenConfig) *Issuer {
	return &Issuer{
		method:   jwt.SigningMethodHS256,
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		lifetime: cfg.Lifetime,
		now:      time.Now,
	}
}

// Sign returns a compact HS256 token carrying role, valid from now for ten
// years. The secret is used as given.
func Sign(role, secret string) (string, error) {
	return New(config.KeygenConfig{
		Secret:   secret,
		Issuer:   config.DefaultIssuer,
		Lifetime: config.DefaultLifetime,
	}).Sign(role)
}

// Sign returns a compact HS256 token for role.
func (i *Issuer) Sign(role string) (string, error) {
	iat := i.now().Unix()
	token := jwt.NewWithClaims(i.method, jwt.MapClaims{
		"role": role,
		"iss":  i.issuer,
		"iat":  iat,
		"exp":  iat + int64(i.lifetime/time.Second),
	})

	s, err := token.SignedString(i.secret)
	if err != nil {
		metrics.TokensTotal.WithLabelValues(role, "error").Inc()
		return "", fmt.Errorf("%w for role %q: %w", ErrSigning, role, err)
	}
	metrics.TokensTotal.WithLabelValues(role, "ok").Inc()
	return s, nil
}

// Generate signs one token per configured key, in order. It returns nothing
// if any key fails so callers never print a partial set.
func (i *Issuer) Generate(keys []config.KeyConfig) ([]Key, error) {
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		token, err := i.Sign(k.Role)
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", k.Name, err)
		}
		out = append(out, Key{Name: k.Name, Role: k.Role, Token: token})
	}
	return out, nil
}

// WriteEnv writes keys as NAME=token lines.
func WriteEnv(w io.Writer, keys []Key) error {
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k.Name, k.Token); err != nil {
			return fmt.Errorf("writing %s: %w", k.Name, err)
		}
	}
	return nil
}

// Verify checks tokenStr against secret and returns its claims. The token
// must be HS256 and carry an unexpired exp.
func Verify(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	if iss, ok := mapClaims["iss"].(string); ok {
		claims.Issuer = iss
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}
