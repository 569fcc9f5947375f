package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// DefaultTTL is the validity window of a session token.
const DefaultTTL = 1440 * time.Minute

// CodecConfig holds the process-wide signing material for session tokens.
type CodecConfig struct {
	SigningKey []byte
	TTL        time.Duration
}

// Claims is the signed claim set of a session token.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a freshly minted session token.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Codec mints and verifies HS256 session tokens. It holds no mutable state
// and never consults the revocation ledger.
type Codec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	newJTI func(subjectID int64) string
}

// CodecOption customizes a Codec.
type CodecOption func(*Codec)

// WithClock replaces the wall clock used for issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// WithJTIGenerator replaces the token identifier generator.
func WithJTIGenerator(gen func(subjectID int64) string) CodecOption {
	return func(c *Codec) { c.newJTI = gen }
}

func NewCodec(cfg CodecConfig, opts ...CodecOption) (*Codec, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{key: cfg.SigningKey, ttl: ttl, now: time.Now, newJTI: utilities.NewJTI}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the validity window applied by Issue.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a new token for the subject.
func (c *Codec) Issue(subjectID int64, email string, role Role) (IssuedToken, error) {
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	jti := c.newJTI(subjectID)
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{Token: signed, JTI: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the signature and expiry of token and returns the identity it asserts.
// Signature problems and malformed claims yield ErrInvalidToken; a correctly
// signed token past its expiry yields ErrExpiredToken.
func (c *Codec) Verify(token string) (Identity, error) {
	const op = "auth.Verify"
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, E(op, KindInvalidToken, errors.New("empty token"))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, E(op, KindExpiredToken, err)
		}
		return Identity{}, E(op, KindInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, E(op, KindInvalidToken, fmt.Errorf("subject: %w", err))
	}
	if claims.ID == "" {
		return Identity{}, E(op, KindInvalidToken, errors.New("jti missing"))
	}
	if !claims.Role.Valid() {
		return Identity{}, E(op, KindInvalidToken, fmt.Errorf("unknown role %q", claims.Role))
	}
	return Identity{ID: id, Email: claims.Email, Role: claims.Role, JTI: claims.ID}, nil
}
