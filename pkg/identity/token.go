package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUnknownUser  = errors.New("unknown user")
)

// Principal is the identity carried by a verified token.
type Principal struct {
	UserID string
	Email  string
	Roles  []models.Role
}

func (p Principal) HasRole(role models.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}

	return false
}

type claims struct {
	jwt.RegisteredClaims

	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// TokenVerifier verifies and issues HS256 tokens whose subject is the user ID.
type TokenVerifier struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier creates a verifier. An empty issuer disables the issuer
// check.
func NewTokenVerifier(key []byte, issuer string) *TokenVerifier {
	return &TokenVerifier{key: key, issuer: issuer, now: time.Now}
}

// WithClock returns a copy of the verifier that reads time from now.
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	clone := *v
	clone.now = now

	return &clone
}

// Verify checks the signature, expiry and issuer of token.
func (v *TokenVerifier) Verify(token string) (*Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidToken)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	var parsed claims

	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if parsed.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}

	roles := make([]models.Role, 0, len(parsed.Roles))
	for _, role := range parsed.Roles {
		roles = append(roles, models.Role(role))
	}

	return &Principal{UserID: parsed.Subject, Email: parsed.Email, Roles: roles}, nil
}

// Issue signs a token for principal valid for ttl.
func (v *TokenVerifier) Issue(principal Principal, ttl time.Duration) (string, error) {
	now := v.now()

	roles := make([]string, 0, len(principal.Roles))
	for _, role := range principal.Roles {
		roles = append(roles, string(role))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: principal.Email,
		Roles: roles,
	})

	signed, err := token.SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Authenticator verifies a token and confirms its subject is a known user.
type Authenticator struct {
	verifier *TokenVerifier
	provider Provider
}

func NewAuthenticator(verifier *TokenVerifier, provider Provider) *Authenticator {
	return &Authenticator{verifier: verifier, provider: provider}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	principal, err := a.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := a.provider.UserByID(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, principal.UserID)
	}

	if principal.Email == "" {
		principal.Email = user.Email
	}

	if len(principal.Roles) == 0 {
		principal.Roles = user.Roles
	}

	return principal, nil
}
