package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "tsrunner"

	// MinSecretLength is the minimum signing secret size for HMAC-SHA256.
	MinSecretLength = 32
)

// Token kinds carried in the kind claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSecretTooShort is returned when the signing secret is under MinSecretLength bytes.
	ErrSecretTooShort = fmt.Errorf("token signing secret must be at least %d bytes", MinSecretLength)
)

// Claims are the JWT claims for both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// TokenService issues and verifies HS256 access and refresh tokens.
// It holds no state beyond the shared secret.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(secret []byte, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	return &TokenService{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// IssueAccess creates a short lived access token for userID.
func (s *TokenService) IssueAccess(userID string) (string, error) {
	return s.issue(userID, KindAccess, s.accessTTL)
}

// IssueRefresh creates a long lived refresh token for userID.
func (s *TokenService) IssueRefresh(userID string) (string, error) {
	return s.issue(userID, KindRefresh, s.refreshTTL)
}

// VerifyAccess returns the user ID of a valid access token.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	return s.verify(token, KindAccess)
}

// VerifyRefresh returns the user ID of a valid refresh token.
func (s *TokenService) VerifyRefresh(token string) (string, error) {
	return s.verify(token, KindRefresh)
}

func (s *TokenService) issue(userID, kind string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("subject is required")
	}

	// the jti keeps two tokens issued within the same second distinct
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// verify fails closed: any parse, signature, expiry, issuer or kind problem
// returns ErrInvalidToken and an empty subject.
func (s *TokenService) verify(tokenString, kind string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	if claims.Kind != kind || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
