package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of every issued session token.
const TokenTTL = time.Hour

type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides the time source used for both issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) { s.ttl = ttl }
}

func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) Issue(userID, roleName string) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		UserID: userID,
		Role:   roleName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Verify checks signature and expiry. Malformed, forged and expired tokens
// all come back as ErrInvalidToken.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
