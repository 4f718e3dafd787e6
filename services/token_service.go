package services

import (
	"errors"
	"fmt"
	"time"

	"atmcore/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid - токен не прошел проверку подписи, алгоритма или claims
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired - токен подлинный, но срок его действия истек
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims - содержимое токена сессии
type SessionClaims struct {
	SessionID string `json:"sessionId"`
	CardID    string `json:"cardId"`
	UserID    string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService выпускает и проверяет токены сессий
type TokenService struct {
	secret   []byte
	method   *jwt.SigningMethodHMAC
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenService создает TokenService; допускаются только HMAC алгоритмы
func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret is empty")
	}
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.Algorithm)
	}
	return &TokenService{
		secret:   []byte(cfg.SecretKey),
		method:   method,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}, nil
}

// Issue выпускает токен для сессии со сроком действия ttl
func (s *TokenService) Issue(sessionID, cardID, userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		SessionID: sessionID.String(),
		CardID:    cardID.String(),
		UserID:    userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись, алгоритм, издателя, аудиторию и срок действия.
// Для подлинного, но просроченного токена возвращает claims вместе с ErrTokenExpired.
func (s *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err == nil {
		return claims, nil
	}
	if onlyExpired(err) {
		return claims, ErrTokenExpired
	}
	return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}

// onlyExpired сообщает, что единственная причина отказа - истекший срок
func onlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}
	for _, other := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenNotValidYet,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}
