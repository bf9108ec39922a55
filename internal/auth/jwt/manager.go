package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrInvalidToken 无效的令牌
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = errors.New("token expired")
)

const (
	// audience 令牌只用于访问本服务的管理接口
	audience = "roomgate-api"
	// leeway 容忍签发方与本机之间的时钟偏差
	leeway = 30 * time.Second
)

// Claims 主体令牌声明，Subject 与 PrincipalID 一致
type Claims struct {
	PrincipalID string `json:"principal_id"`
	Name        string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Manager 签发与校验主体访问令牌（HS256）
type Manager struct {
	secret       []byte
	issuer       string
	accessExpiry time.Duration
	clock        clockwork.Clock
	parser       *jwt.Parser
}

// NewManager 创建 JWT 管理器
func NewManager(secret, issuer string, accessExpiry time.Duration, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		secret:       []byte(secret),
		issuer:       issuer,
		accessExpiry: accessExpiry,
		clock:        clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// GenerateToken 为主体签发访问令牌，返回令牌与过期时间
func (m *Manager) GenerateToken(principalID, name string) (string, time.Time, error) {
	if principalID == "" {
		return "", time.Time{}, fmt.Errorf("principal id is required")
	}
	now := m.clock.Now()
	expiresAt := now.Add(m.accessExpiry)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		PrincipalID: principalID,
		Name:        name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   principalID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken 校验令牌；过期返回 ErrExpiredToken，其余任何问题返回 ErrInvalidToken
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.PrincipalID == "" || claims.Subject != claims.PrincipalID:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
