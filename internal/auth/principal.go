package auth

import (
	"github.com/jonboulle/clockwork"

	"roomgate/backend/internal/auth/jwt"
	"roomgate/backend/internal/config"
)

// Principal 已登录主体
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// PrincipalTokens 主体访问令牌
type PrincipalTokens struct {
	manager *jwt.Manager
	clock   clockwork.Clock
}

// NewPrincipalTokens 创建主体令牌管理器
func NewPrincipalTokens(cfg *config.JWTConfig, clock clockwork.Clock) *PrincipalTokens {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PrincipalTokens{
		manager: jwt.NewManager(cfg.Secret, cfg.Issuer, cfg.AccessExpiry, clock),
		clock:   clock,
	}
}

// Issue 签发访问令牌
func (p *PrincipalTokens) Issue(principal Principal) (*TokenResponse, error) {
	token, expiresAt, err := p.manager.GenerateToken(principal.ID, principal.Name)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresAt.Sub(p.clock.Now()).Seconds()),
	}, nil
}

// Authenticate 校验访问令牌并返回主体
func (p *PrincipalTokens) Authenticate(token string) (*Principal, error) {
	claims, err := p.manager.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return &Principal{
		ID:   claims.PrincipalID,
		Name: claims.Name,
	}, nil
}
