package service

import (
	"context"
	"errors"
	"time"

	"roomgate/backend/internal/cache"
)

// ErrNoCredentials 主体尚无文件存储凭据
var ErrNoCredentials = errors.New("no stored credentials")

// defaultCredentialTTL 身份提供方未给出有效期时的缓存时间
const defaultCredentialTTL = time.Hour

// CredentialStore 保存各主体访问文件存储的凭据
type CredentialStore interface {
	// Token 返回主体当前凭据；没有时返回 ErrNoCredentials
	Token(ctx context.Context, principalID string) (string, error)
	// Refresh 重新获取主体凭据
	Refresh(ctx context.Context, principalID string) error
}

// TokenIssuer 签发文件存储令牌
type TokenIssuer interface {
	IssueFileToken(ctx context.Context, subject string) (*FileToken, error)
}

// CachedCredentialStore 把凭据保存在 TTL 缓存里，过期后由 Refresh 重新签发
type CachedCredentialStore struct {
	store  cache.Store
	issuer TokenIssuer
}

// NewCachedCredentialStore 创建缓存凭据存储
func NewCachedCredentialStore(store cache.Store, issuer TokenIssuer) *CachedCredentialStore {
	return &CachedCredentialStore{store: store, issuer: issuer}
}

// Token 读取缓存中的凭据
func (s *CachedCredentialStore) Token(ctx context.Context, principalID string) (string, error) {
	token, ok, err := s.store.Get(ctx, credentialKey(principalID))
	if err != nil {
		return "", err
	}
	if !ok || token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}

// Refresh 向身份提供方重新签发凭据并写入缓存
func (s *CachedCredentialStore) Refresh(ctx context.Context, principalID string) error {
	token, err := s.issuer.IssueFileToken(ctx, principalID)
	if err != nil {
		return err
	}
	ttl := time.Duration(token.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultCredentialTTL
	}
	return s.store.Set(ctx, credentialKey(principalID), token.Token, ttl)
}

func credentialKey(principalID string) string {
	return "credentials:filestorage:" + principalID
}
