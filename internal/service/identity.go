package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roomgate/backend/internal/depgate"
)

// ErrIdentityNotFound 二级身份提供方中不存在该用户
var ErrIdentityNotFound = errors.New("identity not found")

// Identity 二级身份提供方返回的用户信息
type Identity struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// FileToken 文件存储访问令牌
type FileToken struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // 秒
}

// IdentityClient 二级身份提供方 HTTP 客户端
type IdentityClient struct {
	baseURL string
	client  *http.Client
}

// NewIdentityClient 创建身份提供方客户端
func NewIdentityClient(baseURL string, client *http.Client) *IdentityClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// BaseURL 返回身份提供方地址
func (c *IdentityClient) BaseURL() string {
	return c.baseURL
}

// Lookup 查询用户；用户不存在返回 ErrIdentityNotFound
func (c *IdentityClient) Lookup(ctx context.Context, subject string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL(subject), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrIdentityNotFound
	}
	if err := depgate.CheckResponse(resp); err != nil {
		return nil, err
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if identity.Subject == "" {
		identity.Subject = subject
	}
	return &identity, nil
}

// IssueFileToken 为用户签发文件存储访问令牌
func (c *IdentityClient) IssueFileToken(ctx context.Context, subject string) (*FileToken, error) {
	body, _ := json.Marshal(map[string]string{"scope": "filestorage"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.userURL(subject)+"/tokens", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := depgate.CheckResponse(resp); err != nil {
		return nil, err
	}

	var token FileToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode file token: %w", err)
	}
	if token.Token == "" {
		return nil, errors.New("identity provider returned empty token")
	}
	return &token, nil
}

func (c *IdentityClient) userURL(subject string) string {
	return c.baseURL + "/users/" + url.PathEscape(subject)
}
