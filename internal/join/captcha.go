package join

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"roomgate/backend/internal/depgate"
)

// CaptchaVerifier 校验验证码答案
type CaptchaVerifier interface {
	// Verify 返回答案是否有效；无法得到结论（网络、5xx 等）时返回错误
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
	// Endpoint 返回验证服务地址，作为熔断键
	Endpoint() string
}

// SiteVerifyClient 兼容 reCAPTCHA / hCaptcha / Turnstile 的 siteverify 客户端
type SiteVerifyClient struct {
	endpoint string
	secret   string
	client   *http.Client
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewSiteVerifyClient 创建 siteverify 客户端
func NewSiteVerifyClient(endpoint, secret string, client *http.Client) *SiteVerifyClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SiteVerifyClient{
		endpoint: endpoint,
		secret:   secret,
		client:   client,
	}
}

// Endpoint 返回验证服务地址
func (c *SiteVerifyClient) Endpoint() string {
	return c.endpoint
}

// Verify 向验证服务提交答案
func (c *SiteVerifyClient) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{
		"secret":   {c.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if err := depgate.CheckResponse(resp); err != nil {
		return false, err
	}

	var body siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode siteverify response: %w", err)
	}
	return body.Success, nil
}
