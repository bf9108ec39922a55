package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"roomgate/backend/internal/domain"
)

// MailLink 邮件链接中携带的参数
type MailLink struct {
	Identifier string
	Expires    int64
	Digest     string
}

// DeriveMailToken 计算邮件链接哈希
//
// 哈希绑定会议标识和过期时间（Unix 秒），客户端无法在不知道安装密钥的情况下延长有效期。
func DeriveMailToken(identifier string, expires int64, installationSecret string) (string, error) {
	if installationSecret == "" {
		return "", ErrNoInstallationSecret
	}
	key, err := deriveKey(installationSecret, mailTokenInfo)
	if err != nil {
		return "", err
	}
	return mailDigest(key, identifier, expires), nil
}

// IssueMailToken 签发有效期为 ttl 的邮件链接哈希
func (a *Authority) IssueMailToken(identifier string, ttl time.Duration) MailLink {
	expires := a.clock.Now().Add(ttl).Unix()
	return MailLink{
		Identifier: identifier,
		Expires:    expires,
		Digest:     mailDigest(a.mailKey, identifier, expires),
	}
}

// VerifyMailToken 校验邮件链接
//
// 先判断过期再比较哈希：过期链接一律返回 ErrExpired，不透露哈希本身是否正确。
func (a *Authority) VerifyMailToken(identifier string, expires int64, digest string) error {
	if a.clock.Now().Unix() >= expires {
		return domain.ErrExpired
	}
	expected := mailDigest(a.mailKey, identifier, expires)
	if !digestEqual(strings.ToLower(strings.TrimSpace(digest)), expected) {
		return domain.ErrUnauthorized
	}
	return nil
}

func mailDigest(key []byte, identifier string, expires int64) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(identifier + "|" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
