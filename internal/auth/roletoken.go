package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/hkdf"

	"roomgate/backend/internal/domain"
)

const (
	roleTokenInfo = "roomgate/role-token/v1"
	mailTokenInfo = "roomgate/mail-token/v1"

	legacyDigestLen = sha1.Size * 2
	hmacDigestLen   = sha256.Size * 2
)

// DeriveRoleToken 计算旧版（SHA-1）角色哈希
//
// 输入为 identifier|attendeeSecret|displayName|role。legacy 为 true 时角色按名称编码，
// 否则按规范序列化编码。新链接不再使用该算法生成，仅用于校验历史链接。
func DeriveRoleToken(secret domain.MeetingSecret, role domain.Role, legacy bool) string {
	encoded := role.Canonical()
	if legacy {
		encoded = role.String()
	}
	sum := sha1.Sum([]byte(strings.Join([]string{
		secret.Identifier,
		secret.AttendeeSecret,
		secret.DisplayName,
		encoded,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// Authority 链接哈希签发与校验
//
// 新签发的角色哈希与邮件哈希均为 HMAC-SHA256，密钥由安装密钥经 HKDF 派生，
// 两类哈希使用不同的派生密钥。
type Authority struct {
	roleKey []byte
	mailKey []byte
	clock   clockwork.Clock
}

// ErrNoInstallationSecret 未配置安装密钥
var ErrNoInstallationSecret = errors.New("installation secret is required")

// NewAuthority 创建哈希签发器
func NewAuthority(installationSecret string, clock clockwork.Clock) (*Authority, error) {
	if installationSecret == "" {
		return nil, ErrNoInstallationSecret
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	roleKey, err := deriveKey(installationSecret, roleTokenInfo)
	if err != nil {
		return nil, err
	}
	mailKey, err := deriveKey(installationSecret, mailTokenInfo)
	if err != nil {
		return nil, err
	}
	return &Authority{
		roleKey: roleKey,
		mailKey: mailKey,
		clock:   clock,
	}, nil
}

// IssueRoleToken 为新链接生成角色哈希
func (a *Authority) IssueRoleToken(secret domain.MeetingSecret, role domain.Role) string {
	mac := hmac.New(sha256.New, a.roleKey)
	mac.Write([]byte(strings.Join([]string{
		secret.Identifier,
		secret.AttendeeSecret,
		secret.ModeratorSecret,
		secret.DisplayName,
		role.Canonical(),
	}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// MatchRoleToken 判断哈希是否为该角色的有效哈希（接受新旧两类）
func (a *Authority) MatchRoleToken(secret domain.MeetingSecret, role domain.Role, digest string) bool {
	digest = strings.ToLower(strings.TrimSpace(digest))
	switch len(digest) {
	case hmacDigestLen:
		return digestEqual(digest, a.IssueRoleToken(secret, role))
	case legacyDigestLen:
		// 两种编码都比较，不提前返回
		byName := digestEqual(digest, DeriveRoleToken(secret, role, true))
		byCanonical := digestEqual(digest, DeriveRoleToken(secret, role, false))
		return byName || byCanonical
	default:
		return false
	}
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func digestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
