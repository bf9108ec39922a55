package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"roomgate/backend/internal/depgate"
	"roomgate/backend/internal/domain"
)

const (
	dependencyFileStorage = "filestorage"
	dependencyIdentity    = "identity"
)

// IntegrationService 外部依赖的受保护访问
//
// 所有调用都经过依赖门控，依赖故障时功能暂时关闭而不是反复重试。
type IntegrationService struct {
	gate           *depgate.Gate
	credentials    CredentialStore
	identity       *IdentityClient
	fileStorageURL string
	httpClient     *http.Client
	log            *zap.Logger
}

// NewIntegrationService 创建外部依赖服务
//
// fileStorageURL 或 identity 为空时对应功能视为不可用。
func NewIntegrationService(
	gate *depgate.Gate,
	credentials CredentialStore,
	identity *IdentityClient,
	fileStorageURL string,
	httpClient *http.Client,
	log *zap.Logger,
) *IntegrationService {
	if log == nil {
		log = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &IntegrationService{
		gate:           gate,
		credentials:    credentials,
		identity:       identity,
		fileStorageURL: strings.TrimRight(fileStorageURL, "/"),
		httpClient:     httpClient,
		log:            log,
	}
}

// FileStorageAvailable 用主体自己的凭据探测文件存储（WebDAV PROPFIND）
func (s *IntegrationService) FileStorageAvailable(ctx context.Context, principalID string) bool {
	if s.fileStorageURL == "" || s.credentials == nil || principalID == "" {
		return false
	}

	probe := depgate.HTTPProbe(s.httpClient, "PROPFIND", s.fileStorageURL+"/", func(req *http.Request) error {
		token, err := s.credentials.Token(req.Context(), principalID)
		if errors.Is(err, ErrNoCredentials) {
			return &depgate.StatusError{Status: http.StatusUnauthorized, Detail: "no stored credentials"}
		}
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Depth", "0")
		return nil
	})

	call := depgate.Call{
		Name:             dependencyFileStorage,
		Endpoint:         s.fileStorageURL,
		Principal:        principalID,
		Op:               probe,
		Verify:           true,
		RetryOnAuthError: true,
		Refresh: func(ctx context.Context) error {
			return s.credentials.Refresh(ctx, principalID)
		},
	}
	if s.identity != nil {
		call.RefreshEndpoint = s.identity.BaseURL()
	}
	err := s.gate.Do(ctx, call)
	if err != nil {
		s.log.Debug("file storage unavailable",
			zap.String("principal_id", principalID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// LookupIdentity 通过二级身份提供方查询用户
//
// 用户不存在不算依赖故障，返回 ErrIdentityNotFound；门控拒绝或调用失败返回 domain.ErrDependencyUnavailable。
func (s *IntegrationService) LookupIdentity(ctx context.Context, principalID, subject string) (*Identity, error) {
	if s.identity == nil {
		return nil, domain.Wrap(domain.ErrDependencyUnavailable, errors.New("identity provider not configured"))
	}

	var (
		identity *Identity
		notFound bool
	)
	err := s.gate.Do(ctx, depgate.Call{
		Name:     dependencyIdentity,
		Endpoint: s.identity.BaseURL(),
		Op: func(ctx context.Context) error {
			found, err := s.identity.Lookup(ctx, subject)
			if errors.Is(err, ErrIdentityNotFound) {
				notFound = true
				return nil
			}
			if err != nil {
				return err
			}
			identity = found
			return nil
		},
		Verify: true,
	})
	if err != nil {
		s.log.Warn("identity lookup failed",
			zap.String("principal_id", principalID),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return nil, err
	}
	if notFound {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}
