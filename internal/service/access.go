package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/join"
	"roomgate/backend/internal/storage"
)

// Access 授权结果
type Access struct {
	Meeting *domain.Meeting
	Role    domain.Role
}

// AccessService 入会授权边界
//
// 会议不存在与哈希不匹配返回同一个 domain.ErrUnauthorized。
type AccessService struct {
	repo      storage.MeetingRepository
	resolver  *auth.Resolver
	authority *auth.Authority
	joinGate  *join.Gate
	log       *zap.Logger
}

// NewAccessService 创建入会授权服务
func NewAccessService(repo storage.MeetingRepository, resolver *auth.Resolver, authority *auth.Authority, joinGate *join.Gate, log *zap.Logger) *AccessService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccessService{
		repo:      repo,
		resolver:  resolver,
		authority: authority,
		joinGate:  joinGate,
		log:       log,
	}
}

// JoinByHash 通过角色链接入会
func (s *AccessService) JoinByHash(ctx context.Context, identifier, digest, principalID string) (*Access, error) {
	meeting, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	role := s.resolver.Resolve(meeting, digest, principalID)
	if role == domain.RoleNone {
		s.log.Debug("join by hash rejected", zap.String("identifier", identifier))
		return nil, domain.ErrUnauthorized
	}
	return &Access{Meeting: meeting, Role: role}, nil
}

// JoinByMail 通过邮件链接入会
//
// 所有者仍然优先；其余情况先判断过期，再比较哈希，通过后授予参会者角色。
func (s *AccessService) JoinByMail(ctx context.Context, identifier string, expires int64, digest, principalID string) (*Access, error) {
	tokenErr := s.authority.VerifyMailToken(identifier, expires, digest)

	meeting, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) && errors.Is(tokenErr, domain.ErrExpired) {
			return nil, tokenErr
		}
		return nil, err
	}

	if s.resolver.IsOwner(meeting, principalID) {
		return &Access{Meeting: meeting, Role: domain.RoleModerator}, nil
	}
	if tokenErr != nil {
		s.log.Debug("join by mail rejected", zap.String("identifier", identifier), zap.Error(tokenErr))
		return nil, tokenErr
	}
	return &Access{Meeting: meeting, Role: domain.RoleAttendee}, nil
}

// JoinByCode 通过会议码入会
func (s *AccessService) JoinByCode(ctx context.Context, req join.Request) (*join.Decision, error) {
	return s.joinGate.Evaluate(ctx, req)
}

// lookup 查找会议；不存在时返回 domain.ErrUnauthorized
func (s *AccessService) lookup(ctx context.Context, identifier string) (*domain.Meeting, error) {
	if identifier == "" {
		return nil, domain.ErrUnauthorized
	}
	meeting, err := s.repo.GetMeetingByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrMeetingNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	return meeting, nil
}
