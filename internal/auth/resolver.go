package auth

import (
	"roomgate/backend/internal/domain"
)

// Resolver 根据链接哈希和登录身份判定请求的有效角色
//
// 纯计算，不做任何 I/O，可在每个请求上调用。
type Resolver struct {
	authority             *Authority
	authenticatedAttendee bool
}

// NewResolver 创建角色判定器
//
// authenticatedAttendee 为 false 时，已登录参会者哈希降级为普通参会者。
func NewResolver(authority *Authority, authenticatedAttendee bool) *Resolver {
	return &Resolver{
		authority:             authority,
		authenticatedAttendee: authenticatedAttendee,
	}
}

// Resolve 返回有效角色，无匹配时返回 domain.RoleNone
//
// 判定顺序:
//  1. 当前登录主体属于有效所有者集合 -> 主持人（忽略哈希）
//  2. 参会者哈希 -> 参会者
//  3. 主持人哈希 -> 主持人
//  4. 已登录参会者哈希 -> 已登录参会者（功能关闭时为参会者）
func (r *Resolver) Resolve(meeting *domain.Meeting, digest, principalID string) domain.Role {
	if meeting == nil {
		return domain.RoleNone
	}
	if r.IsOwner(meeting, principalID) {
		return domain.RoleModerator
	}
	if digest == "" {
		return domain.RoleNone
	}

	secret := meeting.Secret()
	if r.authority.MatchRoleToken(secret, domain.RoleAttendee, digest) {
		return domain.RoleAttendee
	}
	if r.authority.MatchRoleToken(secret, domain.RoleModerator, digest) {
		return domain.RoleModerator
	}
	if r.authority.MatchRoleToken(secret, domain.RoleAuthenticatedAttendee, digest) {
		if r.authenticatedAttendee {
			return domain.RoleAuthenticatedAttendee
		}
		return domain.RoleAttendee
	}
	return domain.RoleNone
}

// IsOwner 判断主体是否为会议所有者或委托人
func (r *Resolver) IsOwner(meeting *domain.Meeting, principalID string) bool {
	if principalID == "" {
		return false
	}
	for _, owner := range meeting.EffectiveOwners() {
		if owner == principalID {
			return true
		}
	}
	return false
}

// AuthenticatedAttendeeEnabled 是否启用已登录参会者角色
func (r *Resolver) AuthenticatedAttendeeEnabled() bool {
	return r.authenticatedAttendee
}
