package domain

import "strconv"

// Role 会议参与者角色
type Role int

const (
	// RoleNone 表示未获得任何角色（拒绝访问）
	RoleNone Role = iota
	// RoleModerator 主持人（与会议所有者同等权限）
	RoleModerator
	// RoleAttendee 匿名参会者
	RoleAttendee
	// RoleAuthenticatedAttendee 通过二级身份提供方登录的参会者
	RoleAuthenticatedAttendee
)

// String 返回角色名称，同时也是旧版链接哈希使用的编码
func (r Role) String() string {
	switch r {
	case RoleModerator:
		return "moderator"
	case RoleAttendee:
		return "attendee"
	case RoleAuthenticatedAttendee:
		return "authenticated_attendee"
	default:
		return "none"
	}
}

// Canonical 返回角色的规范序列化形式
func (r Role) Canonical() string {
	return strconv.Itoa(int(r))
}

// Valid 判断是否为可授予的角色
func (r Role) Valid() bool {
	return r >= RoleModerator && r <= RoleAuthenticatedAttendee
}

// GrantableRoles 按校验顺序返回所有可授予角色
func GrantableRoles() []Role {
	return []Role{RoleAttendee, RoleModerator, RoleAuthenticatedAttendee}
}
