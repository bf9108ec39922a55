package domain

import (
	"time"
)

// Meeting 表示一个限时在线会议室。
//
// ID 是内部主键；Identifier 是对外稳定的会议标识，参与链接哈希计算。
// 两个密钥创建后不可变，只能整体轮换（轮换会使所有已发出的链接失效）。
type Meeting struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Identifier      string    `json:"identifier" gorm:"type:varchar(64);uniqueIndex"`
	Name            string    `json:"name" gorm:"type:varchar(255)"`
	AttendeeSecret  string    `json:"-" gorm:"type:varchar(64)"`
	ModeratorSecret string    `json:"-" gorm:"type:varchar(64);not null"`
	OwnerID         string    `json:"ownerId" gorm:"type:varchar(36);index"`
	Delegates       []string  `json:"delegates,omitempty" gorm:"serializer:json;type:text"` // 拥有所有者同等权限的委托人
	PIN             string    `json:"pin" gorm:"type:varchar(9);uniqueIndex"`
	VoiceBridge     string    `json:"voiceBridge" gorm:"type:varchar(9);uniqueIndex"`
	Ephemeral       bool      `json:"ephemeral"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MeetingSecret 是链接哈希计算的全部输入
type MeetingSecret struct {
	Identifier      string
	AttendeeSecret  string
	ModeratorSecret string
	DisplayName     string
}

// Secret 提取会议的密钥材料
func (m *Meeting) Secret() MeetingSecret {
	return MeetingSecret{
		Identifier:      m.Identifier,
		AttendeeSecret:  m.AttendeeSecret,
		ModeratorSecret: m.ModeratorSecret,
		DisplayName:     m.Name,
	}
}

// EffectiveOwners 返回有效所有者集合（所有者 + 委托人）
func (m *Meeting) EffectiveOwners() []string {
	owners := make([]string, 0, 1+len(m.Delegates))
	if m.OwnerID != "" {
		owners = append(owners, m.OwnerID)
	}
	for _, d := range m.Delegates {
		if d != "" {
			owners = append(owners, d)
		}
	}
	return owners
}

// Codes 返回会议当前占用的数字资源
func (m *Meeting) Codes() []string {
	codes := make([]string, 0, 2)
	if m.PIN != "" {
		codes = append(codes, m.PIN)
	}
	if m.VoiceBridge != "" {
		codes = append(codes, m.VoiceBridge)
	}
	return codes
}
