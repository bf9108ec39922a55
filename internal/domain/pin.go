package domain

import "time"

// RetiredPin 已回收的拨入码，在保留期内不可再分配
type RetiredPin struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Code      string    `json:"code" gorm:"type:varchar(9);index"`
	RetiredAt time.Time `json:"retiredAt" gorm:"index"`
}

// TableName 指定回收表名
func (RetiredPin) TableName() string {
	return "retired_pins"
}

// ActiveCode 会议当前占用的拨入码
//
// PIN 与语音桥号码共用一个号码空间，以 Code 为主键保证跨列唯一。
type ActiveCode struct {
	Code      string `gorm:"primaryKey;type:varchar(9)"`
	MeetingID string `gorm:"type:varchar(36);index"`
}

// TableName 指定占用表名
func (ActiveCode) TableName() string {
	return "active_codes"
}
