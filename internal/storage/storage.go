package storage

import (
	"context"
	"errors"
	"time"

	"roomgate/backend/internal/domain"
)

var (
	// ErrMeetingNotFound 会议未找到错误
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrMeetingExists 会议 ID 或对外标识已存在
	ErrMeetingExists = errors.New("meeting already exists")
	// ErrPinConflict 拨入码违反唯一约束（并发分配时的最终防线）
	ErrPinConflict = errors.New("numeric code already in use")
)

// MeetingRepository 定义会议数据存取操作。
//
// CreateMeeting 与 UpdateMeeting 在 PIN 或语音桥号码与其他会议冲突时返回 ErrPinConflict。
// UpdateMeeting 与 DeleteMeeting 在同一事务内把释放的拨入码以 retiredAt 归档，
// 释放与归档要么都生效，要么都不生效。
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting *domain.Meeting) error
	UpdateMeeting(ctx context.Context, meeting *domain.Meeting, retiredAt time.Time) error
	GetMeeting(ctx context.Context, id string) (*domain.Meeting, error)
	GetMeetingByIdentifier(ctx context.Context, identifier string) (*domain.Meeting, error)
	GetMeetingByCode(ctx context.Context, code string) (*domain.Meeting, error)
	DeleteMeeting(ctx context.Context, id string, retiredAt time.Time) error
}

// CodeRepository 定义拨入码占用与归档操作。
type CodeRepository interface {
	// ActiveCodes 返回所有会议当前占用的拨入码，excludeMeetingID 对应会议的除外
	ActiveCodes(ctx context.Context, excludeMeetingID string) ([]string, error)
	// RetireCodes 归档拨入码
	RetireCodes(ctx context.Context, codes []string, retiredAt time.Time) error
	// RetiredCodes 返回 retiredAt 晚于 since 的归档拨入码
	RetiredCodes(ctx context.Context, since time.Time) ([]string, error)
	// PurgeRetired 删除 retiredAt 不晚于 before 的归档记录，返回删除数量
	PurgeRetired(ctx context.Context, before time.Time) (int64, error)
}

// Store 聚合全部仓储接口。
type Store interface {
	MeetingRepository
	CodeRepository
	Ping(ctx context.Context) error
	Close() error
}
