package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/storage"
)

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions 默认连接池参数
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store 关系型数据库存储实现（PostgreSQL / MySQL）
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), opts)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), opts)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Meeting{},
		&domain.ActiveCode{},
		&domain.RetiredPin{},
	)
}

// ========== Meeting Repository ==========

// CreateMeeting 保存新会议并登记其拨入码
func (s *Store) CreateMeeting(ctx context.Context, meeting *domain.Meeting) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(meeting).Error; err != nil {
			return err
		}
		return insertCodes(tx, meeting)
	})
	return translateError(err)
}

// UpdateMeeting 更新会议，拨入码变化时同步占用表并归档释放的号码
func (s *Store) UpdateMeeting(ctx context.Context, meeting *domain.Meeting, retiredAt time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous []string
		if err := tx.Model(&domain.ActiveCode{}).Where("meeting_id = ?", meeting.ID).Pluck("code", &previous).Error; err != nil {
			return err
		}
		result := tx.Model(&domain.Meeting{}).Where("id = ?", meeting.ID).Select("*").Omit("created_at").Updates(meeting)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrMeetingNotFound
		}
		if err := tx.Where("meeting_id = ?", meeting.ID).Delete(&domain.ActiveCode{}).Error; err != nil {
			return err
		}
		if err := insertCodes(tx, meeting); err != nil {
			return err
		}
		return retireCodes(tx, releasedCodes(previous, meeting.Codes()), retiredAt)
	})
	return translateError(err)
}

// GetMeeting 根据 ID 获取会议
func (s *Store) GetMeeting(ctx context.Context, id string) (*domain.Meeting, error) {
	return s.first(ctx, "id = ?", id)
}

// GetMeetingByIdentifier 根据对外标识获取会议
func (s *Store) GetMeetingByIdentifier(ctx context.Context, identifier string) (*domain.Meeting, error) {
	return s.first(ctx, "identifier = ?", identifier)
}

// GetMeetingByCode 根据 PIN 获取会议
func (s *Store) GetMeetingByCode(ctx context.Context, code string) (*domain.Meeting, error) {
	return s.first(ctx, "pin = ?", code)
}

// DeleteMeeting 删除会议，释放并归档其拨入码
func (s *Store) DeleteMeeting(ctx context.Context, id string, retiredAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var codes []string
		if err := tx.Model(&domain.ActiveCode{}).Where("meeting_id = ?", id).Pluck("code", &codes).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Meeting{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrMeetingNotFound
		}
		if err := tx.Where("meeting_id = ?", id).Delete(&domain.ActiveCode{}).Error; err != nil {
			return err
		}
		return retireCodes(tx, codes, retiredAt)
	})
}

func (s *Store) first(ctx context.Context, query string, arg string) (*domain.Meeting, error) {
	var meeting domain.Meeting
	err := s.db.WithContext(ctx).Where(query, arg).First(&meeting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMeetingNotFound
		}
		return nil, err
	}
	return &meeting, nil
}

func insertCodes(tx *gorm.DB, meeting *domain.Meeting) error {
	codes := meeting.Codes()
	if len(codes) == 0 {
		return nil
	}
	rows := make([]domain.ActiveCode, 0, len(codes))
	for _, code := range codes {
		rows = append(rows, domain.ActiveCode{Code: code, MeetingID: meeting.ID})
	}
	return tx.Create(&rows).Error
}

// ========== Code Repository ==========

// ActiveCodes 返回当前占用的拨入码
func (s *Store) ActiveCodes(ctx context.Context, excludeMeetingID string) ([]string, error) {
	var codes []string
	query := s.db.WithContext(ctx).Model(&domain.ActiveCode{})
	if excludeMeetingID != "" {
		query = query.Where("meeting_id <> ?", excludeMeetingID)
	}
	if err := query.Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// RetireCodes 归档拨入码
func (s *Store) RetireCodes(ctx context.Context, codes []string, retiredAt time.Time) error {
	return retireCodes(s.db.WithContext(ctx), codes, retiredAt)
}

func retireCodes(tx *gorm.DB, codes []string, retiredAt time.Time) error {
	rows := make([]domain.RetiredPin, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			rows = append(rows, domain.RetiredPin{Code: code, RetiredAt: retiredAt.UTC()})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// releasedCodes 返回 previous 中不再被 current 使用的号码
func releasedCodes(previous, current []string) []string {
	released := make([]string, 0, len(previous))
	for _, code := range previous {
		if !slices.Contains(current, code) {
			released = append(released, code)
		}
	}
	return released
}

// RetiredCodes 返回保留期内的归档拨入码
func (s *Store) RetiredCodes(ctx context.Context, since time.Time) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).
		Model(&domain.RetiredPin{}).
		Where("retired_at > ?", since.UTC()).
		Distinct().
		Pluck("code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// PurgeRetired 删除超出保留期的归档记录
func (s *Store) PurgeRetired(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("retired_at <= ?", before.UTC()).Delete(&domain.RetiredPin{})
	return result.RowsAffected, result.Error
}

// ========== Lifecycle ==========

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ storage.Store = (*Store)(nil)
