package postgres

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"roomgate/backend/internal/storage"
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// translateError 将唯一约束冲突转换为 storage.ErrPinConflict
//
// 会议 ID 或对外标识冲突转换为 storage.ErrMeetingExists。
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrMeetingNotFound) {
		return err
	}
	if !isUniqueViolation(err) {
		return err
	}
	if isMeetingKeyViolation(err) {
		return storage.ErrMeetingExists
	}
	return storage.ErrPinConflict
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	return false
}

// isMeetingKeyViolation 判断冲突是否来自会议主键或对外标识
//
// 无法识别约束名时按拨入码冲突处理。
func isMeetingKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName == "meetings_pkey" || pgErr.ConstraintName == "idx_meetings_identifier"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return containsAny(myErr.Message, "meetings.PRIMARY", "idx_meetings_identifier")
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
