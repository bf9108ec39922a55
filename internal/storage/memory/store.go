package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/storage"
)

// Store 使用内存保存会议与归档拨入码，主要用于开发验证和测试。
//
// 与数据库实现一样对 Identifier、PIN、VoiceBridge 施加唯一约束。
type Store struct {
	mu           sync.RWMutex
	meetings     map[string]*domain.Meeting // meetingID -> meeting
	byIdentifier map[string]string          // identifier -> meetingID
	byCode       map[string]string          // PIN/语音桥号码 -> meetingID
	retired      []domain.RetiredPin
	nextRetired  uint
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		meetings:     make(map[string]*domain.Meeting),
		byIdentifier: make(map[string]string),
		byCode:       make(map[string]string),
	}
}

// CreateMeeting 保存新会议
func (s *Store) CreateMeeting(_ context.Context, meeting *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meetings[meeting.ID]; exists {
		return storage.ErrMeetingExists
	}
	if _, exists := s.byIdentifier[meeting.Identifier]; exists {
		return storage.ErrMeetingExists
	}
	if err := s.checkCodesLocked(meeting); err != nil {
		return err
	}

	now := time.Now().UTC()
	meeting.CreatedAt = now
	meeting.UpdatedAt = now
	s.putLocked(meeting)
	return nil
}

// UpdateMeeting 更新会议，不再使用的旧号码以 retiredAt 归档
func (s *Store) UpdateMeeting(_ context.Context, meeting *domain.Meeting, retiredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.meetings[meeting.ID]
	if !ok {
		return storage.ErrMeetingNotFound
	}
	if err := s.checkCodesLocked(meeting); err != nil {
		return err
	}

	s.removeLocked(existing)
	meeting.CreatedAt = existing.CreatedAt
	meeting.UpdatedAt = time.Now().UTC()
	s.putLocked(meeting)

	current := meeting.Codes()
	for _, code := range existing.Codes() {
		if !slices.Contains(current, code) {
			s.retireLocked(code, retiredAt)
		}
	}
	return nil
}

// GetMeeting 根据 ID 获取会议
func (s *Store) GetMeeting(_ context.Context, id string) (*domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return nil, storage.ErrMeetingNotFound
	}
	return cloneMeeting(meeting), nil
}

// GetMeetingByIdentifier 根据对外标识获取会议
func (s *Store) GetMeetingByIdentifier(ctx context.Context, identifier string) (*domain.Meeting, error) {
	s.mu.RLock()
	id, ok := s.byIdentifier[identifier]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrMeetingNotFound
	}
	return s.GetMeeting(ctx, id)
}

// GetMeetingByCode 根据 PIN 获取会议
func (s *Store) GetMeetingByCode(_ context.Context, code string) (*domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, storage.ErrMeetingNotFound
	}
	meeting := s.meetings[id]
	if meeting.PIN != code {
		return nil, storage.ErrMeetingNotFound
	}
	return cloneMeeting(meeting), nil
}

// DeleteMeeting 删除会议并以 retiredAt 归档其拨入码
func (s *Store) DeleteMeeting(_ context.Context, id string, retiredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return storage.ErrMeetingNotFound
	}
	s.removeLocked(meeting)
	s.retireLocked(meeting.PIN, retiredAt)
	s.retireLocked(meeting.VoiceBridge, retiredAt)
	return nil
}

// ActiveCodes 返回当前占用的拨入码
func (s *Store) ActiveCodes(_ context.Context, excludeMeetingID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.byCode))
	for code, meetingID := range s.byCode {
		if meetingID != excludeMeetingID {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// RetireCodes 归档拨入码
func (s *Store) RetireCodes(_ context.Context, codes []string, retiredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range codes {
		s.retireLocked(code, retiredAt)
	}
	return nil
}

// RetiredCodes 返回保留期内的归档拨入码
func (s *Store) RetiredCodes(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.retired))
	for _, r := range s.retired {
		if r.RetiredAt.After(since) {
			codes = append(codes, r.Code)
		}
	}
	return codes, nil
}

// PurgeRetired 删除超出保留期的归档记录
func (s *Store) PurgeRetired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.retired[:0]
	var purged int64
	for _, r := range s.retired {
		if r.RetiredAt.After(before) {
			kept = append(kept, r)
			continue
		}
		purged++
	}
	s.retired = kept
	return purged, nil
}

// Ping 内存存储始终可用
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close 内存存储无需关闭
func (s *Store) Close() error {
	return nil
}

// checkCodesLocked 检查拨入码是否被其他会议占用
func (s *Store) checkCodesLocked(meeting *domain.Meeting) error {
	if meeting.PIN != "" && meeting.PIN == meeting.VoiceBridge {
		return storage.ErrPinConflict
	}
	for _, code := range meeting.Codes() {
		if owner, taken := s.byCode[code]; taken && owner != meeting.ID {
			return storage.ErrPinConflict
		}
	}
	return nil
}

func (s *Store) retireLocked(code string, retiredAt time.Time) {
	if code == "" {
		return
	}
	s.nextRetired++
	s.retired = append(s.retired, domain.RetiredPin{
		ID:        s.nextRetired,
		Code:      code,
		RetiredAt: retiredAt,
	})
}

func (s *Store) putLocked(meeting *domain.Meeting) {
	stored := cloneMeeting(meeting)
	s.meetings[stored.ID] = stored
	s.byIdentifier[stored.Identifier] = stored.ID
	for _, code := range stored.Codes() {
		s.byCode[code] = stored.ID
	}
}

func (s *Store) removeLocked(meeting *domain.Meeting) {
	delete(s.meetings, meeting.ID)
	delete(s.byIdentifier, meeting.Identifier)
	for _, code := range meeting.Codes() {
		if s.byCode[code] == meeting.ID {
			delete(s.byCode, code)
		}
	}
}

func cloneMeeting(meeting *domain.Meeting) *domain.Meeting {
	clone := *meeting
	if meeting.Delegates != nil {
		clone.Delegates = append([]string(nil), meeting.Delegates...)
	}
	return &clone
}

var _ storage.Store = (*Store)(nil)
