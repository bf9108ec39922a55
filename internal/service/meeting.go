package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/pin"
	"roomgate/backend/internal/storage"
)

var (
	// ErrInvalidMeetingName 会议名称为空、过长或含控制字符
	ErrInvalidMeetingName = errors.New("meeting name must be 1-255 printable characters")
	// ErrOwnerRequired 创建会议必须指定所有者
	ErrOwnerRequired = errors.New("meeting owner is required")
)

// codesPerMeeting 每个会议占用的拨入码数量（PIN + 语音桥号码）
const codesPerMeeting = 2

// MeetingService 封装会议生命周期操作。
type MeetingService struct {
	repo      storage.MeetingRepository
	allocator *pin.Allocator
	authority *auth.Authority
	resolver  *auth.Resolver
	publicURL string
	log       *zap.Logger
	onAlloc   func(result string)
}

// NewMeetingService 创建会议服务。
func NewMeetingService(
	repo storage.MeetingRepository,
	allocator *pin.Allocator,
	authority *auth.Authority,
	resolver *auth.Resolver,
	publicURL string,
	log *zap.Logger,
) *MeetingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MeetingService{
		repo:      repo,
		allocator: allocator,
		authority: authority,
		resolver:  resolver,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
	}
}

// SetAllocationHook 设置拨入码分配结果回调（ok / retried / exhausted）
func (s *MeetingService) SetAllocationHook(fn func(result string)) {
	s.onAlloc = fn
}

// CreateMeetingInput 定义创建会议所需的输入。
type CreateMeetingInput struct {
	Name      string
	OwnerID   string
	Delegates []string
	Ephemeral bool
}

// Links 会议的入会链接
type Links struct {
	Attendee              string `json:"attendee"`
	Moderator             string `json:"moderator"`
	AuthenticatedAttendee string `json:"authenticatedAttendee,omitempty"`
}

// Create 创建会议并分配拨入码。
func (s *MeetingService) Create(ctx context.Context, input CreateMeetingInput) (*domain.Meeting, error) {
	if !domain.ValidateMeetingName(input.Name) {
		return nil, ErrInvalidMeetingName
	}
	name := strings.TrimSpace(input.Name)
	if input.OwnerID == "" {
		return nil, ErrOwnerRequired
	}

	attendeeSecret, err := newSecret()
	if err != nil {
		return nil, err
	}
	moderatorSecret, err := newSecret()
	if err != nil {
		return nil, err
	}

	meeting := &domain.Meeting{
		ID:              uuid.NewString(),
		Identifier:      uuid.NewString(),
		Name:            name,
		AttendeeSecret:  attendeeSecret,
		ModeratorSecret: moderatorSecret,
		OwnerID:         input.OwnerID,
		Delegates:       input.Delegates,
		Ephemeral:       input.Ephemeral,
	}

	if err := s.allocateAndSave(ctx, meeting, "", s.repo.CreateMeeting); err != nil {
		return nil, err
	}

	s.log.Info("meeting created",
		zap.String("meeting_id", meeting.ID),
		zap.String("owner_id", meeting.OwnerID),
	)
	return meeting, nil
}

// Get 返回主体拥有的会议；非所有者一律视为会议不存在。
func (s *MeetingService) Get(ctx context.Context, id, principalID string) (*domain.Meeting, error) {
	meeting, err := s.repo.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.resolver.IsOwner(meeting, principalID) {
		return nil, storage.ErrMeetingNotFound
	}
	return meeting, nil
}

// Delete 删除会议，其拨入码在同一事务内归档。
func (s *MeetingService) Delete(ctx context.Context, id, principalID string) error {
	meeting, err := s.Get(ctx, id, principalID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMeeting(ctx, meeting.ID, s.allocator.Now()); err != nil {
		return err
	}

	s.log.Info("meeting deleted", zap.String("meeting_id", meeting.ID))
	return nil
}

// RegenerateCodes 为会议分配新的拨入码
//
// 不再使用的旧号码由存储层在同一事务内归档，新号码恰好与旧号码相同时不归档。
func (s *MeetingService) RegenerateCodes(ctx context.Context, id, principalID string) (*domain.Meeting, error) {
	meeting, err := s.Get(ctx, id, principalID)
	if err != nil {
		return nil, err
	}

	if err := s.allocateAndSave(ctx, meeting, meeting.ID, s.update); err != nil {
		return nil, err
	}

	s.log.Info("meeting codes regenerated", zap.String("meeting_id", meeting.ID))
	return meeting, nil
}

// RotateSecrets 替换会议密钥，之前发出的所有链接随之失效。
func (s *MeetingService) RotateSecrets(ctx context.Context, id, principalID string) (*domain.Meeting, error) {
	meeting, err := s.Get(ctx, id, principalID)
	if err != nil {
		return nil, err
	}

	if meeting.AttendeeSecret, err = newSecret(); err != nil {
		return nil, err
	}
	if meeting.ModeratorSecret, err = newSecret(); err != nil {
		return nil, err
	}
	if err := s.update(ctx, meeting); err != nil {
		return nil, err
	}

	s.log.Info("meeting secrets rotated", zap.String("meeting_id", meeting.ID))
	return meeting, nil
}

// Links 生成会议的入会链接（只使用新版哈希）
func (s *MeetingService) Links(meeting *domain.Meeting) Links {
	secret := meeting.Secret()
	links := Links{
		Attendee:  s.joinURL(meeting.Identifier, s.authority.IssueRoleToken(secret, domain.RoleAttendee)),
		Moderator: s.joinURL(meeting.Identifier, s.authority.IssueRoleToken(secret, domain.RoleModerator)),
	}
	if s.resolver.AuthenticatedAttendeeEnabled() {
		links.AuthenticatedAttendee = s.joinURL(meeting.Identifier, s.authority.IssueRoleToken(secret, domain.RoleAuthenticatedAttendee))
	}
	return links
}

func (s *MeetingService) joinURL(identifier, digest string) string {
	return fmt.Sprintf("%s/join/%s?hash=%s", s.publicURL, url.PathEscape(identifier), digest)
}

// allocateAndSave 分配拨入码并保存
//
// 存储层唯一约束冲突时重新分配一次；再次冲突返回 domain.ErrAllocationExhausted。
func (s *MeetingService) allocateAndSave(
	ctx context.Context,
	meeting *domain.Meeting,
	excludeMeetingID string,
	save func(context.Context, *domain.Meeting) error,
) error {
	for attempt := 0; attempt < 2; attempt++ {
		codes, err := s.allocator.AllocateCodes(ctx, excludeMeetingID, codesPerMeeting)
		if err != nil {
			if errors.Is(err, domain.ErrAllocationExhausted) {
				s.recordAlloc("exhausted")
			}
			return err
		}
		meeting.PIN, meeting.VoiceBridge = codes[0], codes[1]

		err = save(ctx, meeting)
		if err == nil {
			if attempt == 0 {
				s.recordAlloc("ok")
			} else {
				s.recordAlloc("retried")
			}
			return nil
		}
		if !errors.Is(err, storage.ErrPinConflict) {
			return err
		}
		s.log.Warn("numeric code conflict on save, reallocating",
			zap.String("meeting_id", meeting.ID),
			zap.Int("attempt", attempt+1),
		)
	}

	s.log.Error("numeric code allocation failed after conflict retry", zap.String("meeting_id", meeting.ID))
	s.recordAlloc("exhausted")
	return domain.Wrap(domain.ErrAllocationExhausted, storage.ErrPinConflict)
}

func (s *MeetingService) update(ctx context.Context, meeting *domain.Meeting) error {
	return s.repo.UpdateMeeting(ctx, meeting, s.allocator.Now())
}

func (s *MeetingService) recordAlloc(result string) {
	if s.onAlloc != nil {
		s.onAlloc(result)
	}
}

// newSecret 生成 32 个字符的 URL 安全随机密钥
func newSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
