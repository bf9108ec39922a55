package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/domain"
)

var (
	// ErrNoRecipients 邀请没有收件人
	ErrNoRecipients = errors.New("no recipients")
	// ErrInvalidRecipient 收件人地址不合法，整批邀请都不会发送
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// inviteConcurrency 同时发送的邀请邮件数量上限
const inviteConcurrency = 4

// Message 一封纯文本邮件
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InvitationService 发送带限时链接的会议邀请
type InvitationService struct {
	authority *auth.Authority
	sender    Sender
	publicURL string
	linkTTL   time.Duration
	log       *zap.Logger
	onResult  func(err error)
}

// NewInvitationService 创建邀请服务
func NewInvitationService(authority *auth.Authority, sender Sender, publicURL string, linkTTL time.Duration, log *zap.Logger) *InvitationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvitationService{
		authority: authority,
		sender:    sender,
		publicURL: strings.TrimRight(publicURL, "/"),
		linkTTL:   linkTTL,
		log:       log,
	}
}

// SetResultHook 设置每批邀请发送结果回调
func (s *InvitationService) SetResultHook(fn func(err error)) {
	s.onResult = fn
}

// MailLinkURL 生成邮件入会链接
func (s *InvitationService) MailLinkURL(meeting *domain.Meeting) string {
	link := s.authority.IssueMailToken(meeting.Identifier, s.linkTTL)
	return fmt.Sprintf("%s/join/%s/mail?expires=%d&hash=%s",
		s.publicURL, url.PathEscape(link.Identifier), link.Expires, link.Digest)
}

// Invite 向所有收件人发送邀请，单个失败不影响其他收件人，失败汇总返回
func (s *InvitationService) Invite(ctx context.Context, meeting *domain.Meeting, recipients []string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	for _, to := range recipients {
		if err := domain.ValidateRecipient(to); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidRecipient, to, err)
		}
	}

	link := s.MailLinkURL(meeting)
	subject := fmt.Sprintf("Invitation: %s", meeting.Name)
	// PIN 以主持人身份入会，只发给主持人，邀请中只给语音桥号码
	body := fmt.Sprintf("You are invited to join %q.\n\nJoin link: %s\nVoice bridge: %s\n\nThis link expires in %s.\n",
		meeting.Name, link, meeting.VoiceBridge, s.linkTTL)

	errs := make([]error, len(recipients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inviteConcurrency)
	for i, to := range recipients {
		i, to := i, to
		g.Go(func() error {
			err := s.sender.Send(gctx, Message{To: to, Subject: subject, Body: body})
			if err != nil {
				s.log.Warn("failed to send invitation",
					zap.String("meeting_id", meeting.ID),
					zap.String("recipient", to),
					zap.Error(err),
				)
				errs[i] = fmt.Errorf("%s: %w", to, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if s.onResult != nil {
		s.onResult(err)
	}
	if err != nil {
		return err
	}
	s.log.Info("invitations sent",
		zap.String("meeting_id", meeting.ID),
		zap.Int("recipients", len(recipients)),
	)
	return nil
}
