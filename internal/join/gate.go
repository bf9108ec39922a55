package join

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"roomgate/backend/internal/depgate"
	"roomgate/backend/internal/domain"
	"roomgate/backend/internal/storage"
)

// Outcome 一次会议码入会的结果，用于指标统计
type Outcome string

const (
	OutcomeGranted         Outcome = "granted"
	OutcomeRejected        Outcome = "rejected"
	OutcomeCaptchaRequired Outcome = "captcha_required"
	OutcomeCaptchaBypassed Outcome = "captcha_bypassed"
)

// MeetingLookup 按会议码查找会议
type MeetingLookup interface {
	GetMeetingByCode(ctx context.Context, code string) (*domain.Meeting, error)
}

// Request 会议码入会请求
type Request struct {
	SessionID    string
	Code         string
	CaptchaToken string
	RemoteIP     string
}

// Decision 入会判定结果
//
// CaptchaRequired 表示客户端下一次提交是否需要附带验证码。
type Decision struct {
	Meeting         *domain.Meeting
	Role            domain.Role
	CaptchaRequired bool
}

// Config 入会门控参数
type Config struct {
	AttemptThreshold int64
	CaptchaEnabled   bool
}

// Gate 会议码入会门控
//
// 连续失败次数达到阈值后要求验证码；验证码服务本身不可用时放行，只对本次判定生效。
type Gate struct {
	lookup   MeetingLookup
	attempts *AttemptCounter
	deps     *depgate.Gate
	captcha  CaptchaVerifier
	cfg      Config
	log      *zap.Logger
	observe  func(Outcome)
}

// NewGate 创建入会门控
//
// captcha 可为空，此时等同于未启用验证码。
func NewGate(lookup MeetingLookup, attempts *AttemptCounter, deps *depgate.Gate, captcha CaptchaVerifier, cfg Config, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	if captcha == nil {
		cfg.CaptchaEnabled = false
	}
	return &Gate{
		lookup:   lookup,
		attempts: attempts,
		deps:     deps,
		captcha:  captcha,
		cfg:      cfg,
		log:      log,
	}
}

// SetObserver 设置结果回调
func (g *Gate) SetObserver(fn func(Outcome)) {
	g.observe = fn
}

// Evaluate 判定会议码入会请求
//
// 成功时返回主持人角色（会议码只分发给主持人）。
// 失败统一返回 domain.ErrUnauthorized，不区分会议码是否存在；
// 超过阈值且未通过验证码时返回 domain.ErrAbuseDetected。
func (g *Gate) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	count, err := g.attempts.Count(ctx, req.SessionID)
	if err != nil {
		g.log.Warn("failed to read join attempts", zap.Error(err))
	}

	bypassed := false
	if g.cfg.CaptchaEnabled && count >= g.cfg.AttemptThreshold {
		required, err := g.checkCaptcha(ctx, req)
		if err != nil {
			g.record(OutcomeCaptchaRequired)
			return &Decision{CaptchaRequired: true}, err
		}
		if !required {
			bypassed = true
			g.record(OutcomeCaptchaBypassed)
		}
	}

	code := strings.TrimSpace(req.Code)
	var meeting *domain.Meeting
	if code != "" {
		meeting, err = g.lookup.GetMeetingByCode(ctx, code)
		if err != nil && !errors.Is(err, storage.ErrMeetingNotFound) {
			return nil, err
		}
	}

	if meeting == nil {
		count, err = g.attempts.Increment(ctx, req.SessionID)
		if err != nil {
			g.log.Warn("failed to record join attempt", zap.Error(err))
		}
		g.log.Debug("join by code rejected", zap.Int64("attempts", count))
		g.record(OutcomeRejected)
		return &Decision{
			CaptchaRequired: g.cfg.CaptchaEnabled && !bypassed && count >= g.cfg.AttemptThreshold,
		}, domain.ErrUnauthorized
	}

	if err := g.attempts.Reset(ctx, req.SessionID); err != nil {
		g.log.Warn("failed to reset join attempts", zap.Error(err))
	}
	g.record(OutcomeGranted)
	return &Decision{
		Meeting: meeting,
		Role:    domain.RoleModerator,
	}, nil
}

// checkCaptcha 返回本次是否仍需验证码；需要但未通过时返回 ErrAbuseDetected
func (g *Gate) checkCaptcha(ctx context.Context, req Request) (bool, error) {
	call := depgate.Call{
		Name:     "captcha",
		Endpoint: g.captcha.Endpoint(),
	}

	// 熔断期间直接放行，不要求用户提交验证码
	if !g.deps.CheckAvailable(ctx, call) {
		g.log.Warn("captcha service unavailable, skipping captcha")
		return false, nil
	}
	if req.CaptchaToken == "" {
		return true, domain.ErrAbuseDetected
	}

	valid := false
	call.Verify = true
	call.Op = func(ctx context.Context) error {
		ok, err := g.captcha.Verify(ctx, req.CaptchaToken, req.RemoteIP)
		valid = ok
		return err
	}
	if err := g.deps.Do(ctx, call); err != nil {
		g.log.Warn("captcha verification failed, skipping captcha", zap.Error(err))
		return false, nil
	}
	if !valid {
		return true, domain.ErrAbuseDetected
	}
	return true, nil
}

func (g *Gate) record(outcome Outcome) {
	if g.observe != nil {
		g.observe(outcome)
	}
}
