package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"koerner360/backend/config"
	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
)

var ErrNotificationNotFound = newError(ErrNotFound, "通知不存在")

// ── 紧急程度分级 ──

// UrgencyPolicy 按剩余天数划分紧急程度
type UrgencyPolicy struct {
	HighMaxDays   int
	MediumMaxDays int
	OverdueLevel  string // 逾期通知的紧急程度
}

// DefaultUrgencyPolicy ≤1 天 high，≤3 天 medium，其余 low，逾期 high
func DefaultUrgencyPolicy() UrgencyPolicy {
	return UrgencyPolicy{HighMaxDays: 1, MediumMaxDays: 3, OverdueLevel: model.UrgencyHigh}
}

// UrgencyPolicyFrom 由启动配置构造分级策略
func UrgencyPolicyFrom(cfg config.UrgencyConfig) UrgencyPolicy {
	p := UrgencyPolicy{HighMaxDays: cfg.HighMaxDays, MediumMaxDays: cfg.MediumMaxDays, OverdueLevel: cfg.OverdueLevel}
	if p.OverdueLevel == "" {
		p.OverdueLevel = model.UrgencyHigh
	}
	return p
}

// Classify 返回通知类型与紧急程度
func (p UrgencyPolicy) Classify(daysRemaining int) (string, string) {
	switch {
	case daysRemaining < 0:
		return model.NotificationTypeOverdue, p.OverdueLevel
	case daysRemaining <= p.HighMaxDays:
		return model.NotificationTypePending, model.UrgencyHigh
	case daysRemaining <= p.MediumMaxDays:
		return model.NotificationTypePending, model.UrgencyMedium
	default:
		return model.NotificationTypePending, model.UrgencyLow
	}
}

// DaysRemaining ceil((deadline - now) / 24h)
func DaysRemaining(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

// ── 通知服务 ──

// NotificationService 通知业务接口
type NotificationService interface {
	// Generate 为待完成评估生成通知，已有同类未读通知的评估跳过，返回新建数量
	Generate(ctx context.Context) (int, error)
	List(ctx context.Context, req *dto.NotificationListRequest, caller Caller) ([]dto.NotificationResponse, int64, error)
	UnreadCount(ctx context.Context, caller Caller) (*dto.UnreadCountResponse, error)
	MarkRead(ctx context.Context, id string, caller Caller) error
	MarkAllRead(ctx context.Context, req *dto.MarkAllReadRequest, caller Caller) (int64, error)
	// Cleanup 删除早于 days 天前的已读通知，未读通知不受影响
	Cleanup(ctx context.Context, days int, caller Caller) (int64, error)
}

type notificationService struct {
	repo    *repository.Repository
	clock   clock.Clock
	loc     *time.Location
	policy  UrgencyPolicy
	baseURL string
	logger  *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(
	repo *repository.Repository,
	clk clock.Clock,
	loc *time.Location,
	policy UrgencyPolicy,
	baseURL string,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{repo: repo, clock: clk, loc: loc, policy: policy, baseURL: baseURL, logger: logger}
}

// ────────────────────── Generate ──────────────────────

func (s *notificationService) Generate(ctx context.Context) (int, error) {
	pending, err := s.repo.Evaluation.ListPending(ctx)
	if err != nil {
		s.logger.Error("查询待完成评估失败", zap.Error(err))
		return 0, err
	}

	now := s.clock.Now()
	created := 0
	for i := range pending {
		e := &pending[i]
		deadline, ok := e.Deadline(nil)
		if !ok {
			continue
		}
		days := DaysRemaining(deadline, now)
		typ, urgency := s.policy.Classify(days)

		// 预检只是减少无效写入，去重由未读部分唯一索引保证
		exists, err := s.repo.Notification.ExistsUnread(ctx, e.EvaluatorID, e.EvaluationID, typ)
		if err != nil {
			s.logger.Error("查询未读通知失败", zap.String("evaluation_id", e.EvaluationID), zap.Error(err))
			return created, err
		}
		if exists {
			continue
		}

		title, message := s.render(e, typ, days, deadline)
		n := &model.Notification{
			UserID:       e.EvaluatorID,
			EvaluationID: e.EvaluationID,
			Type:         typ,
			Urgency:      urgency,
			Status:       model.NotificationUnread,
			Title:        title,
			Message:      message,
			Link:         evaluationLink(s.baseURL, e.EvaluationID),
			CreatedAt:    now,
		}
		ok, err = s.repo.Notification.CreateIfAbsent(ctx, n)
		if err != nil {
			s.logger.Error("创建通知失败", zap.String("evaluation_id", e.EvaluationID), zap.Error(err))
			return created, err
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		s.logger.Info("通知生成完成", zap.Int("created", created))
	}
	return created, nil
}

func (s *notificationService) render(e *model.Evaluation, typ string, days int, deadline time.Time) (string, string) {
	periodName := "当前周期"
	if e.Period != nil {
		periodName = "「" + e.Period.Name + "」"
	}
	due := deadline.In(s.loc).Format("2006-01-02 15:04")

	if typ == model.NotificationTypeOverdue {
		return "评估已逾期",
			fmt.Sprintf("您在%s中的评估已于 %s 截止，已逾期 %d 天，请尽快完成。", periodName, due, -days)
	}
	if days == 0 {
		return "评估今日截止",
			fmt.Sprintf("您在%s中的评估将于今天 %s 截止。", periodName, due)
	}
	return "待完成评估",
		fmt.Sprintf("您在%s中有一项待完成的评估，剩余 %d 天（截止 %s）。", periodName, days, due)
}

// ────────────────────── List ──────────────────────

func (s *notificationService) List(ctx context.Context, req *dto.NotificationListRequest, caller Caller) ([]dto.NotificationResponse, int64, error) {
	notifications, total, err := s.repo.Notification.List(ctx, caller.UserID, repository.NotificationFilter{
		Type:    req.Type,
		Urgency: req.Urgency,
		Status:  req.Status,
	}, repository.Page{Offset: req.GetOffset(), Limit: req.GetPageSize()})
	if err != nil {
		s.logger.Error("列出通知失败", zap.String("user_id", caller.UserID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		result = append(result, toNotificationResponse(&notifications[i]))
	}
	return result, total, nil
}

// ────────────────────── UnreadCount ──────────────────────

func (s *notificationService) UnreadCount(ctx context.Context, caller Caller) (*dto.UnreadCountResponse, error) {
	count, err := s.repo.Notification.CountUnread(ctx, caller.UserID)
	if err != nil {
		s.logger.Error("统计未读通知失败", zap.String("user_id", caller.UserID), zap.Error(err))
		return nil, err
	}
	return &dto.UnreadCountResponse{Count: count}, nil
}

// ────────────────────── MarkRead ──────────────────────

func (s *notificationService) MarkRead(ctx context.Context, id string, caller Caller) error {
	n, err := s.repo.Notification.MarkRead(ctx, id, caller.UserID, s.clock.Now())
	if err != nil {
		s.logger.Error("标记通知已读失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n > 0 {
		return nil
	}

	// 未更新：不存在、不属于当前用户，或已读（幂等）
	existing, err := s.repo.Notification.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	if existing.UserID != caller.UserID {
		return ErrNotificationNotFound
	}
	return nil
}

// ────────────────────── MarkAllRead ──────────────────────

func (s *notificationService) MarkAllRead(ctx context.Context, req *dto.MarkAllReadRequest, caller Caller) (int64, error) {
	var filter repository.NotificationFilter
	if req != nil {
		filter.Type = req.Type
		filter.Urgency = req.Urgency
	}
	n, err := s.repo.Notification.MarkAllRead(ctx, caller.UserID, filter, s.clock.Now())
	if err != nil {
		s.logger.Error("批量标记已读失败", zap.String("user_id", caller.UserID), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// ────────────────────── Cleanup ──────────────────────

func (s *notificationService) Cleanup(ctx context.Context, days int, caller Caller) (int64, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return 0, err
	}
	if days <= 0 {
		days = defaultPurgeDays
	}
	before := s.clock.Now().AddDate(0, 0, -days)
	n, err := s.repo.Notification.PurgeRead(ctx, before)
	if err != nil {
		s.logger.Error("清理已读通知失败", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("已读通知已清理", zap.Int64("purged", n), zap.Int("days", days))
	}
	return n, nil
}

func toNotificationResponse(n *model.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:           n.NotificationID,
		EvaluationID: n.EvaluationID,
		Type:         n.Type,
		Urgency:      n.Urgency,
		Status:       n.Status,
		Title:        n.Title,
		Message:      n.Message,
		Link:         n.Link,
		CreatedAt:    formatTime(n.CreatedAt),
		ReadAt:       formatTimePtr(n.ReadAt),
	}
}
