package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
	pkgerrors "koerner360/backend/pkg/errors"
)

// ── 提醒模块业务错误 ──

var (
	ErrReminderNotFound    = newError(ErrNotFound, "提醒不存在")
	ErrReminderAlreadySent = newError(ErrConflict, "提醒已发送，不可修改")
	ErrReminderFailed      = newError(ErrConflict, "提醒已达到最大尝试次数，请先改期")
	ErrReminderBusy        = newError(ErrConflict, "提醒正在被其他实例投递")
	ErrReminderDuplicate   = newError(ErrConflict, "该日已存在同类提醒")
	ErrReminderPastTime    = newError(ErrValidation, "改期时间必须晚于当前时间")
)

// defaultPurgeDays 清理已发送提醒/已读通知的默认保留天数
const defaultPurgeDays = 90

// ReminderService 提醒运维视图业务接口
type ReminderService interface {
	List(ctx context.Context, req *dto.ReminderListRequest, caller Caller) ([]dto.ReminderResponse, int64, error)
	// Resend 立即重新投递一条未发送的提醒（reenviar）
	Resend(ctx context.Context, id string, caller Caller) (*dto.ReminderResponse, error)
	// Reschedule 将未发送的提醒改期，并重置尝试次数与永久失败标记（reagendar）
	Reschedule(ctx context.Context, id string, req *dto.RescheduleReminderRequest, caller Caller) (*dto.ReminderResponse, error)
	// RescheduleEvaluation 删除评估未来未发送的提醒并按当前配置重建（reagendarAvaliacao）
	RescheduleEvaluation(ctx context.Context, evaluationID string, caller Caller) (*dto.RescheduleEvaluationResponse, error)
	// PurgeSent 删除早于 days 天前发送的提醒
	PurgeSent(ctx context.Context, days int, caller Caller) (int64, error)
}

type reminderService struct {
	repo     *repository.Repository
	planner  *reminderPlanner
	delivery *reminderDelivery
	clock    clock.Clock
	loc      *time.Location
	logger   *zap.Logger
}

func newReminderService(
	repo *repository.Repository,
	planner *reminderPlanner,
	delivery *reminderDelivery,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) *reminderService {
	return &reminderService{repo: repo, planner: planner, delivery: delivery, clock: clk, loc: loc, logger: logger}
}

// ────────────────────── List ──────────────────────

func (s *reminderService) List(ctx context.Context, req *dto.ReminderListRequest, caller Caller) ([]dto.ReminderResponse, int64, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, 0, err
	}
	reminders, total, err := s.repo.Reminder.List(ctx, repository.ReminderFilter{
		EvaluationID: req.EvaluationID,
		UserID:       req.UserID,
		Sent:         req.Sent,
		Failed:       req.Failed,
	}, repository.Page{Offset: req.GetOffset(), Limit: req.GetPageSize()})
	if err != nil {
		s.logger.Error("列出提醒失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ReminderResponse, 0, len(reminders))
	for i := range reminders {
		result = append(result, *toReminderResponse(&reminders[i]))
	}
	return result, total, nil
}

// ────────────────────── Resend ──────────────────────

func (s *reminderService) Resend(ctx context.Context, id string, caller Caller) (*dto.ReminderResponse, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, err
	}
	reminder, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder.Sent {
		return nil, ErrReminderAlreadySent
	}
	if reminder.Failed {
		return nil, ErrReminderFailed
	}

	outcome, err := s.delivery.deliver(ctx, reminder)
	if err != nil {
		s.logger.Error("重新投递提醒失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if outcome == outcomeBusy {
		return nil, ErrReminderBusy
	}

	// 投递失败只体现在提醒的 attempts / last_error 上，不作为请求错误
	reminder, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toReminderResponse(reminder), nil
}

// ────────────────────── Reschedule ──────────────────────

func (s *reminderService) Reschedule(ctx context.Context, id string, req *dto.RescheduleReminderRequest, caller Caller) (*dto.ReminderResponse, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, err
	}
	at, err := parseInstant("scheduled_at", req.ScheduledAt, s.loc, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !at.After(now) {
		return nil, ErrReminderPastTime
	}

	reminder, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder.Sent {
		return nil, ErrReminderAlreadySent
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Reminder.Reschedule(ctx, id, at, at.In(s.loc).Format(dateLayout), now); err != nil {
			return err
		}
		return writeAudit(ctx, tx, model.ReminderRescheduled{
			ReminderID: id,
			From:       reminder.ScheduledAt,
			To:         at,
		}, caller.operator(), now)
	})
	switch {
	case err == nil:
	case errors.Is(err, pkgerrors.ErrNotClaimed):
		return nil, ErrReminderBusy
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, ErrReminderDuplicate
	default:
		s.logger.Error("提醒改期失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("提醒已改期", zap.String("id", id), zap.Time("scheduled_at", at))
	reminder, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toReminderResponse(reminder), nil
}

// ────────────────────── RescheduleEvaluation ──────────────────────

func (s *reminderService) RescheduleEvaluation(ctx context.Context, evaluationID string, caller Caller) (*dto.RescheduleEvaluationResponse, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, err
	}
	evaluation, err := s.repo.Evaluation.GetByID(ctx, evaluationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEvaluationNotFound
		}
		s.logger.Error("查询评估失败", zap.String("id", evaluationID), zap.Error(err))
		return nil, err
	}

	// 非待处理评估清空全部未发送提醒；待处理评估只清理未来的提醒后重建
	after := s.clock.Now()
	if evaluation.Status != model.EvaluationPending {
		after = time.Time{}
	}
	deleted, err := s.repo.Reminder.DeleteFutureUnsent(ctx, evaluationID, after)
	if err != nil {
		s.logger.Error("删除未发送提醒失败", zap.String("evaluation_id", evaluationID), zap.Error(err))
		return nil, err
	}

	created := 0
	if evaluation.Status == model.EvaluationPending {
		if created, err = s.planner.generate(ctx, []model.Evaluation{*evaluation}); err != nil {
			return nil, err
		}
	}

	s.logger.Info("评估提醒已重建",
		zap.String("evaluation_id", evaluationID),
		zap.Int64("deleted", deleted),
		zap.Int("created", created),
	)
	return &dto.RescheduleEvaluationResponse{Deleted: deleted, Created: created}, nil
}

// ────────────────────── PurgeSent ──────────────────────

func (s *reminderService) PurgeSent(ctx context.Context, days int, caller Caller) (int64, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return 0, err
	}
	if days <= 0 {
		days = defaultPurgeDays
	}
	before := s.clock.Now().AddDate(0, 0, -days)
	n, err := s.repo.Reminder.PurgeSent(ctx, before)
	if err != nil {
		s.logger.Error("清理已发送提醒失败", zap.Error(err))
		return 0, err
	}
	s.logger.Info("已发送提醒已清理", zap.Int64("purged", n), zap.Int("days", days))
	return n, nil
}

func (s *reminderService) load(ctx context.Context, id string) (*model.Reminder, error) {
	reminder, err := s.repo.Reminder.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		s.logger.Error("查询提醒失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return reminder, nil
}

func toReminderResponse(r *model.Reminder) *dto.ReminderResponse {
	return &dto.ReminderResponse{
		ID:            r.ReminderID,
		EvaluationID:  r.EvaluationID,
		UserID:        r.UserID,
		Type:          r.Type,
		ScheduledDate: r.ScheduledDate,
		ScheduledAt:   formatTime(r.ScheduledAt),
		Sent:          r.Sent,
		SentAt:        formatTimePtr(r.SentAt),
		Attempts:      r.Attempts,
		Failed:        r.Failed,
		LastError:     derefString(r.LastError),
		LastAttemptAt: formatTimePtr(r.LastAttemptAt),
	}
}
