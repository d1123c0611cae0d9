package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
)

// ── 评估模块业务错误 ──

var (
	ErrEvaluationNotFound      = newError(ErrNotFound, "评估不存在")
	ErrEvaluatedNotFound       = newError(ErrNotFound, "被评估人不存在")
	ErrEvaluatorNotFound       = newError(ErrNotFound, "评估人不存在")
	ErrEvaluatedInactive       = newError(ErrValidation, "被评估人已停用")
	ErrEvaluatorInactive       = newError(ErrValidation, "评估人已停用")
	ErrPeriodNotActive         = newError(ErrValidation, "评估周期未处于进行中")
	ErrEvaluationOutsideWindow = newError(ErrValidation, "当前时间不在评估周期窗口内")
	ErrEvaluationCanceled      = newError(ErrConflict, "评估已取消，不可修改")
	ErrEvaluationLocked        = newError(ErrPermission, "评估已提交，仅管理角色可修改")
)

const (
	duplicateEvaluationReason = "您已在该周期评估过此对象"
	duplicateAssignmentReason = "该评估关系在本周期已存在"
)

// EvaluationService 评估业务接口
type EvaluationService interface {
	// Create 当前用户提交评估；已有同一三元组的待完成指派时完成该指派
	Create(ctx context.Context, req *dto.CreateEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error)
	// Assign 指派待完成评估（管理角色）
	Assign(ctx context.Context, req *dto.AssignEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error)
	GetByID(ctx context.Context, id string, caller Caller) (*dto.EvaluationResponse, error)
	List(ctx context.Context, req *dto.EvaluationListRequest, caller Caller) ([]dto.EvaluationResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdateEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error)
	Cancel(ctx context.Context, id string, req *dto.CancelEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error)
	Delete(ctx context.Context, id string, caller Caller) error
}

type evaluationService struct {
	repo      *repository.Repository
	periods   periodReconciler
	reminders reminderRescheduler
	clock     clock.Clock
	loc       *time.Location
	logger    *zap.Logger
}

// NewEvaluationService 创建 EvaluationService 实例；reminders 可为 nil
func NewEvaluationService(
	repo *repository.Repository,
	periods periodReconciler,
	reminders reminderRescheduler,
	clk clock.Clock,
	loc *time.Location,
	logger *zap.Logger,
) EvaluationService {
	return &evaluationService{repo: repo, periods: periods, reminders: reminders, clock: clk, loc: loc, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *evaluationService) Create(ctx context.Context, req *dto.CreateEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error) {
	if err := validateScore(req.Score); err != nil {
		return nil, err
	}
	if err := validateComment(req.Comment); err != nil {
		return nil, err
	}
	if _, err := s.periods.Reconcile(ctx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	period, err := s.loadPeriod(ctx, req.PeriodID)
	if err != nil {
		return nil, err
	}
	if period.Status != model.PeriodActive {
		return nil, ErrPeriodNotActive
	}
	if !caller.Can(CapBypassWindow) && !period.Contains(now) {
		return nil, ErrEvaluationOutsideWindow
	}
	if err := s.requireActiveUser(ctx, caller.UserID, ErrEvaluatorNotFound, ErrEvaluatorInactive); err != nil {
		return nil, err
	}
	if err := s.requireActiveUser(ctx, req.EvaluatedID, ErrEvaluatedNotFound, ErrEvaluatedInactive); err != nil {
		return nil, err
	}

	score := req.Score
	var result *model.Evaluation
	var fulfilled bool
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		existing, err := tx.Evaluation.GetByTriple(ctx, caller.UserID, req.EvaluatedID, req.PeriodID)
		switch {
		case err == nil:
			if existing.Status != model.EvaluationPending {
				return &ConflictError{Reason: duplicateEvaluationReason}
			}
			existing.Score = &score
			existing.Comment = req.Comment
			existing.Status = model.EvaluationCompleted
			existing.EvaluationDate = &now
			existing.UpdatedAt = now
			existing.UpdatedBy = caller.operator()
			result, fulfilled = existing, true
			return tx.Evaluation.Update(ctx, existing)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		result = &model.Evaluation{
			EvaluatorID:    caller.UserID,
			EvaluatedID:    req.EvaluatedID,
			PeriodID:       req.PeriodID,
			Score:          &score,
			Comment:        req.Comment,
			Status:         model.EvaluationCompleted,
			EvaluationDate: &now,
		}
		result.CreatedAt = now
		result.UpdatedAt = now
		result.CreatedBy = caller.operator()
		result.UpdatedBy = caller.operator()
		return tx.Evaluation.Create(ctx, result)
	})
	if err != nil {
		return nil, s.mapWriteError(err, duplicateEvaluationReason, "提交评估失败")
	}

	if fulfilled {
		s.settle(ctx, result.EvaluationID, now)
	}
	s.logger.Info("评估已提交",
		zap.String("id", result.EvaluationID),
		zap.String("period_id", result.PeriodID),
		zap.Bool("fulfilled", fulfilled),
	)
	return toEvaluationResponse(result), nil
}

// ────────────────────── Assign ──────────────────────

func (s *evaluationService) Assign(ctx context.Context, req *dto.AssignEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error) {
	if err := caller.require(CapManageEvaluations); err != nil {
		return nil, err
	}
	var dueDate *time.Time
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := parseInstant("due_date", *req.DueDate, s.loc, true)
		if err != nil {
			return nil, err
		}
		dueDate = &due
	}
	if _, err := s.periods.Reconcile(ctx); err != nil {
		return nil, err
	}

	period, err := s.loadPeriod(ctx, req.PeriodID)
	if err != nil {
		return nil, err
	}
	if period.IsTerminal() {
		return nil, ErrPeriodTerminal
	}
	if err := s.requireActiveUser(ctx, req.EvaluatorID, ErrEvaluatorNotFound, ErrEvaluatorInactive); err != nil {
		return nil, err
	}
	if err := s.requireActiveUser(ctx, req.EvaluatedID, ErrEvaluatedNotFound, ErrEvaluatedInactive); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	evaluation := &model.Evaluation{
		EvaluatorID: req.EvaluatorID,
		EvaluatedID: req.EvaluatedID,
		PeriodID:    req.PeriodID,
		Status:      model.EvaluationPending,
		DueDate:     dueDate,
	}
	evaluation.CreatedAt = now
	evaluation.UpdatedAt = now
	evaluation.CreatedBy = caller.operator()
	evaluation.UpdatedBy = caller.operator()

	if _, err := s.repo.Evaluation.GetByTriple(ctx, req.EvaluatorID, req.EvaluatedID, req.PeriodID); err == nil {
		return nil, &ConflictError{Reason: duplicateAssignmentReason}
	}
	if err := s.repo.Evaluation.Create(ctx, evaluation); err != nil {
		return nil, s.mapWriteError(err, duplicateAssignmentReason, "指派评估失败")
	}

	s.reschedule(ctx, evaluation.EvaluationID)
	s.logger.Info("评估已指派",
		zap.String("id", evaluation.EvaluationID),
		zap.String("evaluator_id", req.EvaluatorID),
		zap.String("operator", caller.UserID),
	)
	return toEvaluationResponse(evaluation), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *evaluationService) GetByID(ctx context.Context, id string, caller Caller) (*dto.EvaluationResponse, error) {
	evaluation, err := s.loadEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Can(CapViewAll) && evaluation.EvaluatorID != caller.UserID && evaluation.EvaluatedID != caller.UserID {
		// 不暴露他人评估是否存在
		return nil, ErrEvaluationNotFound
	}
	return toEvaluationResponse(evaluation), nil
}

// ────────────────────── List ──────────────────────

func (s *evaluationService) List(ctx context.Context, req *dto.EvaluationListRequest, caller Caller) ([]dto.EvaluationResponse, int64, error) {
	filter := repository.EvaluationFilter{
		PeriodID:    req.PeriodID,
		EvaluatorID: req.EvaluatorID,
		EvaluatedID: req.EvaluatedID,
		Status:      req.Status,
	}
	if !caller.Can(CapViewAll) {
		filter.EvaluatorID = caller.UserID
	}

	evaluations, total, err := s.repo.Evaluation.List(ctx, filter, repository.Page{Offset: req.GetOffset(), Limit: req.GetPageSize()})
	if err != nil {
		s.logger.Error("列出评估失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.EvaluationResponse, 0, len(evaluations))
	for i := range evaluations {
		result = append(result, *toEvaluationResponse(&evaluations[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

func (s *evaluationService) Update(ctx context.Context, id string, req *dto.UpdateEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error) {
	if req.Score != nil {
		if err := validateScore(*req.Score); err != nil {
			return nil, err
		}
	}
	if err := validateComment(req.Comment); err != nil {
		return nil, err
	}

	evaluation, err := s.loadEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if evaluation.Status == model.EvaluationCanceled {
		return nil, ErrEvaluationCanceled
	}

	elevated := caller.Can(CapManageEvaluations)
	if !elevated {
		if evaluation.EvaluatorID != caller.UserID {
			return nil, ErrForbidden
		}
		if evaluation.Status != model.EvaluationPending {
			return nil, ErrEvaluationLocked
		}
		if req.DueDate != nil {
			return nil, ErrForbidden
		}
		if _, err := s.periods.Reconcile(ctx); err != nil {
			return nil, err
		}
		period, err := s.loadPeriod(ctx, evaluation.PeriodID)
		if err != nil {
			return nil, err
		}
		if period.Status != model.PeriodActive {
			return nil, ErrPeriodNotActive
		}
		if !period.Contains(s.clock.Now()) {
			return nil, ErrEvaluationOutsideWindow
		}
	}

	now := s.clock.Now()
	dueChanged := false
	if req.DueDate != nil {
		var due *time.Time
		if *req.DueDate != "" {
			t, err := parseInstant("due_date", *req.DueDate, s.loc, true)
			if err != nil {
				return nil, err
			}
			due = &t
		}
		dueChanged = !sameInstant(evaluation.DueDate, due)
		evaluation.DueDate = due
	}
	if req.Comment != nil {
		evaluation.Comment = req.Comment
	}
	completed := false
	if req.Score != nil {
		score := *req.Score
		evaluation.Score = &score
		if evaluation.Status == model.EvaluationPending {
			evaluation.Status = model.EvaluationCompleted
			evaluation.EvaluationDate = &now
			completed = true
		}
	}
	evaluation.UpdatedAt = now
	evaluation.UpdatedBy = caller.operator()

	if err := s.repo.Evaluation.Update(ctx, evaluation); err != nil {
		s.logger.Error("更新评估失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	switch {
	case completed:
		s.settle(ctx, id, now)
	case dueChanged:
		s.reschedule(ctx, id)
	}
	return toEvaluationResponse(evaluation), nil
}

// ────────────────────── Cancel ──────────────────────

func (s *evaluationService) Cancel(ctx context.Context, id string, req *dto.CancelEvaluationRequest, caller Caller) (*dto.EvaluationResponse, error) {
	if err := caller.require(CapManageEvaluations); err != nil {
		return nil, err
	}
	evaluation, err := s.loadEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if evaluation.Status == model.EvaluationCanceled {
		return nil, ErrEvaluationCanceled
	}

	now := s.clock.Now()
	from := evaluation.Status
	evaluation.Status = model.EvaluationCanceled
	evaluation.UpdatedAt = now
	evaluation.UpdatedBy = caller.operator()

	reason := ""
	if req != nil {
		reason = req.Reason
	}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Evaluation.Update(ctx, evaluation); err != nil {
			return err
		}
		return writeAudit(ctx, tx, model.EvaluationCancellation{
			EvaluationID: id,
			From:         from,
			Reason:       reason,
		}, caller.operator(), now)
	})
	if err != nil {
		s.logger.Error("取消评估失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.settle(ctx, id, now)
	s.logger.Info("评估已取消", zap.String("id", id), zap.String("operator", caller.UserID))
	return toEvaluationResponse(evaluation), nil
}

// ────────────────────── Delete ──────────────────────

func (s *evaluationService) Delete(ctx context.Context, id string, caller Caller) error {
	if err := caller.require(CapManageEvaluations); err != nil {
		return err
	}
	if _, err := s.loadEvaluation(ctx, id); err != nil {
		return err
	}

	now := s.clock.Now()
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// 已发送提醒保留，未发送的随评估一并删除
		if _, err := tx.Reminder.DeleteFutureUnsent(ctx, id, time.Time{}); err != nil {
			return err
		}
		if _, err := tx.Notification.MarkReadByEvaluation(ctx, id, now); err != nil {
			return err
		}
		return tx.Evaluation.Delete(ctx, id)
	})
	if err != nil {
		s.logger.Error("删除评估失败", zap.String("id", id), zap.Error(err))
		return err
	}

	s.logger.Info("评估已删除", zap.String("id", id), zap.String("operator", caller.UserID))
	return nil
}

// ── 内部辅助 ──

func validateScore(score int) error {
	if score < model.ScoreMin || score > model.ScoreMax {
		return invalid("score", fmt.Sprintf("评分必须在 %d-%d 之间", model.ScoreMin, model.ScoreMax))
	}
	return nil
}

func validateComment(comment *string) error {
	if comment != nil && utf8.RuneCountInString(*comment) > model.CommentMaxLength {
		return invalid("comment", fmt.Sprintf("评语不能超过 %d 个字符", model.CommentMaxLength))
	}
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *evaluationService) loadEvaluation(ctx context.Context, id string) (*model.Evaluation, error) {
	evaluation, err := s.repo.Evaluation.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEvaluationNotFound
		}
		s.logger.Error("查询评估失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return evaluation, nil
}

func (s *evaluationService) loadPeriod(ctx context.Context, id string) (*model.Period, error) {
	period, err := s.repo.Period.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		s.logger.Error("查询周期失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return period, nil
}

func (s *evaluationService) requireActiveUser(ctx context.Context, id string, notFound, inactive error) error {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if user.Status != model.UserActive {
		return inactive
	}
	return nil
}

// mapWriteError 唯一索引是三元组去重的最终保证
func (s *evaluationService) mapWriteError(err error, duplicateReason, msg string) error {
	switch {
	case isBusinessError(err):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &ConflictError{Reason: duplicateReason}
	}
	s.logger.Error(msg, zap.Error(err))
	return err
}

// settle 评估不再待处理：未读通知置为已读，未发送提醒删除
func (s *evaluationService) settle(ctx context.Context, id string, now time.Time) {
	if _, err := s.repo.Notification.MarkReadByEvaluation(ctx, id, now); err != nil {
		s.logger.Warn("清理评估通知失败", zap.String("evaluation_id", id), zap.Error(err))
	}
	s.reschedule(ctx, id)
}

// reschedule 以系统身份重建提醒，失败不影响评估本身的写入结果
func (s *evaluationService) reschedule(ctx context.Context, id string) {
	if s.reminders == nil {
		return
	}
	if _, err := s.reminders.RescheduleEvaluation(ctx, id, SystemCaller()); err != nil {
		s.logger.Warn("重建评估提醒失败", zap.String("evaluation_id", id), zap.Error(err))
	}
}

func toEvaluationResponse(e *model.Evaluation) *dto.EvaluationResponse {
	return &dto.EvaluationResponse{
		ID:             e.EvaluationID,
		EvaluatorID:    e.EvaluatorID,
		EvaluatedID:    e.EvaluatedID,
		PeriodID:       e.PeriodID,
		Score:          e.Score,
		Comment:        e.Comment,
		Status:         e.Status,
		EvaluationDate: formatTimePtr(e.EvaluationDate),
		DueDate:        formatTimePtr(e.DueDate),
		CreatedAt:      formatTime(e.CreatedAt),
		UpdatedAt:      formatTime(e.UpdatedAt),
	}
}
