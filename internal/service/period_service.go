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

// ── 评估周期模块业务错误 ──

var (
	ErrPeriodNotFound       = newError(ErrNotFound, "评估周期不存在")
	ErrNoActivePeriod       = newError(ErrNotFound, "当前没有进行中的评估周期")
	ErrPeriodWindowInvalid  = newError(ErrValidation, "周期结束时间必须晚于开始时间")
	ErrPeriodTerminal       = newError(ErrConflict, "周期已完结或已取消，不可修改")
	ErrPeriodTransition     = newError(ErrConflict, "不允许的周期状态迁移")
	ErrPeriodHasCompleted   = newError(ErrConflict, "周期内已有完成的评估，不可取消")
	ErrPeriodHasEvaluations = newError(ErrConflict, "周期内已有评估记录，不可删除，请改为取消")
	ErrPeriodOutsideWindow  = newError(ErrConflict, "当前时间不在周期窗口内")
	ErrPeriodNotEnded       = newError(ErrConflict, "周期尚未到达结束时间")
	ErrPeriodVersion        = newError(ErrConflict, "周期已被其他操作修改，请刷新后重试")
)

// reminderRescheduler 截止时间变化后重建评估提醒
type reminderRescheduler interface {
	RescheduleEvaluation(ctx context.Context, evaluationID string, caller Caller) (*dto.RescheduleEvaluationResponse, error)
}

// periodReconciler 在依赖周期状态的操作前执行对账
type periodReconciler interface {
	Reconcile(ctx context.Context) (*dto.ReconcileResponse, error)
}

// PeriodService 评估周期业务接口
type PeriodService interface {
	// Reconcile 按当前时间推进周期状态，返回变更数量与需人工处理的异常
	Reconcile(ctx context.Context) (*dto.ReconcileResponse, error)
	// CanTransition 校验周期能否迁移到 newStatus
	CanTransition(ctx context.Context, period *model.Period, newStatus string) error
	Create(ctx context.Context, req *dto.CreatePeriodRequest, caller Caller) (*dto.PeriodResponse, error)
	GetByID(ctx context.Context, id string) (*dto.PeriodResponse, error)
	GetCurrent(ctx context.Context) (*dto.PeriodResponse, error)
	List(ctx context.Context, req *dto.PeriodListRequest) ([]dto.PeriodResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdatePeriodRequest, caller Caller) (*dto.PeriodResponse, error)
	Cancel(ctx context.Context, id string, req *dto.CancelPeriodRequest, caller Caller) (*dto.PeriodResponse, error)
	Delete(ctx context.Context, id string, caller Caller) error
	Conflicts(ctx context.Context, query *dto.PeriodConflictQuery) ([]dto.PeriodConflict, error)
	Anomalies(ctx context.Context) ([]dto.PeriodAnomaly, error)
}

type periodService struct {
	repo      *repository.Repository
	clock     clock.Clock
	loc       *time.Location
	reminders reminderRescheduler
	logger    *zap.Logger
}

// NewPeriodService 创建 PeriodService 实例；reminders 可为 nil（不重建提醒）
func NewPeriodService(
	repo *repository.Repository,
	clk clock.Clock,
	loc *time.Location,
	reminders reminderRescheduler,
	logger *zap.Logger,
) PeriodService {
	return &periodService{repo: repo, clock: clk, loc: loc, reminders: reminders, logger: logger}
}

// ────────────────────── Reconcile ──────────────────────

type periodAnomaly struct {
	period    model.Period
	conflicts []model.Period
	reason    string
}

func (s *periodService) Reconcile(ctx context.Context) (*dto.ReconcileResponse, error) {
	now := s.clock.Now()

	var changed int
	var anomalies []periodAnomaly
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		changed, anomalies, err = s.reconcileTx(ctx, tx, now)
		return err
	})
	if err != nil {
		s.logger.Error("周期对账失败", zap.Error(err))
		return nil, err
	}

	if changed > 0 {
		s.logger.Info("周期对账完成", zap.Int("changed", changed))
	}
	for _, a := range anomalies {
		s.logger.Warn("周期推迟激活，需人工处理",
			zap.String("period_id", a.period.PeriodID),
			zap.String("reason", a.reason),
			zap.Int("conflicts", len(a.conflicts)),
		)
	}

	resp := &dto.ReconcileResponse{Changed: changed, Anomalies: make([]dto.PeriodAnomaly, 0, len(anomalies))}
	for _, a := range anomalies {
		resp.Anomalies = append(resp.Anomalies, dto.PeriodAnomaly{
			Period:        toPeriodConflict(&a.period),
			ConflictsWith: toPeriodConflicts(a.conflicts),
			Reason:        a.reason,
		})
	}
	return resp, nil
}

// reconcileTx 先完结到期周期，再激活窗口覆盖当前时间的 PLANNED 周期
// 激活被推迟的周期作为异常返回，不自动处理
func (s *periodService) reconcileTx(ctx context.Context, tx *repository.Repository, now time.Time) (int, []periodAnomaly, error) {
	periods, err := tx.Period.ListForUpdate(ctx, model.NonTerminalPeriodStatuses)
	if err != nil {
		return 0, nil, err
	}

	changed := 0
	open := make([]model.Period, 0, len(periods))
	for i := range periods {
		p := &periods[i]
		if !now.After(p.EndsAt) {
			open = append(open, *p)
			continue
		}
		reason := "窗口结束，自动完结"
		if p.Status == model.PeriodPlanned {
			reason = "窗口已过且从未激活，自动完结"
		}
		if err := s.applyStatus(ctx, tx, p, model.PeriodFinished, reason, nil, now); err != nil {
			return 0, nil, err
		}
		changed++
	}

	var active *model.Period
	for i := range open {
		if open[i].Status == model.PeriodActive {
			active = &open[i]
			break
		}
	}

	var anomalies []periodAnomaly
	for i := range open {
		p := &open[i]
		if p.Status != model.PeriodPlanned || !p.Contains(now) {
			continue
		}
		if active != nil {
			reason := "已有进行中的周期，推迟激活"
			if Overlaps(p.StartsAt, p.EndsAt, active.StartsAt, active.EndsAt) {
				reason = "与进行中的周期窗口重叠，推迟激活"
			}
			anomalies = append(anomalies, periodAnomaly{period: *p, conflicts: []model.Period{*active}, reason: reason})
			continue
		}
		if conflicts := FindConflicts(open, p.StartsAt, p.EndsAt, p.PeriodID); len(conflicts) > 0 {
			anomalies = append(anomalies, periodAnomaly{period: *p, conflicts: conflicts, reason: "与其他未完结周期窗口重叠，推迟激活"})
			continue
		}
		if err := s.applyStatus(ctx, tx, p, model.PeriodActive, "进入周期窗口，自动激活", nil, now); err != nil {
			return 0, nil, err
		}
		active = p
		changed++
	}

	return changed, anomalies, nil
}

// applyStatus 写入状态变更并记录审计
func (s *periodService) applyStatus(ctx context.Context, tx *repository.Repository, p *model.Period, to, reason string, operator *string, now time.Time) error {
	from := p.Status
	p.Status = to
	p.UpdatedAt = now
	p.UpdatedBy = operator
	if err := tx.Period.Update(ctx, p); err != nil {
		return err
	}
	return writeAudit(ctx, tx, model.PeriodStatusChange{
		PeriodID: p.PeriodID,
		From:     from,
		To:       to,
		Reason:   reason,
	}, operator, now)
}

// ────────────────────── CanTransition ──────────────────────

func (s *periodService) CanTransition(ctx context.Context, period *model.Period, newStatus string) error {
	return s.canTransition(ctx, s.repo, period, newStatus, s.clock.Now())
}

func (s *periodService) canTransition(ctx context.Context, repo *repository.Repository, p *model.Period, to string, now time.Time) error {
	if p.Status == to {
		return nil
	}
	if p.IsTerminal() {
		return ErrPeriodTerminal
	}

	switch to {
	case model.PeriodActive:
		if p.Status != model.PeriodPlanned {
			return ErrPeriodTransition
		}
		if !p.Contains(now) {
			return ErrPeriodOutsideWindow
		}
		others, err := repo.Period.List(ctx, repository.PeriodFilter{Statuses: model.NonTerminalPeriodStatuses})
		if err != nil {
			return err
		}
		conflicts := FindConflicts(others, p.StartsAt, p.EndsAt, p.PeriodID)
		for _, o := range others {
			// 至多一个 ACTIVE：不重叠的进行中周期同样阻止激活
			if o.Status == model.PeriodActive && o.PeriodID != p.PeriodID &&
				!Overlaps(p.StartsAt, p.EndsAt, o.StartsAt, o.EndsAt) {
				conflicts = append(conflicts, o)
			}
		}
		if len(conflicts) > 0 {
			return &ConflictError{Reason: "存在冲突的未完结周期，无法激活", Periods: conflicts}
		}
		return nil

	case model.PeriodCanceled:
		completed, err := repo.Evaluation.CountByPeriod(ctx, p.PeriodID, model.EvaluationCompleted)
		if err != nil {
			return err
		}
		if completed > 0 {
			return ErrPeriodHasCompleted
		}
		return nil

	case model.PeriodFinished:
		if !now.After(p.EndsAt) {
			return ErrPeriodNotEnded
		}
		return nil

	case model.PeriodPlanned:
		return ErrPeriodTransition

	default:
		return invalid("status", "未知的周期状态")
	}
}

// ────────────────────── Create ──────────────────────

func (s *periodService) Create(ctx context.Context, req *dto.CreatePeriodRequest, caller Caller) (*dto.PeriodResponse, error) {
	if err := caller.require(CapManagePeriods); err != nil {
		return nil, err
	}
	start, end, err := s.parseWindow(req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	period := &model.Period{
		Name:        req.Name,
		Description: req.Description,
		StartsAt:    start,
		EndsAt:      end,
		Status:      model.PeriodPlanned,
	}
	period.Version = 1
	period.CreatedAt = now
	period.UpdatedAt = now
	period.CreatedBy = caller.operator()
	period.UpdatedBy = caller.operator()

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		existing, err := tx.Period.ListForUpdate(ctx, model.NonTerminalPeriodStatuses)
		if err != nil {
			return err
		}
		if conflicts := FindConflicts(existing, start, end, ""); len(conflicts) > 0 {
			return &ConflictError{Reason: "周期窗口与现有周期重叠", Periods: conflicts}
		}
		return tx.Period.Create(ctx, period)
	})
	if err != nil {
		return nil, s.mapWriteError(ctx, err, start, end, "", "创建周期失败")
	}

	// GetByID 内的对账会立即激活窗口已覆盖当前时间的新周期
	return s.GetByID(ctx, period.PeriodID)
}

// ────────────────────── GetByID ──────────────────────

func (s *periodService) GetByID(ctx context.Context, id string) (*dto.PeriodResponse, error) {
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	period, err := s.loadPeriod(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return toPeriodResponse(period), nil
}

// ────────────────────── GetCurrent ──────────────────────

func (s *periodService) GetCurrent(ctx context.Context) (*dto.PeriodResponse, error) {
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	period, err := s.repo.Period.GetActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActivePeriod
		}
		s.logger.Error("查询当前周期失败", zap.Error(err))
		return nil, err
	}
	return toPeriodResponse(period), nil
}

// ────────────────────── List ──────────────────────

func (s *periodService) List(ctx context.Context, req *dto.PeriodListRequest) ([]dto.PeriodResponse, error) {
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	var filter repository.PeriodFilter
	if req != nil && req.Status != "" {
		filter.Statuses = []string{req.Status}
	}
	periods, err := s.repo.Period.List(ctx, filter)
	if err != nil {
		s.logger.Error("列出周期失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.PeriodResponse, 0, len(periods))
	for i := range periods {
		result = append(result, *toPeriodResponse(&periods[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *periodService) Update(ctx context.Context, id string, req *dto.UpdatePeriodRequest, caller Caller) (*dto.PeriodResponse, error) {
	if err := caller.require(CapManagePeriods); err != nil {
		return nil, err
	}
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var windowChanged bool
	var canceledIDs []string
	var start, end time.Time

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		p, err := s.loadPeriod(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Version != nil && *req.Version != p.Version {
			return ErrPeriodVersion
		}
		if p.IsTerminal() {
			return ErrPeriodTerminal
		}
		before := *p

		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}

		start, end = p.StartsAt, p.EndsAt
		if req.StartsAt != nil {
			if start, err = parseInstant("starts_at", *req.StartsAt, s.loc, false); err != nil {
				return err
			}
		}
		if req.EndsAt != nil {
			if end, err = parseInstant("ends_at", *req.EndsAt, s.loc, true); err != nil {
				return err
			}
		}
		if !start.Equal(before.StartsAt) || !end.Equal(before.EndsAt) {
			if !end.After(start) {
				return ErrPeriodWindowInvalid
			}
			if p.Status == model.PeriodActive && (now.Before(start) || now.After(end)) {
				return ErrPeriodOutsideWindow
			}
			others, err := tx.Period.ListForUpdate(ctx, model.NonTerminalPeriodStatuses)
			if err != nil {
				return err
			}
			if conflicts := FindConflicts(others, start, end, p.PeriodID); len(conflicts) > 0 {
				return &ConflictError{Reason: "调整后的窗口与其他周期重叠", Periods: conflicts}
			}
			p.StartsAt, p.EndsAt = start, end
			windowChanged = true
		}

		if req.Status != nil && *req.Status != p.Status {
			if err := s.canTransition(ctx, tx, p, *req.Status, now); err != nil {
				return err
			}
			if *req.Status == model.PeriodCanceled {
				if canceledIDs, err = tx.Evaluation.CancelPendingByPeriod(ctx, p.PeriodID, now, caller.operator()); err != nil {
					return err
				}
			}
			reason := req.Reason
			if reason == "" {
				reason = "管理员手动变更"
			}
			if err := writeAudit(ctx, tx, model.PeriodStatusChange{
				PeriodID: p.PeriodID, From: before.Status, To: *req.Status, Reason: reason,
			}, caller.operator(), now); err != nil {
				return err
			}
			p.Status = *req.Status
		}

		p.UpdatedAt = now
		p.UpdatedBy = caller.operator()
		if err := tx.Period.Update(ctx, p); err != nil {
			return err
		}

		if windowChanged {
			return writeAudit(ctx, tx, model.PeriodWindowChange{
				PeriodID:  p.PeriodID,
				FromStart: before.StartsAt,
				FromEnd:   before.EndsAt,
				ToStart:   p.StartsAt,
				ToEnd:     p.EndsAt,
			}, caller.operator(), now)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapWriteError(ctx, err, start, end, id, "更新周期失败")
	}

	if err := s.afterEvaluationsCanceled(ctx, canceledIDs, now, caller); err != nil {
		return nil, err
	}
	if windowChanged {
		s.rescheduleByPeriodDeadline(ctx, id, caller)
	}
	return s.GetByID(ctx, id)
}

// ────────────────────── Cancel ──────────────────────

func (s *periodService) Cancel(ctx context.Context, id string, req *dto.CancelPeriodRequest, caller Caller) (*dto.PeriodResponse, error) {
	status := model.PeriodCanceled
	update := &dto.UpdatePeriodRequest{Status: &status}
	if req != nil {
		update.Reason = req.Reason
	}
	return s.Update(ctx, id, update, caller)
}

// ────────────────────── Delete ──────────────────────

func (s *periodService) Delete(ctx context.Context, id string, caller Caller) error {
	if err := caller.require(CapManagePeriods); err != nil {
		return err
	}
	if _, err := s.Reconcile(ctx); err != nil {
		return err
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := s.loadPeriod(ctx, tx, id); err != nil {
			return err
		}
		count, err := tx.Evaluation.CountByPeriod(ctx, id, "")
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrPeriodHasEvaluations
		}
		return tx.Period.Delete(ctx, id, caller.operator())
	})
	if err != nil {
		if isBusinessError(err) {
			return err
		}
		s.logger.Error("删除周期失败", zap.String("id", id), zap.Error(err))
		return err
	}

	s.logger.Info("周期已删除", zap.String("id", id), zap.String("operator", caller.UserID))
	return nil
}

// ────────────────────── Conflicts / Anomalies ──────────────────────

func (s *periodService) Conflicts(ctx context.Context, query *dto.PeriodConflictQuery) ([]dto.PeriodConflict, error) {
	start, end, err := s.parseWindow(query.StartsAt, query.EndsAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	periods, err := s.repo.Period.List(ctx, repository.PeriodFilter{Statuses: model.NonTerminalPeriodStatuses})
	if err != nil {
		s.logger.Error("查询周期失败", zap.Error(err))
		return nil, err
	}
	return toPeriodConflicts(FindConflicts(periods, start, end, query.ExcludeID)), nil
}

func (s *periodService) Anomalies(ctx context.Context) ([]dto.PeriodAnomaly, error) {
	result, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return result.Anomalies, nil
}

// ── 内部辅助 ──

func (s *periodService) parseWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := parseInstant("starts_at", startRaw, s.loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseInstant("ends_at", endRaw, s.loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, ErrPeriodWindowInvalid
	}
	return start, end, nil
}

func (s *periodService) loadPeriod(ctx context.Context, repo *repository.Repository, id string) (*model.Period, error) {
	period, err := repo.Period.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		s.logger.Error("查询周期失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return period, nil
}

// mapWriteError 将存储层约束冲突转换为业务错误；数据库排他约束命中时重新计算冲突集合
func (s *periodService) mapWriteError(ctx context.Context, err error, start, end time.Time, selfID, msg string) error {
	switch {
	case isBusinessError(err):
		return err
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		return ErrPeriodVersion
	case errors.Is(err, pkgerrors.ErrPeriodOverlap):
		conflict := &ConflictError{Reason: "周期窗口与现有周期重叠"}
		if periods, listErr := s.repo.Period.List(ctx, repository.PeriodFilter{Statuses: model.NonTerminalPeriodStatuses}); listErr == nil {
			conflict.Periods = FindConflicts(periods, start, end, selfID)
		}
		return conflict
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// uq_periods_single_active
		return &ConflictError{Reason: "已有进行中的周期"}
	}
	s.logger.Error(msg, zap.Error(err))
	return err
}

// afterEvaluationsCanceled 周期取消后清理被连带取消的评估的提醒与未读通知
func (s *periodService) afterEvaluationsCanceled(ctx context.Context, ids []string, now time.Time, caller Caller) error {
	for _, id := range ids {
		if _, err := s.repo.Notification.MarkReadByEvaluation(ctx, id, now); err != nil {
			s.logger.Error("清理评估通知失败", zap.String("evaluation_id", id), zap.Error(err))
			return err
		}
		if s.reminders != nil {
			if _, err := s.reminders.RescheduleEvaluation(ctx, id, caller); err != nil {
				return err
			}
		}
	}
	return nil
}

// rescheduleByPeriodDeadline 周期窗口变化后，以周期结束时间为截止的待完成评估需要重建提醒
func (s *periodService) rescheduleByPeriodDeadline(ctx context.Context, periodID string, caller Caller) {
	if s.reminders == nil {
		return
	}
	pending, _, err := s.repo.Evaluation.List(ctx, repository.EvaluationFilter{
		PeriodID: periodID,
		Status:   model.EvaluationPending,
	}, repository.Page{})
	if err != nil {
		s.logger.Error("查询待完成评估失败", zap.String("period_id", periodID), zap.Error(err))
		return
	}
	for _, e := range pending {
		if e.DueDate != nil {
			continue
		}
		if _, err := s.reminders.RescheduleEvaluation(ctx, e.EvaluationID, caller); err != nil {
			s.logger.Warn("重建评估提醒失败", zap.String("evaluation_id", e.EvaluationID), zap.Error(err))
		}
	}
}

// isBusinessError 已分类的业务错误直接透传
func isBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrFatalConfig)
}

func toPeriodResponse(p *model.Period) *dto.PeriodResponse {
	return &dto.PeriodResponse{
		ID:          p.PeriodID,
		Name:        p.Name,
		Description: p.Description,
		StartsAt:    formatTime(p.StartsAt),
		EndsAt:      formatTime(p.EndsAt),
		Status:      p.Status,
		Version:     p.Version,
		CreatedBy:   derefString(p.CreatedBy),
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func toPeriodConflict(p *model.Period) dto.PeriodConflict {
	return dto.PeriodConflict{
		ID:       p.PeriodID,
		Name:     p.Name,
		StartsAt: formatTime(p.StartsAt),
		EndsAt:   formatTime(p.EndsAt),
		Status:   p.Status,
	}
}

func toPeriodConflicts(periods []model.Period) []dto.PeriodConflict {
	result := make([]dto.PeriodConflict, 0, len(periods))
	for i := range periods {
		result = append(result, toPeriodConflict(&periods[i]))
	}
	return result
}
