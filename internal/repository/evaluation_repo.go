package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"koerner360/backend/internal/model"
)

// EvaluationFilter 评估列表过滤条件
type EvaluationFilter struct {
	PeriodID    string
	EvaluatorID string
	EvaluatedID string
	Status      string
}

// EvaluationRepository 评估数据访问接口
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *model.Evaluation) error
	GetByID(ctx context.Context, id string) (*model.Evaluation, error)
	GetByTriple(ctx context.Context, evaluatorID, evaluatedID, periodID string) (*model.Evaluation, error)
	List(ctx context.Context, filter EvaluationFilter, page Page) ([]model.Evaluation, int64, error)
	// ListPending 列出所有 PENDING 评估并预加载所属周期（调度器与通知生成使用）
	ListPending(ctx context.Context) ([]model.Evaluation, error)
	CountByPeriod(ctx context.Context, periodID string, status string) (int64, error)
	Update(ctx context.Context, evaluation *model.Evaluation) error
	// CancelPendingByPeriod 周期取消时批量取消其下 PENDING 评估，返回受影响的评估 ID
	CancelPendingByPeriod(ctx context.Context, periodID string, at time.Time, operatorID *string) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type evaluationRepo struct {
	db *gorm.DB
}

// NewEvaluationRepo 创建 EvaluationRepository 实例
func NewEvaluationRepo(db *gorm.DB) EvaluationRepository {
	return &evaluationRepo{db: db}
}

func (r *evaluationRepo) Create(ctx context.Context, evaluation *model.Evaluation) error {
	return r.db.WithContext(ctx).Omit("Period").Create(evaluation).Error
}

func (r *evaluationRepo) GetByID(ctx context.Context, id string) (*model.Evaluation, error) {
	var evaluation model.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Period").
		Where("evaluation_id = ?", id).
		First(&evaluation).Error
	if err != nil {
		return nil, err
	}
	return &evaluation, nil
}

func (r *evaluationRepo) GetByTriple(ctx context.Context, evaluatorID, evaluatedID, periodID string) (*model.Evaluation, error) {
	var evaluation model.Evaluation
	err := r.db.WithContext(ctx).
		Where("evaluator_id = ? AND evaluated_id = ? AND period_id = ?", evaluatorID, evaluatedID, periodID).
		First(&evaluation).Error
	if err != nil {
		return nil, err
	}
	return &evaluation, nil
}

func (r *evaluationRepo) List(ctx context.Context, filter EvaluationFilter, page Page) ([]model.Evaluation, int64, error) {
	var evaluations []model.Evaluation
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Evaluation{})
	if filter.PeriodID != "" {
		db = db.Where("period_id = ?", filter.PeriodID)
	}
	if filter.EvaluatorID != "" {
		db = db.Where("evaluator_id = ?", filter.EvaluatorID)
	}
	if filter.EvaluatedID != "" {
		db = db.Where("evaluated_id = ?", filter.EvaluatedID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := page.apply(db).
		Order("created_at DESC").
		Find(&evaluations).Error
	return evaluations, total, err
}

func (r *evaluationRepo) ListPending(ctx context.Context) ([]model.Evaluation, error) {
	var evaluations []model.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Period").
		Where("status = ?", model.EvaluationPending).
		Order("created_at ASC").
		Find(&evaluations).Error
	return evaluations, err
}

func (r *evaluationRepo) CountByPeriod(ctx context.Context, periodID string, status string) (int64, error) {
	var count int64
	db := r.db.WithContext(ctx).
		Model(&model.Evaluation{}).
		Where("period_id = ?", periodID)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	err := db.Count(&count).Error
	return count, err
}

func (r *evaluationRepo) Update(ctx context.Context, evaluation *model.Evaluation) error {
	return r.db.WithContext(ctx).
		Model(&model.Evaluation{}).
		Where("evaluation_id = ?", evaluation.EvaluationID).
		Updates(map[string]interface{}{
			"score":           evaluation.Score,
			"comment":         evaluation.Comment,
			"status":          evaluation.Status,
			"evaluation_date": evaluation.EvaluationDate,
			"due_date":        evaluation.DueDate,
			"updated_at":      evaluation.UpdatedAt,
			"updated_by":      evaluation.UpdatedBy,
		}).Error
}

func (r *evaluationRepo) CancelPendingByPeriod(ctx context.Context, periodID string, at time.Time, operatorID *string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Evaluation{}).
		Where("period_id = ? AND status = ?", periodID, model.EvaluationPending).
		Pluck("evaluation_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return ids, err
	}

	err = r.db.WithContext(ctx).
		Model(&model.Evaluation{}).
		Where("evaluation_id IN ? AND status = ?", ids, model.EvaluationPending).
		Updates(map[string]interface{}{
			"status":     model.EvaluationCanceled,
			"updated_at": at,
			"updated_by": operatorID,
		}).Error
	return ids, err
}

func (r *evaluationRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("evaluation_id = ?", id).
		Delete(&model.Evaluation{}).Error
}
