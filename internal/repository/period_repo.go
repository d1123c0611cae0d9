package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"koerner360/backend/internal/model"
	pkgerrors "koerner360/backend/pkg/errors"
)

// PeriodFilter 周期列表过滤条件
type PeriodFilter struct {
	Statuses []string
}

// PeriodRepository 评估周期数据访问接口
type PeriodRepository interface {
	Create(ctx context.Context, period *model.Period) error
	GetByID(ctx context.Context, id string) (*model.Period, error)
	GetActive(ctx context.Context) (*model.Period, error)
	List(ctx context.Context, filter PeriodFilter) ([]model.Period, error)
	// ListForUpdate 在事务中按状态加行锁读取，供对账与激活使用
	ListForUpdate(ctx context.Context, statuses []string) ([]model.Period, error)
	Update(ctx context.Context, period *model.Period) error
	Delete(ctx context.Context, id string, deletedBy *string) error
}

type periodRepo struct {
	db *gorm.DB
}

// NewPeriodRepo 创建 PeriodRepository 实例
func NewPeriodRepo(db *gorm.DB) PeriodRepository {
	return &periodRepo{db: db}
}

// pgExclusionViolation PostgreSQL exclusion_violation 错误码
const pgExclusionViolation = "23P01"

// translateOverlap 将 ex_periods_overlap 排他约束冲突映射为 ErrPeriodOverlap
func translateOverlap(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return pkgerrors.ErrPeriodOverlap
	}
	return err
}

func (r *periodRepo) Create(ctx context.Context, period *model.Period) error {
	return translateOverlap(r.db.WithContext(ctx).Create(period).Error)
}

func (r *periodRepo) GetByID(ctx context.Context, id string) (*model.Period, error) {
	var period model.Period
	err := r.db.WithContext(ctx).
		Where("period_id = ?", id).
		First(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *periodRepo) GetActive(ctx context.Context) (*model.Period, error) {
	var period model.Period
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PeriodActive).
		First(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *periodRepo) List(ctx context.Context, filter PeriodFilter) ([]model.Period, error) {
	var periods []model.Period
	db := r.db.WithContext(ctx)
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	err := db.Order("starts_at DESC").Find(&periods).Error
	return periods, err
}

func (r *periodRepo) ListForUpdate(ctx context.Context, statuses []string) ([]model.Period, error) {
	var periods []model.Period
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status IN ?", statuses).
		Order("starts_at ASC").
		Find(&periods).Error
	return periods, err
}

// Update 乐观锁更新：version 不匹配时返回 ErrOptimisticLock
func (r *periodRepo) Update(ctx context.Context, period *model.Period) error {
	oldVersion := period.Version
	result := r.db.WithContext(ctx).
		Model(&model.Period{}).
		Where("period_id = ? AND version = ?", period.PeriodID, oldVersion).
		Updates(map[string]interface{}{
			"name":        period.Name,
			"description": period.Description,
			"starts_at":   period.StartsAt,
			"ends_at":     period.EndsAt,
			"status":      period.Status,
			"updated_at":  period.UpdatedAt,
			"updated_by":  period.UpdatedBy,
			"version":     oldVersion + 1,
		})
	if result.Error != nil {
		return translateOverlap(result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	period.Version = oldVersion + 1
	return nil
}

func (r *periodRepo) Delete(ctx context.Context, id string, deletedBy *string) error {
	return r.db.WithContext(ctx).
		Model(&model.Period{}).
		Where("period_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}
