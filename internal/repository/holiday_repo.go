package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"koerner360/backend/internal/model"
)

// HolidayRepository 节假日数据访问接口
type HolidayRepository interface {
	// CreateIfAbsent 同一日期已存在时跳过，返回是否新建
	CreateIfAbsent(ctx context.Context, holiday *model.Holiday) (bool, error)
	List(ctx context.Context, fromDate, toDate string) ([]model.Holiday, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type holidayRepo struct {
	db *gorm.DB
}

// NewHolidayRepo 创建 HolidayRepository 实例
func NewHolidayRepo(db *gorm.DB) HolidayRepository {
	return &holidayRepo{db: db}
}

func (r *holidayRepo) CreateIfAbsent(ctx context.Context, holiday *model.Holiday) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(holiday)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List 按日期区间（含端点，格式 2006-01-02）列出节假日；参数为空表示不限
func (r *holidayRepo) List(ctx context.Context, fromDate, toDate string) ([]model.Holiday, error) {
	var holidays []model.Holiday
	db := r.db.WithContext(ctx)
	if fromDate != "" {
		db = db.Where("date >= ?", fromDate)
	}
	if toDate != "" {
		db = db.Where("date <= ?", toDate)
	}
	err := db.Order("date ASC").Find(&holidays).Error
	return holidays, err
}

func (r *holidayRepo) Delete(ctx context.Context, id string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("holiday_id = ?", id).
		Delete(&model.Holiday{})
	return result.RowsAffected, result.Error
}
