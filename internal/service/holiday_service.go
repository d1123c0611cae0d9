package service

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
)

// ── 节假日模块业务错误 ──

var (
	ErrHolidayNotFound = newError(ErrNotFound, "节假日不存在")
	ErrHolidayExists   = newError(ErrConflict, "该日期已登记为节假日")
)

// HolidayService 节假日业务接口（提醒排期在 incluir_feriados=false 时跳过这些日期）
type HolidayService interface {
	List(ctx context.Context, req *dto.HolidayListRequest) ([]dto.HolidayResponse, error)
	Add(ctx context.Context, req *dto.CreateHolidayRequest, caller Caller) (*dto.HolidayResponse, error)
	Delete(ctx context.Context, id string, caller Caller) error
	// Import 从 ICS 内容批量导入，已存在的日期跳过
	Import(ctx context.Context, reader io.Reader, caller Caller) (*dto.ImportHolidaysResponse, error)
	// ImportURL 从 ICS 订阅地址导入（支持 webcal://）
	ImportURL(ctx context.Context, rawURL string, caller Caller) (*dto.ImportHolidaysResponse, error)
}

type holidayService struct {
	repo   *repository.Repository
	clock  clock.Clock
	loc    *time.Location
	logger *zap.Logger
}

// NewHolidayService 创建 HolidayService 实例
func NewHolidayService(repo *repository.Repository, clk clock.Clock, loc *time.Location, logger *zap.Logger) HolidayService {
	return &holidayService{repo: repo, clock: clk, loc: loc, logger: logger}
}

func (s *holidayService) List(ctx context.Context, req *dto.HolidayListRequest) ([]dto.HolidayResponse, error) {
	var from, to string
	if req != nil {
		from, to = strings.TrimSpace(req.From), strings.TrimSpace(req.To)
	}
	if err := validateDate("from", from); err != nil {
		return nil, err
	}
	if err := validateDate("to", to); err != nil {
		return nil, err
	}

	holidays, err := s.repo.Holiday.List(ctx, from, to)
	if err != nil {
		s.logger.Error("列出节假日失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.HolidayResponse, 0, len(holidays))
	for i := range holidays {
		result = append(result, toHolidayResponse(&holidays[i]))
	}
	return result, nil
}

func (s *holidayService) Add(ctx context.Context, req *dto.CreateHolidayRequest, caller Caller) (*dto.HolidayResponse, error) {
	if err := caller.require(CapManageHolidays); err != nil {
		return nil, err
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		return nil, invalid("date", "日期不能为空")
	}
	if err := validateDate("date", date); err != nil {
		return nil, err
	}

	holiday := &model.Holiday{
		Date:      date,
		Name:      strings.TrimSpace(req.Name),
		Source:    "manual",
		CreatedAt: s.clock.Now(),
	}
	created, err := s.repo.Holiday.CreateIfAbsent(ctx, holiday)
	if err != nil {
		s.logger.Error("新增节假日失败", zap.String("date", date), zap.Error(err))
		return nil, err
	}
	if !created {
		return nil, ErrHolidayExists
	}

	s.logger.Info("节假日已新增", zap.String("date", date), zap.String("operator", caller.UserID))
	resp := toHolidayResponse(holiday)
	return &resp, nil
}

func (s *holidayService) Delete(ctx context.Context, id string, caller Caller) error {
	if err := caller.require(CapManageHolidays); err != nil {
		return err
	}
	n, err := s.repo.Holiday.Delete(ctx, id)
	if err != nil {
		s.logger.Error("删除节假日失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrHolidayNotFound
	}
	return nil
}

func (s *holidayService) Import(ctx context.Context, reader io.Reader, caller Caller) (*dto.ImportHolidaysResponse, error) {
	if err := caller.require(CapManageHolidays); err != nil {
		return nil, err
	}
	holidays, err := ParseHolidayICS(reader, s.loc)
	if err != nil {
		return nil, invalid("file", err.Error())
	}

	now := s.clock.Now()
	resp := &dto.ImportHolidaysResponse{}
	for i := range holidays {
		h := holidays[i]
		h.CreatedAt = now
		created, err := s.repo.Holiday.CreateIfAbsent(ctx, &h)
		if err != nil {
			s.logger.Error("导入节假日失败", zap.String("date", h.Date), zap.Error(err))
			return resp, err
		}
		if created {
			resp.Imported++
		} else {
			resp.Skipped++
		}
	}

	s.logger.Info("节假日导入完成",
		zap.Int("imported", resp.Imported),
		zap.Int("skipped", resp.Skipped),
		zap.String("operator", caller.UserID),
	)
	return resp, nil
}

func (s *holidayService) ImportURL(ctx context.Context, rawURL string, caller Caller) (*dto.ImportHolidaysResponse, error) {
	if err := caller.require(CapManageHolidays); err != nil {
		return nil, err
	}
	body, err := FetchICSContent(ctx, rawURL)
	if err != nil {
		return nil, invalid("url", err.Error())
	}
	defer body.Close()
	return s.Import(ctx, body, caller)
}

func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return invalid(field, "日期格式无效，应为 YYYY-MM-DD")
	}
	return nil
}

func toHolidayResponse(h *model.Holiday) dto.HolidayResponse {
	return dto.HolidayResponse{
		ID:     h.HolidayID,
		Date:   h.Date,
		Name:   h.Name,
		Source: h.Source,
	}
}
