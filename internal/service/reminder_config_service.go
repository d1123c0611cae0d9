package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"koerner360/backend/config"
	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
)

// sendTimePattern 严格的 HH:mm（24 小时制）
var sendTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// maxDaysBefore 提前天数上限
const maxDaysBefore = 365

// ReminderConfigService 提醒配置业务接口
type ReminderConfigService interface {
	Get(ctx context.Context) (*dto.ReminderConfigResponse, error)
	Update(ctx context.Context, req *dto.UpdateReminderConfigRequest, caller Caller) (*dto.ReminderConfigResponse, error)
	// Current 读取生效配置，表为空时以启动配置初始化
	Current(ctx context.Context) (*model.ReminderConfig, error)
}

type reminderConfigService struct {
	repo     *repository.Repository
	defaults config.ReminderDefaults
	clock    clock.Clock
	logger   *zap.Logger
}

// NewReminderConfigService 创建 ReminderConfigService 实例
func NewReminderConfigService(
	repo *repository.Repository,
	defaults config.ReminderDefaults,
	clk clock.Clock,
	logger *zap.Logger,
) ReminderConfigService {
	return &reminderConfigService{repo: repo, defaults: defaults, clock: clk, logger: logger}
}

// ValidateReminderConfig 校验提醒配置；非法配置返回 *FatalConfigError，绝不静默生效
func ValidateReminderConfig(cfg *model.ReminderConfig) error {
	if !sendTimePattern.MatchString(cfg.SendTime) {
		return &FatalConfigError{Field: "horario_envio", Reason: fmt.Sprintf("%q 不是合法的 HH:mm 时间", cfg.SendTime)}
	}
	if len(cfg.DaysBefore) == 0 {
		return &FatalConfigError{Field: "dias_antecedencia", Reason: "至少需要一个提前天数"}
	}
	for _, d := range cfg.DaysBefore {
		if d < 0 || d > maxDaysBefore {
			return &FatalConfigError{Field: "dias_antecedencia", Reason: fmt.Sprintf("提前天数 %d 超出范围 0-%d", d, maxDaysBefore)}
		}
	}
	return nil
}

// ────────────────────── Current ──────────────────────

func (s *reminderConfigService) Current(ctx context.Context) (*model.ReminderConfig, error) {
	cfg, err := s.repo.ReminderConfig.Get(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询提醒配置失败", zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	initial := &model.ReminderConfig{
		DaysBefore:      model.IntArray(s.defaults.DaysBefore).Normalized(),
		SendTime:        s.defaults.SendTime,
		Enabled:         s.defaults.Enabled,
		IncludeWeekends: s.defaults.IncludeWeekends,
		IncludeHolidays: s.defaults.IncludeHolidays,
	}
	initial.CreatedAt = now
	initial.UpdatedAt = now
	if err := ValidateReminderConfig(initial); err != nil {
		return nil, err
	}
	if err := s.repo.ReminderConfig.InitIfAbsent(ctx, initial); err != nil {
		s.logger.Error("初始化提醒配置失败", zap.Error(err))
		return nil, err
	}
	s.logger.Info("提醒配置已按启动配置初始化")

	return s.repo.ReminderConfig.Get(ctx)
}

// ────────────────────── Get ──────────────────────

func (s *reminderConfigService) Get(ctx context.Context) (*dto.ReminderConfigResponse, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return toReminderConfigResponse(cfg), nil
}

// ────────────────────── Update ──────────────────────

func (s *reminderConfigService) Update(ctx context.Context, req *dto.UpdateReminderConfigRequest, caller Caller) (*dto.ReminderConfigResponse, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, err
	}
	cfg, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	before := *cfg
	before.DaysBefore = append(model.IntArray{}, cfg.DaysBefore...)

	if req.DiasAntecedencia != nil {
		cfg.DaysBefore = model.IntArray(req.DiasAntecedencia).Normalized()
	}
	if req.HorarioEnvio != nil {
		cfg.SendTime = *req.HorarioEnvio
	}
	if req.Ativo != nil {
		cfg.Enabled = *req.Ativo
	}
	if req.IncluirFimDeSemana != nil {
		cfg.IncludeWeekends = *req.IncluirFimDeSemana
	}
	if req.IncluirFeriados != nil {
		cfg.IncludeHolidays = *req.IncluirFeriados
	}
	if err := ValidateReminderConfig(cfg); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cfg.UpdatedAt = now
	cfg.UpdatedBy = caller.operator()

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ReminderConfig.Save(ctx, cfg); err != nil {
			return err
		}
		return writeAudit(ctx, tx, model.ConfigUpdated{Before: before, After: *cfg}, caller.operator(), now)
	})
	if err != nil {
		s.logger.Error("更新提醒配置失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("提醒配置已更新", zap.String("summary", summarizeConfig(cfg)))
	return toReminderConfigResponse(cfg), nil
}

func summarizeConfig(cfg *model.ReminderConfig) string {
	return fmt.Sprintf("dias_antecedencia=%v horario_envio=%s ativo=%t incluir_fim_de_semana=%t incluir_feriados=%t",
		[]int(cfg.DaysBefore), cfg.SendTime, cfg.Enabled, cfg.IncludeWeekends, cfg.IncludeHolidays)
}

func toReminderConfigResponse(cfg *model.ReminderConfig) *dto.ReminderConfigResponse {
	days := make([]int, len(cfg.DaysBefore))
	copy(days, cfg.DaysBefore)
	return &dto.ReminderConfigResponse{
		DiasAntecedencia:   days,
		HorarioEnvio:       cfg.SendTime,
		Ativo:              cfg.Enabled,
		IncluirFimDeSemana: cfg.IncludeWeekends,
		IncluirFeriados:    cfg.IncludeHolidays,
		UpdatedAt:          cfg.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
