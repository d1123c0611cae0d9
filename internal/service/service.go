package service

import (
	"fmt"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"koerner360/backend/config"
	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/mail"
	"koerner360/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Period         PeriodService
	Evaluation     EvaluationService
	Reminder       ReminderService
	ReminderConfig ReminderConfigService
	Notification   NotificationService
	Scheduler      SchedulerService
	Holiday        HolidayService
}

// NewService 创建 Service 聚合；locker 为 nil 时调度器按单实例运行
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	mailer mail.Transport,
	locker Locker,
	clk clock.Clock,
	logger *zap.Logger,
) (*Service, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("加载调度时区失败: %w", err)
	}
	instanceID := xid.New().String()

	configs := NewReminderConfigService(repo, cfg.Scheduler.Defaults, clk, logger.Named("reminder_config"))
	planner := newReminderPlanner(repo, configs, clk, loc, logger.Named("reminder"))
	delivery := newReminderDelivery(repo, mailer, clk, loc, DeliveryOptions{
		InstanceID:  instanceID,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		ClaimLease:  cfg.Scheduler.ClaimLease,
		Timeout:     cfg.Mail.Timeout,
		BaseURL:     cfg.Server.BaseURL,
	}, logger.Named("delivery"))
	reminders := newReminderService(repo, planner, delivery, clk, loc, logger.Named("reminder"))

	periods := NewPeriodService(repo, clk, loc, reminders, logger.Named("period"))
	notifications := NewNotificationService(repo, clk, loc,
		UrgencyPolicyFrom(cfg.Scheduler.Urgency), cfg.Server.BaseURL, logger.Named("notification"))
	evaluations := NewEvaluationService(repo, periods, reminders, clk, loc, logger.Named("evaluation"))

	scheduler := newSchedulerService(repo, periods, configs, planner, delivery, notifications, locker, clk, SchedulerOptions{
		InstanceID:   instanceID,
		TickInterval: cfg.Scheduler.TickInterval,
		LockTTL:      cfg.Scheduler.LockTTL,
		RetainDays:   cfg.Scheduler.NotificationRetainDays,
	}, logger.Named("scheduler"))

	return &Service{
		Period:         periods,
		Evaluation:     evaluations,
		Reminder:       reminders,
		ReminderConfig: configs,
		Notification:   notifications,
		Scheduler:      scheduler,
		Holiday:        NewHolidayService(repo, clk, loc, logger.Named("holiday")),
	}, nil
}
