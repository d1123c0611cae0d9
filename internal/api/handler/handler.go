package handler

import "koerner360/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Period       *PeriodHandler
	Evaluation   *EvaluationHandler
	Reminder     *ReminderHandler
	Scheduler    *SchedulerHandler
	Notification *NotificationHandler
	Holiday      *HolidayHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Period:       NewPeriodHandler(svc.Period),
		Evaluation:   NewEvaluationHandler(svc.Evaluation),
		Reminder:     NewReminderHandler(svc.Reminder),
		Scheduler:    NewSchedulerHandler(svc.Scheduler, svc.ReminderConfig),
		Notification: NewNotificationHandler(svc.Notification),
		Holiday:      NewHolidayHandler(svc.Holiday),
	}
}
