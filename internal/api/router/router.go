package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"koerner360/backend/config"
	"koerner360/backend/internal/api/handler"
	"koerner360/backend/internal/api/middleware"
	"koerner360/backend/internal/model"
	"koerner360/backend/pkg/jwt"
	"koerner360/backend/pkg/redis"
)

// icsUploadLimit ICS 上传单独放宽的请求体上限
const icsUploadLimit = 5 << 20

// Setup 初始化并返回 Gin 路由引擎；rdb 为 nil 时限流与 Token 黑名单降级关闭
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimit, map[string]int64{
		"/api/v1/holidays/import": icsUploadLimit,
	}))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	elevated := middleware.RoleAuth(model.RoleAdmin, model.RoleGestor)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, rdb, logger))
	v1.Use(middleware.RateLimit(rdb, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window, logger))
	{
		// 评估周期
		periods := v1.Group("/periods")
		{
			periods.GET("", h.Period.ListPeriods)
			periods.GET("/current", h.Period.GetCurrentPeriod)
			periods.GET("/conflicts", h.Period.CheckConflicts)
			periods.GET("/anomalies", elevated, h.Period.ListAnomalies)
			periods.POST("/reconcile", elevated, h.Period.Reconcile)
			periods.GET("/:id", h.Period.GetPeriod)
			periods.POST("", elevated, h.Period.CreatePeriod)
			periods.PUT("/:id", elevated, h.Period.UpdatePeriod)
			periods.PUT("/:id/cancel", elevated, h.Period.CancelPeriod)
			periods.DELETE("/:id", elevated, h.Period.DeletePeriod)
		}

		// 评估（可见范围与编辑权限由 Service 层按调用者判断）
		evaluations := v1.Group("/evaluations")
		{
			evaluations.GET("", h.Evaluation.ListEvaluations)
			evaluations.GET("/:id", h.Evaluation.GetEvaluation)
			evaluations.POST("", h.Evaluation.CreateEvaluation)
			evaluations.POST("/assign", elevated, h.Evaluation.AssignEvaluation)
			evaluations.PUT("/:id", h.Evaluation.UpdateEvaluation)
			evaluations.PUT("/:id/cancel", elevated, h.Evaluation.CancelEvaluation)
			evaluations.DELETE("/:id", elevated, h.Evaluation.DeleteEvaluation)
		}

		// 提醒运维视图
		reminders := v1.Group("/reminders", elevated)
		{
			reminders.GET("", h.Reminder.ListReminders)
			reminders.POST("/:id/resend", h.Reminder.ResendReminder)
			reminders.PUT("/:id/reschedule", h.Reminder.RescheduleReminder)
			reminders.POST("/evaluations/:id/reschedule", h.Reminder.RescheduleEvaluation)
			reminders.DELETE("/purge", h.Reminder.PurgeReminders)
		}

		// 调度器与提醒配置
		scheduler := v1.Group("/scheduler", elevated)
		{
			scheduler.GET("/status", h.Scheduler.GetStatus)
			scheduler.POST("/start", h.Scheduler.Start)
			scheduler.POST("/stop", h.Scheduler.Stop)
			scheduler.POST("/sweep", h.Scheduler.Sweep)
			scheduler.GET("/config", h.Scheduler.GetConfig)
			scheduler.PUT("/config", h.Scheduler.UpdateConfig)
		}

		// 通知（当前用户）
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.Notification.ListNotifications)
			notifications.GET("/unread-count", h.Notification.UnreadCount)
			notifications.PUT("/read-all", h.Notification.MarkAllRead)
			notifications.PUT("/:id/read", h.Notification.MarkRead)
			notifications.DELETE("/cleanup", elevated, h.Notification.Cleanup)
		}

		// 节假日
		holidays := v1.Group("/holidays")
		{
			holidays.GET("", h.Holiday.ListHolidays)
			holidays.POST("", elevated, h.Holiday.AddHoliday)
			holidays.POST("/import", elevated, h.Holiday.ImportHolidays)
			holidays.DELETE("/:id", elevated, h.Holiday.DeleteHoliday)
		}
	}

	return r
}
