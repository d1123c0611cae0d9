package dto

// ── 提醒与调度器 DTO ──

// ReminderListRequest 提醒列表查询参数（运维视图）
type ReminderListRequest struct {
	PaginationRequest
	EvaluationID string `form:"evaluation_id"`
	UserID       string `form:"user_id"`
	Sent         *bool  `form:"sent"`
	Failed       *bool  `form:"failed"`
}

// RescheduleReminderRequest 提醒改期请求
type RescheduleReminderRequest struct {
	ScheduledAt string `json:"scheduled_at" binding:"required"` // RFC3339
}

// PurgeRemindersRequest 清理已发送提醒
type PurgeRemindersRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=3650"`
}

// ReminderResponse 提醒响应
type ReminderResponse struct {
	ID            string `json:"id"`
	EvaluationID  string `json:"evaluation_id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledAt   string `json:"scheduled_at"`
	Sent          bool   `json:"sent"`
	SentAt        string `json:"sent_at,omitempty"`
	Attempts      int    `json:"attempts"`
	Failed        bool   `json:"failed"`
	LastError     string `json:"last_error,omitempty"`
	LastAttemptAt string `json:"last_attempt_at,omitempty"`
}

// RescheduleEvaluationResponse 评估提醒重建结果
type RescheduleEvaluationResponse struct {
	Deleted int64 `json:"deleted"`
	Created int   `json:"created"`
}

// SweepReport 一次扫描的执行结果
type SweepReport struct {
	Forced        bool     `json:"forced"`
	Reconciled    int      `json:"reconciled"`
	Anomalies     int      `json:"anomalies"`
	Created       int      `json:"created"`
	Sent          int      `json:"sent"`
	Failed        int      `json:"failed"`
	Skipped       int      `json:"skipped"`
	Notifications int      `json:"notifications"`
	Purged        int64    `json:"purged"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at"`
	Errors        []string `json:"errors,omitempty"`
}

// SchedulerStatusResponse 调度器状态
type SchedulerStatusResponse struct {
	Running      bool         `json:"running"`
	Active       bool         `json:"ativo"`
	InstanceID   string       `json:"instance_id"`
	TickInterval string       `json:"tick_interval"`
	LastSweepAt  string       `json:"last_sweep_at,omitempty"`
	LastReport   *SweepReport `json:"last_report,omitempty"`
}

// ── 提醒配置 ──

// ReminderConfigResponse 提醒配置响应
type ReminderConfigResponse struct {
	DiasAntecedencia   []int  `json:"dias_antecedencia"`
	HorarioEnvio       string `json:"horario_envio"`
	Ativo              bool   `json:"ativo"`
	IncluirFimDeSemana bool   `json:"incluir_fim_de_semana"`
	IncluirFeriados    bool   `json:"incluir_feriados"`
	UpdatedAt          string `json:"updated_at"`
}

// UpdateReminderConfigRequest 更新提醒配置请求（部分更新）
type UpdateReminderConfigRequest struct {
	DiasAntecedencia   []int   `json:"dias_antecedencia"`
	HorarioEnvio       *string `json:"horario_envio"`
	Ativo              *bool   `json:"ativo"`
	IncluirFimDeSemana *bool   `json:"incluir_fim_de_semana"`
	IncluirFeriados    *bool   `json:"incluir_feriados"`
}
