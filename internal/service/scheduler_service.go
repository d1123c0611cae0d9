package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/repository"
)

// ── 调度器业务错误 ──

var (
	ErrSchedulerRunning = newError(ErrConflict, "调度器已在运行")
	ErrSchedulerStopped = newError(ErrConflict, "调度器未运行")
)

// sweepLockKey 多实例部署时周期性扫描的互斥键
const sweepLockKey = "scheduler:sweep"

// Locker 分布式互斥；未获得锁时 ok 为 false
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// SchedulerOptions 调度器运行参数
type SchedulerOptions struct {
	InstanceID   string
	TickInterval time.Duration
	LockTTL      time.Duration
	RetainDays   int // 已读通知保留天数
}

// SchedulerService 提醒调度器：生命周期由宿主进程持有，不存在全局实例
type SchedulerService interface {
	Start(caller Caller) error
	// Stop 只停止后续的周期扫描，不中断正在进行的投递
	Stop(caller Caller) error
	// Shutdown 停止调度并等待当前扫描结束（进程退出时调用）
	Shutdown(ctx context.Context) error
	// Sweep 立即执行一次扫描，忽略 ativo 开关
	Sweep(ctx context.Context, caller Caller) (*dto.SweepReport, error)
	Status(ctx context.Context, caller Caller) (*dto.SchedulerStatusResponse, error)
}

type schedulerService struct {
	repo          *repository.Repository
	periods       periodReconciler
	configs       ReminderConfigService
	planner       *reminderPlanner
	delivery      *reminderDelivery
	notifications NotificationService
	locker        Locker // 可为 nil：单实例部署
	clock         clock.Clock
	opts          SchedulerOptions
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// 同一进程内扫描串行执行
	sweepMu sync.Mutex

	reportMu    sync.RWMutex
	lastReport  *dto.SweepReport
	lastSweepAt time.Time
}

func newSchedulerService(
	repo *repository.Repository,
	periods periodReconciler,
	configs ReminderConfigService,
	planner *reminderPlanner,
	delivery *reminderDelivery,
	notifications NotificationService,
	locker Locker,
	clk clock.Clock,
	opts SchedulerOptions,
	logger *zap.Logger,
) *schedulerService {
	return &schedulerService{
		repo:          repo,
		periods:       periods,
		configs:       configs,
		planner:       planner,
		delivery:      delivery,
		notifications: notifications,
		locker:        locker,
		clock:         clk,
		opts:          opts,
		logger:        logger,
	}
}

// ────────────────────── Start / Stop ──────────────────────

func (s *schedulerService) Start(caller Caller) error {
	if err := caller.require(CapOperateScheduler); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("调度器已启动",
		zap.String("instance_id", s.opts.InstanceID),
		zap.Duration("tick_interval", s.opts.TickInterval),
	)
	return nil
}

func (s *schedulerService) Stop(caller Caller) error {
	if err := caller.require(CapOperateScheduler); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrSchedulerStopped
	}
	s.cancel()
	s.running = false
	s.logger.Info("调度器已停止", zap.String("instance_id", s.opts.InstanceID))
	return nil
}

func (s *schedulerService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.cancel()
		s.running = false
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待调度扫描结束超时: %w", ctx.Err())
	}
}

func (s *schedulerService) loop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick 周期性扫描：ativo 关闭时跳过；配置了分布式锁时只有持锁实例执行
func (s *schedulerService) tick(ctx context.Context) {
	cfg, err := s.configs.Current(ctx)
	if err != nil {
		s.logger.Error("读取提醒配置失败，跳过本次扫描", zap.Error(err))
		return
	}
	if !cfg.Enabled {
		s.logger.Debug("提醒调度未启用，跳过本次扫描")
		return
	}

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.opts.LockTTL)
		switch {
		case err != nil:
			// 认领机制仍保证不重复发送
			s.logger.Warn("获取扫描锁失败，按单实例继续", zap.Error(err))
		case !ok:
			s.logger.Debug("其他实例正在扫描，跳过")
			return
		default:
			defer unlock()
		}
	}

	s.runSweep(ctx, false)
}

// ────────────────────── Sweep ──────────────────────

func (s *schedulerService) Sweep(ctx context.Context, caller Caller) (*dto.SweepReport, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, err
	}
	return s.runSweep(ctx, true), nil
}

// runSweep 对账 → 生成提醒 → 投递到期提醒 → 生成通知 → 清理已读通知
// 单步失败记录在报告中，不阻止后续步骤
func (s *schedulerService) runSweep(ctx context.Context, forced bool) *dto.SweepReport {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := s.clock.Now()
	report := &dto.SweepReport{Forced: forced, StartedAt: formatTime(started)}
	fail := func(step string, err error) {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", step, err))
		s.logger.Error("调度扫描步骤失败", zap.String("step", step), zap.Error(err))
	}

	if rec, err := s.periods.Reconcile(ctx); err != nil {
		fail("reconcile", err)
	} else {
		report.Reconciled = rec.Changed
		report.Anomalies = len(rec.Anomalies)
	}

	if pending, err := s.repo.Evaluation.ListPending(ctx); err != nil {
		fail("generate", err)
	} else if report.Created, err = s.planner.generate(ctx, pending); err != nil {
		fail("generate", err)
	}

	var err error
	if report.Sent, report.Failed, report.Skipped, err = s.delivery.deliverDue(ctx); err != nil {
		fail("deliver", err)
	}

	if report.Notifications, err = s.notifications.Generate(ctx); err != nil {
		fail("notify", err)
	}

	if report.Purged, err = s.notifications.Cleanup(ctx, s.opts.RetainDays, SystemCaller()); err != nil {
		fail("cleanup", err)
	}

	finished := s.clock.Now()
	report.FinishedAt = formatTime(finished)

	s.reportMu.Lock()
	s.lastReport = report
	s.lastSweepAt = finished
	s.reportMu.Unlock()

	s.logger.Info("调度扫描完成",
		zap.Bool("forced", forced),
		zap.Int("reconciled", report.Reconciled),
		zap.Int("created", report.Created),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("notifications", report.Notifications),
		zap.Int("errors", len(report.Errors)),
	)
	return report
}

// ────────────────────── Status ──────────────────────

func (s *schedulerService) Status(ctx context.Context, caller Caller) (*dto.SchedulerStatusResponse, error) {
	if err := caller.require(CapOperateScheduler); err != nil {
		return nil, err
	}
	cfg, err := s.configs.Current(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	resp := &dto.SchedulerStatusResponse{
		Running:      running,
		Active:       cfg.Enabled,
		InstanceID:   s.opts.InstanceID,
		TickInterval: s.opts.TickInterval.String(),
	}

	s.reportMu.RLock()
	if s.lastReport != nil {
		report := *s.lastReport
		resp.LastReport = &report
		resp.LastSweepAt = formatTime(s.lastSweepAt)
	}
	s.reportMu.RUnlock()
	return resp, nil
}
