package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/mail"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
	pkgerrors "koerner360/backend/pkg/errors"
)

// dueBatchSize 单次扫描最多处理的到期提醒数
const dueBatchSize = 200

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeFailed
	outcomeSkipped // 评估已不再待处理，不投递
	outcomeBusy    // 已被其他实例认领
)

// DeliveryOptions 投递参数
type DeliveryOptions struct {
	InstanceID  string        // 认领者标识
	MaxAttempts int           // 达到后标记永久失败，退出自动重试
	ClaimLease  time.Duration // 认领租约，须大于单次投递超时
	Timeout     time.Duration // 单次投递超时
	BaseURL     string        // 邮件深链接前缀
}

// reminderDelivery 先认领再投递：认领是条件更新，保证多实例下同一提醒不会被重复发送
type reminderDelivery struct {
	repo   *repository.Repository
	mailer mail.Transport
	clock  clock.Clock
	loc    *time.Location
	opts   DeliveryOptions
	logger *zap.Logger
}

func newReminderDelivery(repo *repository.Repository, mailer mail.Transport, clk clock.Clock, loc *time.Location, opts DeliveryOptions, logger *zap.Logger) *reminderDelivery {
	return &reminderDelivery{repo: repo, mailer: mailer, clock: clk, loc: loc, opts: opts, logger: logger}
}

// deliverDue 投递所有到期且未发送的提醒
func (d *reminderDelivery) deliverDue(ctx context.Context) (sent, failed, skipped int, err error) {
	now := d.clock.Now()
	due, err := d.repo.Reminder.ListDue(ctx, now, now.Add(-d.opts.ClaimLease), dueBatchSize)
	if err != nil {
		d.logger.Error("查询到期提醒失败", zap.Error(err))
		return 0, 0, 0, err
	}

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		outcome, err := d.deliver(ctx, &due[i])
		if err != nil {
			d.logger.Error("提醒投递异常", zap.String("reminder_id", due[i].ReminderID), zap.Error(err))
			continue
		}
		switch outcome {
		case outcomeSent:
			sent++
		case outcomeFailed:
			failed++
		case outcomeSkipped:
			skipped++
		}
	}
	return sent, failed, skipped, nil
}

// deliver 认领并投递单条提醒；投递失败记录在提醒上，不作为错误返回
func (d *reminderDelivery) deliver(ctx context.Context, r *model.Reminder) (deliveryOutcome, error) {
	now := d.clock.Now()
	ok, err := d.repo.Reminder.Claim(ctx, r.ReminderID, d.opts.InstanceID, now, now.Add(-d.opts.ClaimLease))
	if err != nil {
		return 0, err
	}
	if !ok {
		return outcomeBusy, nil
	}

	// 停止调度器或请求结束都不应中断已开始的投递
	ctx = context.WithoutCancel(ctx)

	// 认领成功后重新读取，尝试次数以库中为准
	reminder, err := d.repo.Reminder.GetByID(ctx, r.ReminderID)
	if err != nil {
		return 0, err
	}

	evaluation, err := d.repo.Evaluation.GetByID(ctx, reminder.EvaluationID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		d.release(ctx, reminder)
		return 0, err
	}
	if evaluation == nil || evaluation.Status != model.EvaluationPending {
		msg := "评估已完成、取消或删除，停止投递"
		return outcomeSkipped, d.record(ctx, reminder, repository.AttemptResult{
			Attempts: reminder.Attempts,
			Failed:   true,
			Error:    &msg,
			At:       d.clock.Now(),
		})
	}

	attempts := reminder.Attempts + 1
	user, err := d.repo.User.GetByID(ctx, reminder.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		d.release(ctx, reminder)
		return 0, err
	}
	if user == nil || user.Status != model.UserActive || user.Email == "" {
		// 收件人无效不会自愈，直接标记永久失败
		msg := "收件人不存在、已停用或无邮箱"
		return outcomeFailed, d.record(ctx, reminder, repository.AttemptResult{
			Attempts: attempts,
			Failed:   true,
			Error:    &msg,
			At:       d.clock.Now(),
		})
	}

	subject, body := d.render(reminder, evaluation)
	sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	sendErr := d.mailer.Send(sendCtx, user.Email, subject, body)
	if sendErr != nil && sendCtx.Err() != nil && !errors.Is(sendErr, sendCtx.Err()) {
		// 传输层报告的 I/O 错误实为超时所致
		sendErr = fmt.Errorf("%w: %v", sendCtx.Err(), sendErr)
	}
	cancel()

	result := repository.AttemptResult{Attempts: attempts, At: d.clock.Now()}
	if sendErr == nil {
		result.Sent = true
		if err := d.record(ctx, reminder, result); err != nil {
			return 0, err
		}
		d.logger.Info("提醒已发送",
			zap.String("reminder_id", reminder.ReminderID),
			zap.String("evaluation_id", reminder.EvaluationID),
			zap.Int("attempts", attempts),
		)
		return outcomeSent, nil
	}

	failure := fmt.Errorf("%w: %v", ErrTransientDelivery, sendErr)
	if errors.Is(sendErr, context.DeadlineExceeded) {
		failure = fmt.Errorf("%w: 投递超时（%s）", ErrTransientDelivery, d.opts.Timeout)
	}
	msg := failure.Error()
	result.Error = &msg
	result.Failed = attempts >= d.opts.MaxAttempts
	if err := d.record(ctx, reminder, result); err != nil {
		return 0, err
	}

	d.logger.Warn("提醒投递失败",
		zap.String("reminder_id", reminder.ReminderID),
		zap.Int("attempts", attempts),
		zap.Bool("permanently_failed", result.Failed),
		zap.Error(sendErr),
	)
	return outcomeFailed, nil
}

// record 写入结果并释放认领
func (d *reminderDelivery) record(ctx context.Context, r *model.Reminder, result repository.AttemptResult) error {
	err := d.repo.Reminder.RecordAttempt(ctx, r.ReminderID, d.opts.InstanceID, result)
	if errors.Is(err, pkgerrors.ErrNotClaimed) {
		// 租约已过期且被其他实例接管
		d.logger.Warn("提醒认领已失效，结果未写入", zap.String("reminder_id", r.ReminderID))
		return nil
	}
	return err
}

// release 出现基础设施错误时释放认领，不计入尝试次数
func (d *reminderDelivery) release(ctx context.Context, r *model.Reminder) {
	err := d.repo.Reminder.RecordAttempt(ctx, r.ReminderID, d.opts.InstanceID, repository.AttemptResult{
		Attempts: r.Attempts,
		Failed:   r.Failed,
		Error:    r.LastError,
		At:       d.clock.Now(),
	})
	if err != nil && !errors.Is(err, pkgerrors.ErrNotClaimed) {
		d.logger.Error("释放提醒认领失败", zap.String("reminder_id", r.ReminderID), zap.Error(err))
	}
}

// render 生成邮件标题与正文
func (d *reminderDelivery) render(r *model.Reminder, e *model.Evaluation) (string, string) {
	deadline, _ := e.Deadline(nil)
	local := deadline.In(d.loc)
	periodName := ""
	if e.Period != nil {
		periodName = e.Period.Name
	}

	subject := "评估提醒：请在截止前完成评估"
	if r.Type == model.ReminderTypeDue {
		subject = "评估今日截止"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "您好，\n\n")
	if periodName != "" {
		fmt.Fprintf(&b, "您在评估周期「%s」中有一项待完成的评估。\n", periodName)
	} else {
		fmt.Fprintf(&b, "您有一项待完成的评估。\n")
	}
	fmt.Fprintf(&b, "截止时间：%s\n", local.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "立即处理：%s\n", evaluationLink(d.opts.BaseURL, e.EvaluationID))
	return subject, b.String()
}

// evaluationLink 评估详情深链接
func evaluationLink(baseURL, evaluationID string) string {
	return strings.TrimRight(baseURL, "/") + "/evaluations/" + evaluationID
}
