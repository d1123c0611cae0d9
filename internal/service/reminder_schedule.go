package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"koerner360/backend/internal/clock"
	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
)

// ── 提醒时间计算 ──

// reminderCandidate 某一提前天数对应的提醒时刻（已按工作日顺延）
type reminderCandidate struct {
	typ    string
	offset int
	at     time.Time
	date   string // 调度时区下的日历日
}

// schedulePolicy 由提醒配置与节假日表构造的排期规则
type schedulePolicy struct {
	offsets         []int
	hour, minute    int
	includeWeekends bool
	includeHolidays bool
	holidays        map[string]bool
	loc             *time.Location
}

func newSchedulePolicy(cfg *model.ReminderConfig, holidays []model.Holiday, loc *time.Location) (schedulePolicy, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(cfg.SendTime, "%d:%d", &hour, &minute); err != nil {
		return schedulePolicy{}, &FatalConfigError{Field: "horario_envio", Reason: err.Error()}
	}
	p := schedulePolicy{
		offsets:         cfg.DaysBefore.Normalized(),
		hour:            hour,
		minute:          minute,
		includeWeekends: cfg.IncludeWeekends,
		includeHolidays: cfg.IncludeHolidays,
		holidays:        make(map[string]bool, len(holidays)),
		loc:             loc,
	}
	for _, h := range holidays {
		p.holidays[h.Date] = true
	}
	return p, nil
}

// eligible 该日是否允许发送提醒
func (p schedulePolicy) eligible(day time.Time) bool {
	if !p.includeWeekends {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if !p.includeHolidays && p.holidays[day.Format(dateLayout)] {
		return false
	}
	return true
}

// candidates 计算截止时间对应的全部提醒时刻
// 不可发送的日期顺延到下一个可发送日；顺延越过截止日的候选被丢弃
func (p schedulePolicy) candidates(deadline time.Time) []reminderCandidate {
	d := deadline.In(p.loc)
	deadlineDay := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.loc)

	result := make([]reminderCandidate, 0, len(p.offsets))
	for _, offset := range p.offsets {
		day := deadlineDay.AddDate(0, 0, -offset)
		for !p.eligible(day) && !day.After(deadlineDay) {
			day = day.AddDate(0, 0, 1)
		}
		if day.After(deadlineDay) {
			continue
		}

		typ := model.ReminderTypeReminder
		if offset == 0 {
			typ = model.ReminderTypeDue
		}
		result = append(result, reminderCandidate{
			typ:    typ,
			offset: offset,
			at:     time.Date(day.Year(), day.Month(), day.Day(), p.hour, p.minute, 0, 0, p.loc),
			date:   day.Format(dateLayout),
		})
	}
	return result
}

// ── 提醒生成 ──

// reminderPlanner 为待完成评估生成当天的提醒记录
// 只创建候选日期等于调度时区“今天”的提醒，之后的提醒由后续扫描在当天创建
type reminderPlanner struct {
	repo    *repository.Repository
	configs ReminderConfigService
	clock   clock.Clock
	loc     *time.Location
	logger  *zap.Logger
}

func newReminderPlanner(repo *repository.Repository, configs ReminderConfigService, clk clock.Clock, loc *time.Location, logger *zap.Logger) *reminderPlanner {
	return &reminderPlanner{repo: repo, configs: configs, clock: clk, loc: loc, logger: logger}
}

// policy 读取当前配置与节假日表
func (p *reminderPlanner) policy(ctx context.Context) (schedulePolicy, error) {
	cfg, err := p.configs.Current(ctx)
	if err != nil {
		return schedulePolicy{}, err
	}
	var holidays []model.Holiday
	if !cfg.IncludeHolidays {
		if holidays, err = p.repo.Holiday.List(ctx, "", ""); err != nil {
			p.logger.Error("查询节假日失败", zap.Error(err))
			return schedulePolicy{}, err
		}
	}
	return newSchedulePolicy(cfg, holidays, p.loc)
}

// generate 为给定评估创建今天到期的提醒，返回新建数量；重复执行不会产生重复记录
func (p *reminderPlanner) generate(ctx context.Context, evaluations []model.Evaluation) (int, error) {
	if len(evaluations) == 0 {
		return 0, nil
	}
	policy, err := p.policy(ctx)
	if err != nil {
		return 0, err
	}

	now := p.clock.Now()
	today := now.In(p.loc).Format(dateLayout)
	created := 0
	for i := range evaluations {
		e := &evaluations[i]
		if e.Status != model.EvaluationPending {
			continue
		}
		deadline, ok := e.Deadline(nil)
		if !ok {
			continue
		}
		for _, c := range policy.candidates(deadline) {
			if c.date != today {
				continue
			}
			reminder := &model.Reminder{
				EvaluationID:  e.EvaluationID,
				UserID:        e.EvaluatorID,
				Type:          c.typ,
				ScheduledDate: c.date,
				ScheduledAt:   c.at.UTC(),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			ok, err := p.repo.Reminder.CreateIfAbsent(ctx, reminder)
			if err != nil {
				p.logger.Error("创建提醒失败", zap.String("evaluation_id", e.EvaluationID), zap.Error(err))
				return created, err
			}
			if ok {
				created++
				p.logger.Debug("提醒已创建",
					zap.String("evaluation_id", e.EvaluationID),
					zap.String("type", c.typ),
					zap.Int("offset", c.offset),
					zap.Time("scheduled_at", reminder.ScheduledAt),
				)
			}
		}
	}
	return created, nil
}
