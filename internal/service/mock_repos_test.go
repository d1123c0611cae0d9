package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
	pkgerrors "koerner360/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) add(id, role, status string) {
	m.users[id] = &model.User{UserID: id, Name: id, Email: id + "@example.com", Role: role, Status: status}
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var result []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			result = append(result, *u)
		}
	}
	return result, nil
}

// ── Mock PeriodRepository ──

type mockPeriodRepo struct {
	periods map[string]*model.Period
	deleted map[string]bool
	seq     int
}

func newMockPeriodRepo() *mockPeriodRepo {
	return &mockPeriodRepo{periods: make(map[string]*model.Period), deleted: make(map[string]bool)}
}

// add 直接写入一个周期（绕过业务校验，用于构造场景）
func (m *mockPeriodRepo) add(id, name string, start, end time.Time, status string) *model.Period {
	p := &model.Period{PeriodID: id, Name: name, StartsAt: start, EndsAt: end, Status: status}
	p.Version = 1
	m.periods[id] = p
	return p
}

func (m *mockPeriodRepo) Create(_ context.Context, period *model.Period) error {
	if period.PeriodID == "" {
		m.seq++
		period.PeriodID = fmt.Sprintf("per-%d", m.seq)
	}
	cp := *period
	m.periods[period.PeriodID] = &cp
	return nil
}

func (m *mockPeriodRepo) GetByID(_ context.Context, id string) (*model.Period, error) {
	if p, ok := m.periods[id]; ok && !m.deleted[id] {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPeriodRepo) GetActive(_ context.Context) (*model.Period, error) {
	for id, p := range m.periods {
		if p.Status == model.PeriodActive && !m.deleted[id] {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPeriodRepo) List(_ context.Context, filter repository.PeriodFilter) ([]model.Period, error) {
	return m.list(filter.Statuses), nil
}

func (m *mockPeriodRepo) ListForUpdate(_ context.Context, statuses []string) ([]model.Period, error) {
	return m.list(statuses), nil
}

func (m *mockPeriodRepo) list(statuses []string) []model.Period {
	var result []model.Period
	for id, p := range m.periods {
		if m.deleted[id] {
			continue
		}
		if len(statuses) > 0 && !containsString(statuses, p.Status) {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartsAt.Before(result[j].StartsAt) })
	return result
}

func (m *mockPeriodRepo) Update(_ context.Context, period *model.Period) error {
	stored, ok := m.periods[period.PeriodID]
	if !ok || stored.Version != period.Version {
		return pkgerrors.ErrOptimisticLock
	}
	period.Version++
	cp := *period
	m.periods[period.PeriodID] = &cp
	return nil
}

func (m *mockPeriodRepo) Delete(_ context.Context, id string, _ *string) error {
	m.deleted[id] = true
	return nil
}

// ── Mock EvaluationRepository ──

type mockEvaluationRepo struct {
	evaluations map[string]*model.Evaluation
	periods     *mockPeriodRepo
	seq         int
}

func newMockEvaluationRepo(periods *mockPeriodRepo) *mockEvaluationRepo {
	return &mockEvaluationRepo{evaluations: make(map[string]*model.Evaluation), periods: periods}
}

// add 直接写入一个评估
func (m *mockEvaluationRepo) add(e *model.Evaluation) {
	cp := *e
	cp.Period = nil
	m.evaluations[e.EvaluationID] = &cp
}

func (m *mockEvaluationRepo) withPeriod(e model.Evaluation) model.Evaluation {
	if p, ok := m.periods.periods[e.PeriodID]; ok {
		cp := *p
		e.Period = &cp
	}
	return e
}

func (m *mockEvaluationRepo) Create(_ context.Context, evaluation *model.Evaluation) error {
	for _, e := range m.evaluations {
		if e.EvaluatorID == evaluation.EvaluatorID && e.EvaluatedID == evaluation.EvaluatedID && e.PeriodID == evaluation.PeriodID {
			return gorm.ErrDuplicatedKey
		}
	}
	if evaluation.EvaluationID == "" {
		m.seq++
		evaluation.EvaluationID = fmt.Sprintf("eval-%d", m.seq)
	}
	m.add(evaluation)
	return nil
}

func (m *mockEvaluationRepo) GetByID(_ context.Context, id string) (*model.Evaluation, error) {
	if e, ok := m.evaluations[id]; ok {
		cp := m.withPeriod(*e)
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEvaluationRepo) GetByTriple(_ context.Context, evaluatorID, evaluatedID, periodID string) (*model.Evaluation, error) {
	for _, e := range m.evaluations {
		if e.EvaluatorID == evaluatorID && e.EvaluatedID == evaluatedID && e.PeriodID == periodID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEvaluationRepo) List(_ context.Context, filter repository.EvaluationFilter, page repository.Page) ([]model.Evaluation, int64, error) {
	var result []model.Evaluation
	for _, e := range m.evaluations {
		if filter.PeriodID != "" && e.PeriodID != filter.PeriodID {
			continue
		}
		if filter.EvaluatorID != "" && e.EvaluatorID != filter.EvaluatorID {
			continue
		}
		if filter.EvaluatedID != "" && e.EvaluatedID != filter.EvaluatedID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EvaluationID < result[j].EvaluationID })
	total := int64(len(result))
	if page.Offset > 0 {
		if page.Offset >= len(result) {
			return nil, total, nil
		}
		result = result[page.Offset:]
	}
	if page.Limit > 0 && len(result) > page.Limit {
		result = result[:page.Limit]
	}
	return result, total, nil
}

func (m *mockEvaluationRepo) ListPending(_ context.Context) ([]model.Evaluation, error) {
	var result []model.Evaluation
	for _, e := range m.evaluations {
		if e.Status == model.EvaluationPending {
			result = append(result, m.withPeriod(*e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EvaluationID < result[j].EvaluationID })
	return result, nil
}

func (m *mockEvaluationRepo) CountByPeriod(_ context.Context, periodID string, status string) (int64, error) {
	var count int64
	for _, e := range m.evaluations {
		if e.PeriodID == periodID && (status == "" || e.Status == status) {
			count++
		}
	}
	return count, nil
}

func (m *mockEvaluationRepo) Update(_ context.Context, evaluation *model.Evaluation) error {
	if _, ok := m.evaluations[evaluation.EvaluationID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.add(evaluation)
	return nil
}

func (m *mockEvaluationRepo) CancelPendingByPeriod(_ context.Context, periodID string, at time.Time, operatorID *string) ([]string, error) {
	var ids []string
	for id, e := range m.evaluations {
		if e.PeriodID == periodID && e.Status == model.EvaluationPending {
			e.Status = model.EvaluationCanceled
			e.UpdatedAt = at
			e.UpdatedBy = operatorID
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockEvaluationRepo) Delete(_ context.Context, id string) error {
	delete(m.evaluations, id)
	return nil
}

// ── Mock ReminderRepository ──

type mockReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]*model.Reminder
	seq       int
}

func newMockReminderRepo() *mockReminderRepo {
	return &mockReminderRepo{reminders: make(map[string]*model.Reminder)}
}

func (m *mockReminderRepo) all() []model.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Reminder
	for _, r := range m.reminders {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return result
}

func (m *mockReminderRepo) CreateIfAbsent(_ context.Context, reminder *model.Reminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reminders {
		if r.EvaluationID == reminder.EvaluationID && r.UserID == reminder.UserID &&
			r.Type == reminder.Type && r.ScheduledDate == reminder.ScheduledDate {
			return false, nil
		}
	}
	if reminder.ReminderID == "" {
		m.seq++
		reminder.ReminderID = fmt.Sprintf("rem-%d", m.seq)
	}
	cp := *reminder
	m.reminders[reminder.ReminderID] = &cp
	return true, nil
}

func (m *mockReminderRepo) GetByID(_ context.Context, id string) (*model.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reminders[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockReminderRepo) List(_ context.Context, filter repository.ReminderFilter, _ repository.Page) ([]model.Reminder, int64, error) {
	var result []model.Reminder
	for _, r := range m.all() {
		if filter.EvaluationID != "" && r.EvaluationID != filter.EvaluationID {
			continue
		}
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.Sent != nil && r.Sent != *filter.Sent {
			continue
		}
		if filter.Failed != nil && r.Failed != *filter.Failed {
			continue
		}
		result = append(result, r)
	}
	return result, int64(len(result)), nil
}

func claimable(r *model.Reminder, staleBefore time.Time) bool {
	return r.ClaimedAt == nil || r.ClaimedAt.Before(staleBefore)
}

func (m *mockReminderRepo) ListDue(_ context.Context, now, staleBefore time.Time, limit int) ([]model.Reminder, error) {
	var result []model.Reminder
	for _, r := range m.all() {
		if r.Sent || r.Failed || r.ScheduledAt.After(now) || !claimable(&r, staleBefore) {
			continue
		}
		result = append(result, r)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *mockReminderRepo) Claim(_ context.Context, id, owner string, now, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Sent || r.Failed || !claimable(r, staleBefore) {
		return false, nil
	}
	o, at := owner, now
	r.ClaimedBy, r.ClaimedAt = &o, &at
	return true, nil
}

func (m *mockReminderRepo) RecordAttempt(_ context.Context, id, owner string, result repository.AttemptResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Sent || r.ClaimedBy == nil || *r.ClaimedBy != owner {
		return pkgerrors.ErrNotClaimed
	}
	at := result.At
	r.Attempts = result.Attempts
	r.Failed = result.Failed
	r.LastError = result.Error
	r.LastAttemptAt = &at
	r.ClaimedBy, r.ClaimedAt = nil, nil
	if result.Sent {
		r.Sent = true
		r.SentAt = &at
	}
	return nil
}

func (m *mockReminderRepo) DeleteFutureUnsent(_ context.Context, evaluationID string, after time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reminders {
		if r.EvaluationID == evaluationID && !r.Sent && r.ClaimedBy == nil && r.ScheduledAt.After(after) {
			delete(m.reminders, id)
			n++
		}
	}
	return n, nil
}

func (m *mockReminderRepo) Reschedule(_ context.Context, id string, at time.Time, scheduledDate string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Sent || r.ClaimedBy != nil {
		return pkgerrors.ErrNotClaimed
	}
	r.ScheduledAt = at
	r.ScheduledDate = scheduledDate
	r.Attempts = 0
	r.Failed = false
	r.LastError = nil
	r.UpdatedAt = now
	return nil
}

func (m *mockReminderRepo) PurgeSent(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reminders {
		if r.Sent && r.SentAt != nil && r.SentAt.Before(before) {
			delete(m.reminders, id)
			n++
		}
	}
	return n, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	notifications map[string]*model.Notification
	seq           int
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{notifications: make(map[string]*model.Notification)}
}

func (m *mockNotificationRepo) matches(n *model.Notification, userID string, filter repository.NotificationFilter) bool {
	if userID != "" && n.UserID != userID {
		return false
	}
	if filter.Type != "" && n.Type != filter.Type {
		return false
	}
	if filter.Urgency != "" && n.Urgency != filter.Urgency {
		return false
	}
	if filter.Status != "" && n.Status != filter.Status {
		return false
	}
	return true
}

func (m *mockNotificationRepo) CreateIfAbsent(_ context.Context, n *model.Notification) (bool, error) {
	for _, existing := range m.notifications {
		if existing.Status == model.NotificationUnread && existing.UserID == n.UserID &&
			existing.EvaluationID == n.EvaluationID && existing.Type == n.Type {
			return false, nil
		}
	}
	if n.NotificationID == "" {
		m.seq++
		n.NotificationID = fmt.Sprintf("ntf-%d", m.seq)
	}
	cp := *n
	m.notifications[n.NotificationID] = &cp
	return true, nil
}

func (m *mockNotificationRepo) ExistsUnread(_ context.Context, userID, evaluationID, typ string) (bool, error) {
	for _, n := range m.notifications {
		if n.Status == model.NotificationUnread && n.UserID == userID && n.EvaluationID == evaluationID && n.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	if n, ok := m.notifications[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) List(_ context.Context, userID string, filter repository.NotificationFilter, _ repository.Page) ([]model.Notification, int64, error) {
	var result []model.Notification
	for _, n := range m.notifications {
		if m.matches(n, userID, filter) {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].NotificationID < result[j].NotificationID })
	return result, int64(len(result)), nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && n.Status == model.NotificationUnread {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) markRead(n *model.Notification, at time.Time) {
	t := at
	n.Status = model.NotificationRead
	n.ReadAt = &t
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string, at time.Time) (int64, error) {
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID || n.Status != model.NotificationUnread {
		return 0, nil
	}
	m.markRead(n, at)
	return 1, nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID string, filter repository.NotificationFilter, at time.Time) (int64, error) {
	filter.Status = model.NotificationUnread
	var count int64
	for _, n := range m.notifications {
		if m.matches(n, userID, filter) {
			m.markRead(n, at)
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkReadByEvaluation(_ context.Context, evaluationID string, at time.Time) (int64, error) {
	var count int64
	for _, n := range m.notifications {
		if n.EvaluationID == evaluationID && n.Status == model.NotificationUnread {
			m.markRead(n, at)
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) PurgeRead(_ context.Context, before time.Time) (int64, error) {
	var count int64
	for id, n := range m.notifications {
		if n.Status == model.NotificationRead && n.ReadAt != nil && n.CreatedAt.Before(before) {
			delete(m.notifications, id)
			count++
		}
	}
	return count, nil
}

// ── Mock ReminderConfigRepository ──

type mockReminderConfigRepo struct {
	cfg *model.ReminderConfig
}

func newMockReminderConfigRepo() *mockReminderConfigRepo {
	return &mockReminderConfigRepo{}
}

func (m *mockReminderConfigRepo) Get(_ context.Context) (*model.ReminderConfig, error) {
	if m.cfg == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.cfg
	cp.DaysBefore = append(model.IntArray(nil), m.cfg.DaysBefore...)
	return &cp, nil
}

func (m *mockReminderConfigRepo) Save(_ context.Context, cfg *model.ReminderConfig) error {
	cp := *cfg
	cp.Singleton = true
	m.cfg = &cp
	return nil
}

func (m *mockReminderConfigRepo) InitIfAbsent(ctx context.Context, cfg *model.ReminderConfig) error {
	if m.cfg != nil {
		return nil
	}
	return m.Save(ctx, cfg)
}

// ── Mock HolidayRepository ──

type mockHolidayRepo struct {
	holidays map[string]*model.Holiday // key: date
	seq      int
}

func newMockHolidayRepo() *mockHolidayRepo {
	return &mockHolidayRepo{holidays: make(map[string]*model.Holiday)}
}

func (m *mockHolidayRepo) CreateIfAbsent(_ context.Context, holiday *model.Holiday) (bool, error) {
	if _, ok := m.holidays[holiday.Date]; ok {
		return false, nil
	}
	if holiday.HolidayID == "" {
		m.seq++
		holiday.HolidayID = fmt.Sprintf("hol-%d", m.seq)
	}
	cp := *holiday
	m.holidays[holiday.Date] = &cp
	return true, nil
}

func (m *mockHolidayRepo) List(_ context.Context, fromDate, toDate string) ([]model.Holiday, error) {
	var result []model.Holiday
	for _, h := range m.holidays {
		if fromDate != "" && h.Date < fromDate {
			continue
		}
		if toDate != "" && h.Date > toDate {
			continue
		}
		result = append(result, *h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func (m *mockHolidayRepo) Delete(_ context.Context, id string) (int64, error) {
	for date, h := range m.holidays {
		if h.HolidayID == id {
			delete(m.holidays, date)
			return 1, nil
		}
	}
	return 0, nil
}

// ── Mock AuditLogRepository ──

type mockAuditLogRepo struct {
	logs []model.AuditLog
}

func newMockAuditLogRepo() *mockAuditLogRepo {
	return &mockAuditLogRepo{}
}

func (m *mockAuditLogRepo) Create(_ context.Context, log *model.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func (m *mockAuditLogRepo) ListByEntity(_ context.Context, entityType, entityID string, _ repository.Page) ([]model.AuditLog, int64, error) {
	var result []model.AuditLog
	for _, l := range m.logs {
		if l.EntityType == entityType && l.EntityID == entityID {
			result = append(result, l)
		}
	}
	return result, int64(len(result)), nil
}

// ── Mock 邮件发送 ──

type sentMail struct {
	to, subject, body string
}

type mockMailer struct {
	mu      sync.Mutex
	err     error         // 非空时每次发送都失败
	started chan struct{} // 非空时每次发送开始前通知
	release chan struct{} // 非空时阻塞到放行或 ctx 结束
	hold    time.Duration // 忽略 ctx 的固定耗时
	sent    []sentMail
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	err, started, release, hold := m.err, m.started, m.release, m.hold
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if hold > 0 {
		time.Sleep(hold)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ── 测试夹具 ──

type mockRepos struct {
	users         *mockUserRepo
	periods       *mockPeriodRepo
	evaluations   *mockEvaluationRepo
	reminders     *mockReminderRepo
	notifications *mockNotificationRepo
	configs       *mockReminderConfigRepo
	holidays      *mockHolidayRepo
	audits        *mockAuditLogRepo
}

// newMockRepository 组装不带 db 的 Repository，Transaction 直接执行回调
func newMockRepository() (*repository.Repository, *mockRepos) {
	periods := newMockPeriodRepo()
	m := &mockRepos{
		users:         newMockUserRepo(),
		periods:       periods,
		evaluations:   newMockEvaluationRepo(periods),
		reminders:     newMockReminderRepo(),
		notifications: newMockNotificationRepo(),
		configs:       newMockReminderConfigRepo(),
		holidays:      newMockHolidayRepo(),
		audits:        newMockAuditLogRepo(),
	}
	repo := &repository.Repository{
		User:           m.users,
		Period:         m.periods,
		Evaluation:     m.evaluations,
		Reminder:       m.reminders,
		Notification:   m.notifications,
		ReminderConfig: m.configs,
		Holiday:        m.holidays,
		AuditLog:       m.audits,
	}
	return repo, m
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
