package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"koerner360/backend/config"
	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
)

func TestUrgencyPolicy_Classify(t *testing.T) {
	p := DefaultUrgencyPolicy()

	tests := []struct {
		days        int
		wantType    string
		wantUrgency string
	}{
		{-1, model.NotificationTypeOverdue, model.UrgencyHigh},
		{0, model.NotificationTypePending, model.UrgencyHigh},
		{1, model.NotificationTypePending, model.UrgencyHigh},
		{2, model.NotificationTypePending, model.UrgencyMedium},
		{3, model.NotificationTypePending, model.UrgencyMedium},
		{5, model.NotificationTypePending, model.UrgencyLow},
	}
	for _, tt := range tests {
		typ, urgency := p.Classify(tt.days)
		if typ != tt.wantType || urgency != tt.wantUrgency {
			t.Errorf("剩余 %d 天：期望 %s/%s，实际 %s/%s", tt.days, tt.wantType, tt.wantUrgency, typ, urgency)
		}
	}
}

func TestUrgencyPolicyFrom_OverdueLevel(t *testing.T) {
	p := UrgencyPolicyFrom(config.UrgencyConfig{HighMaxDays: 2, MediumMaxDays: 5, OverdueLevel: model.UrgencyOverdue})
	if _, urgency := p.Classify(-3); urgency != model.UrgencyOverdue {
		t.Errorf("期望逾期等级 overdue，实际 %s", urgency)
	}
	if _, urgency := p.Classify(2); urgency != model.UrgencyHigh {
		t.Errorf("期望 high，实际 %s", urgency)
	}

	p = UrgencyPolicyFrom(config.UrgencyConfig{HighMaxDays: 1, MediumMaxDays: 3})
	if p.OverdueLevel != model.UrgencyHigh {
		t.Errorf("逾期等级缺省应为 high，实际 %s", p.OverdueLevel)
	}
}

func TestDaysRemaining(t *testing.T) {
	now := day(2024, 1, 3, 9, 0)
	tests := []struct {
		deadline time.Time
		want     int
	}{
		{day(2024, 1, 3, 9, 0), 0},
		{day(2024, 1, 3, 10, 0), 1},
		{day(2024, 1, 5, 9, 0), 2},
		{day(2024, 1, 2, 9, 0), -1},
		{day(2024, 1, 2, 20, 0), 0},
	}
	for _, tt := range tests {
		if got := DaysRemaining(tt.deadline, now); got != tt.want {
			t.Errorf("截止 %s：期望 %d，实际 %d", tt.deadline, tt.want, got)
		}
	}
}

func TestNotificationService_Generate_Idempotent(t *testing.T) {
	env := setupReminderScenario(t, day(2024, 1, 9, 9, 0))
	ctx := context.Background()

	created, err := env.svc.Notification.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}
	if created != 1 {
		t.Fatalf("期望创建 1 条通知，实际 %d", created)
	}
	created, err = env.svc.Notification.Generate(ctx)
	if err != nil {
		t.Fatalf("第二次 Generate 应成功: %v", err)
	}
	if created != 0 {
		t.Errorf("已有未读通知时不应重复创建，实际 %d", created)
	}

	list, _, err := env.svc.Notification.List(ctx, &dto.NotificationListRequest{}, evaluatorCaller())
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("期望 1 条通知，实际 %d", len(list))
	}
	n := list[0]
	// 截止 01-10 23:59:59，剩余不足 39 小时，向上取整为 2 天
	if n.Type != model.NotificationTypePending || n.Urgency != model.UrgencyMedium {
		t.Errorf("期望 pending/medium，实际 %s/%s", n.Type, n.Urgency)
	}
	if n.Link != "https://app.example.com/evaluations/e1" {
		t.Errorf("链接错误: %s", n.Link)
	}
}

func TestNotificationService_Generate_Overdue(t *testing.T) {
	env := setupReminderScenario(t, day(2024, 1, 12, 9, 0))
	ctx := context.Background()

	if _, err := env.svc.Notification.Generate(ctx); err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}
	list, _, _ := env.svc.Notification.List(ctx, &dto.NotificationListRequest{}, evaluatorCaller())
	if len(list) != 1 {
		t.Fatalf("期望 1 条通知，实际 %d", len(list))
	}
	if list[0].Type != model.NotificationTypeOverdue || list[0].Urgency != model.UrgencyHigh {
		t.Errorf("期望 overdue/high，实际 %s/%s", list[0].Type, list[0].Urgency)
	}
}

func TestNotificationService_Generate_NewTypeAfterOverdue(t *testing.T) {
	env := setupReminderScenario(t, day(2024, 1, 10, 9, 0))
	ctx := context.Background()

	if created, _ := env.svc.Notification.Generate(ctx); created != 1 {
		t.Fatalf("期望创建 1 条待完成通知，实际 %d", created)
	}
	env.clock.Set(day(2024, 1, 12, 9, 0))
	created, err := env.svc.Notification.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}
	if created != 1 {
		t.Errorf("逾期后应新增逾期通知，实际 %d", created)
	}
	if count, _ := env.svc.Notification.UnreadCount(ctx, evaluatorCaller()); count.Count != 2 {
		t.Errorf("期望 2 条未读，实际 %d", count.Count)
	}
}

func TestNotificationService_MarkRead(t *testing.T) {
	env := setupReminderScenario(t, day(2024, 1, 9, 9, 0))
	ctx := context.Background()
	if _, err := env.svc.Notification.Generate(ctx); err != nil {
		t.Fatalf("Generate 应成功: %v", err)
	}
	list, _, _ := env.svc.Notification.List(ctx, &dto.NotificationListRequest{}, evaluatorCaller())
	id := list[0].ID

	if err := env.svc.Notification.MarkRead(ctx, id, NewCaller(otherID, model.RoleAtendente)); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("他人通知期望 ErrNotificationNotFound，实际 %v", err)
	}
	if err := env.svc.Notification.MarkRead(ctx, id, evaluatorCaller()); err != nil {
		t.Fatalf("MarkRead 应成功: %v", err)
	}
	if err := env.svc.Notification.MarkRead(ctx, id, evaluatorCaller()); err != nil {
		t.Errorf("重复标记已读应幂等: %v", err)
	}
	if err := env.svc.Notification.MarkRead(ctx, "missing", evaluatorCaller()); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("期望 ErrNotificationNotFound，实际 %v", err)
	}

	count, err := env.svc.Notification.UnreadCount(ctx, evaluatorCaller())
	if err != nil {
		t.Fatalf("UnreadCount 应成功: %v", err)
	}
	if count.Count != 0 {
		t.Errorf("期望 0 条未读，实际 %d", count.Count)
	}

	// 已读后再次生成会产生新的未读通知
	if created, _ := env.svc.Notification.Generate(ctx); created != 1 {
		t.Errorf("已读后应重新生成，实际 %d", created)
	}
}

func TestNotificationService_MarkAllRead_Filtered(t *testing.T) {
	env := newTestEnv(t, day(2024, 1, 20, 9, 0))
	ctx := context.Background()
	for i, u := range []string{model.UrgencyHigh, model.UrgencyLow, model.UrgencyHigh} {
		env.mocks.notifications.CreateIfAbsent(ctx, &model.Notification{
			UserID: evaluatorID, EvaluationID: string(rune('a' + i)), Type: model.NotificationTypePending,
			Urgency: u, Status: model.NotificationUnread, CreatedAt: env.clock.Now(),
		})
	}

	n, err := env.svc.Notification.MarkAllRead(ctx, &dto.MarkAllReadRequest{Urgency: model.UrgencyHigh}, evaluatorCaller())
	if err != nil {
		t.Fatalf("MarkAllRead 应成功: %v", err)
	}
	if n != 2 {
		t.Errorf("期望标记 2 条，实际 %d", n)
	}
	if count, _ := env.svc.Notification.UnreadCount(ctx, evaluatorCaller()); count.Count != 1 {
		t.Errorf("期望剩余 1 条未读，实际 %d", count.Count)
	}
}

func TestNotificationService_Cleanup_OnlyOldRead(t *testing.T) {
	env := newTestEnv(t, day(2024, 6, 1, 9, 0))
	ctx := context.Background()
	old := day(2024, 1, 1, 9, 0)
	readAt := day(2024, 1, 2, 9, 0)
	recent := day(2024, 5, 25, 9, 0)

	env.mocks.notifications.notifications["n1"] = &model.Notification{NotificationID: "n1", UserID: evaluatorID, EvaluationID: "e1",
		Type: model.NotificationTypePending, Status: model.NotificationRead, CreatedAt: old, ReadAt: &readAt}
	env.mocks.notifications.notifications["n2"] = &model.Notification{NotificationID: "n2", UserID: evaluatorID, EvaluationID: "e2",
		Type: model.NotificationTypePending, Status: model.NotificationUnread, CreatedAt: old}
	env.mocks.notifications.notifications["n3"] = &model.Notification{NotificationID: "n3", UserID: evaluatorID, EvaluationID: "e3",
		Type: model.NotificationTypePending, Status: model.NotificationRead, CreatedAt: recent, ReadAt: &recent}

	if _, err := env.svc.Notification.Cleanup(ctx, 90, evaluatorCaller()); !errors.Is(err, ErrForbidden) {
		t.Errorf("普通用户期望 ErrForbidden，实际 %v", err)
	}
	n, err := env.svc.Notification.Cleanup(ctx, 90, adminCaller())
	if err != nil {
		t.Fatalf("Cleanup 应成功: %v", err)
	}
	if n != 1 {
		t.Errorf("期望清理 1 条，实际 %d", n)
	}
	if _, ok := env.mocks.notifications.notifications["n2"]; !ok {
		t.Error("未读通知不应被清理")
	}
	if _, ok := env.mocks.notifications.notifications["n3"]; !ok {
		t.Error("保留期内的已读通知不应被清理")
	}
}
