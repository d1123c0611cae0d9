package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"koerner360/backend/internal/dto"
)

const testHolidayICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//Feriados//PT
BEGIN:VEVENT
SUMMARY:Natal
DTSTART;VALUE=DATE:20241225
DTEND;VALUE=DATE:20241226
END:VEVENT
BEGIN:VEVENT
SUMMARY:Natal (duplicado)
DTSTART;VALUE=DATE:20241225
END:VEVENT
BEGIN:VEVENT
SUMMARY:Carnaval
DTSTART;VALUE=DATE:20250303
DTEND;VALUE=DATE:20250305
END:VEVENT
BEGIN:VEVENT
SUMMARY:Tiradentes
DTSTART;VALUE=DATE:20250421
RRULE:FREQ=YEARLY;COUNT=3
EXDATE;VALUE=DATE:20260421
END:VEVENT
BEGIN:VEVENT
SUMMARY:Dia do Trabalho
DTSTART:20250501T120000Z
DTEND:20250501T130000Z
END:VEVENT
BEGIN:VEVENT
DTSTART;VALUE=DATE:20250601
END:VEVENT
END:VCALENDAR`

func TestParseHolidayICS(t *testing.T) {
	holidays, err := ParseHolidayICS(strings.NewReader(testHolidayICS), time.UTC)
	if err != nil {
		t.Fatalf("ParseHolidayICS 应成功: %v", err)
	}

	want := map[string]string{
		"2024-12-25": "Natal",
		"2025-03-03": "Carnaval",
		"2025-03-04": "Carnaval",
		"2025-04-21": "Tiradentes",
		"2027-04-21": "Tiradentes",
		"2025-05-01": "Dia do Trabalho",
	}
	if len(holidays) != len(want) {
		t.Fatalf("期望 %d 个节假日，实际 %d: %+v", len(want), len(holidays), holidays)
	}
	for _, h := range holidays {
		name, ok := want[h.Date]
		if !ok {
			t.Errorf("不应包含日期 %s", h.Date)
			continue
		}
		if h.Name != name {
			t.Errorf("%s 期望名称 %s，实际 %s", h.Date, name, h.Name)
		}
		if h.Source != "ics" {
			t.Errorf("来源应为 ics，实际 %s", h.Source)
		}
	}
}

func TestParseHolidayICS_Empty(t *testing.T) {
	ics := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//Feriados//PT
END:VCALENDAR`
	holidays, err := ParseHolidayICS(strings.NewReader(ics), time.UTC)
	if err != nil {
		t.Fatalf("空日历不应返回错误: %v", err)
	}
	if len(holidays) != 0 {
		t.Errorf("期望 0 个节假日，实际 %d", len(holidays))
	}
}

func TestParseRRule(t *testing.T) {
	r := parseRRule("FREQ=WEEKLY;INTERVAL=2;COUNT=4;UNTIL=20250131")
	if r.freq != "WEEKLY" || r.interval != 2 || r.count != 4 {
		t.Errorf("解析结果错误: %+v", r)
	}
	if !r.until.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("UNTIL 解析错误: %s", r.until)
	}
	if r = parseRRule("FREQ=DAILY;INTERVAL=0"); r.interval != 1 {
		t.Errorf("非法 INTERVAL 应回退为 1，实际 %d", r.interval)
	}
}

func TestHolidayService_Import(t *testing.T) {
	env := newTestEnv(t, day(2024, 12, 1, 9, 0))
	ctx := context.Background()

	resp, err := env.svc.Holiday.Import(ctx, strings.NewReader(testHolidayICS), adminCaller())
	if err != nil {
		t.Fatalf("Import 应成功: %v", err)
	}
	if resp.Imported != 6 || resp.Skipped != 0 {
		t.Errorf("期望导入 6 跳过 0，实际 %d/%d", resp.Imported, resp.Skipped)
	}

	resp, err = env.svc.Holiday.Import(ctx, strings.NewReader(testHolidayICS), adminCaller())
	if err != nil {
		t.Fatalf("重复 Import 应成功: %v", err)
	}
	if resp.Imported != 0 || resp.Skipped != 6 {
		t.Errorf("重复导入应全部跳过，实际 %d/%d", resp.Imported, resp.Skipped)
	}

	if _, err := env.svc.Holiday.Import(ctx, strings.NewReader(testHolidayICS), evaluatorCaller()); !errors.Is(err, ErrForbidden) {
		t.Errorf("普通用户期望 ErrForbidden，实际 %v", err)
	}
}

func TestHolidayService_ImportURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feriados.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(testHolidayICS))
	}))
	defer server.Close()

	env := newTestEnv(t, day(2024, 12, 1, 9, 0))
	ctx := context.Background()

	resp, err := env.svc.Holiday.ImportURL(ctx, server.URL+"/feriados.ics", adminCaller())
	if err != nil {
		t.Fatalf("ImportURL 应成功: %v", err)
	}
	if resp.Imported != 6 {
		t.Errorf("期望导入 6，实际 %d", resp.Imported)
	}

	_, err = env.svc.Holiday.ImportURL(ctx, server.URL+"/missing.ics", adminCaller())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "url" {
		t.Errorf("HTTP 404 期望 url 校验错误，实际 %v", err)
	}
}

func TestHolidayService_AddListDelete(t *testing.T) {
	env := newTestEnv(t, day(2024, 12, 1, 9, 0))
	ctx := context.Background()

	added, err := env.svc.Holiday.Add(ctx, &dto.CreateHolidayRequest{Date: "2024-12-25", Name: "Natal"}, adminCaller())
	if err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}
	if added.Source != "manual" {
		t.Errorf("手动新增来源应为 manual，实际 %s", added.Source)
	}
	if _, err := env.svc.Holiday.Add(ctx, &dto.CreateHolidayRequest{Date: "2024-12-25", Name: "Natal"}, adminCaller()); !errors.Is(err, ErrHolidayExists) {
		t.Errorf("重复日期期望 ErrHolidayExists，实际 %v", err)
	}
	if _, err := env.svc.Holiday.Add(ctx, &dto.CreateHolidayRequest{Date: "25/12/2024", Name: "Natal"}, adminCaller()); !errors.Is(err, ErrValidation) {
		t.Errorf("非法日期期望校验错误，实际 %v", err)
	}
	if _, err := env.svc.Holiday.Add(ctx, &dto.CreateHolidayRequest{Date: "2025-01-01", Name: "Ano Novo"}, adminCaller()); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}

	list, err := env.svc.Holiday.List(ctx, &dto.HolidayListRequest{From: "2025-01-01"})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if len(list) != 1 || list[0].Date != "2025-01-01" {
		t.Errorf("区间过滤错误: %+v", list)
	}

	if err := env.svc.Holiday.Delete(ctx, added.ID, adminCaller()); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if err := env.svc.Holiday.Delete(ctx, added.ID, adminCaller()); !errors.Is(err, ErrHolidayNotFound) {
		t.Errorf("重复删除期望 ErrHolidayNotFound，实际 %v", err)
	}
}

func TestReminderPlanner_SkipsHolidays(t *testing.T) {
	env := setupReminderScenario(t, day(2024, 1, 3, 9, 0))
	ctx := context.Background()
	if _, err := env.svc.Holiday.Add(ctx, &dto.CreateHolidayRequest{Date: "2024-01-03", Name: "ponte"}, adminCaller()); err != nil {
		t.Fatalf("Add 应成功: %v", err)
	}

	report, err := env.svc.Scheduler.Sweep(ctx, adminCaller())
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("节假日当天不应创建提醒，实际 %d", report.Created)
	}

	env.clock.Set(day(2024, 1, 4, 9, 0))
	report, err = env.svc.Scheduler.Sweep(ctx, adminCaller())
	if err != nil {
		t.Fatalf("Sweep 应成功: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("应顺延到下一个工作日，实际创建 %d", report.Created)
	}
}
