package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"koerner360/backend/internal/model"
)

// ── ICS 节假日解析 ──────────────────────────────────────────
//
// 将 iCalendar (RFC 5545) 日历转换为节假日列表：
//   - 全天事件按 [DTSTART, DTEND) 逐日展开，DTEND 缺省为一天
//   - 带时刻的事件取其在调度时区下的日期
//   - RRULE 支持 DAILY/WEEKLY/MONTHLY/YEARLY 与 INTERVAL/COUNT/UNTIL，EXDATE 排除
//   - 同一日期只保留第一个事件
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize    = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout   = 30 * time.Second
	icsMaxOccurrences = 50 // 无 COUNT/UNTIL 的重复规则最多展开次数
	icsMaxSpanDays    = 31 // 单个全天事件最多覆盖天数
)

// FetchICSContent 从 URL 获取 ICS 内容
func FetchICSContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	// webcal:// → https://
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	ctx, cancel := context.WithTimeout(ctx, icsFetchTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ICS 地址无效: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("获取 ICS 失败: HTTP %d", resp.StatusCode)
	}
	// 限制响应体大小，防止恶意 URL 返回超大内容导致 OOM
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: closerFunc(func() error {
			defer cancel()
			return resp.Body.Close()
		}),
	}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ParseHolidayICS 解析 ICS 内容为节假日列表（按出现顺序，日期去重）
func ParseHolidayICS(reader io.Reader, loc *time.Location) ([]model.Holiday, error) {
	cal, err := ics.ParseCalendar(io.LimitReader(reader, icsMaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}

	seen := make(map[string]bool)
	var result []model.Holiday
	for _, evt := range cal.Events() {
		for _, h := range expandHolidayEvent(evt, loc) {
			if seen[h.Date] {
				continue
			}
			seen[h.Date] = true
			result = append(result, h)
		}
	}
	return result, nil
}

// expandHolidayEvent 展开单个 VEVENT 覆盖的全部日期
func expandHolidayEvent(evt *ics.VEvent, loc *time.Location) []model.Holiday {
	summary := evt.GetProperty(ics.ComponentPropertySummary)
	if summary == nil || strings.TrimSpace(summary.Value) == "" {
		return nil
	}
	name := strings.TrimSpace(summary.Value)

	start, allDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
	if err != nil {
		return nil
	}

	span := 1
	if allDay {
		if end, _, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc); err == nil && end.After(start) {
			span = int(end.Sub(start).Hours()/24 + 0.5)
		}
		if span < 1 {
			span = 1
		}
		if span > icsMaxSpanDays {
			span = icsMaxSpanDays
		}
	}

	exDates := parseExDates(evt, loc)
	var result []model.Holiday
	for _, occ := range occurrences(evt, start) {
		if exDates[occ.Format("20060102")] {
			continue
		}
		for i := 0; i < span; i++ {
			day := occ.AddDate(0, 0, i)
			result = append(result, model.Holiday{
				Date:   day.Format(dateLayout),
				Name:   name,
				Source: "ics",
			})
		}
	}
	return result
}

// occurrences 根据 RRULE 生成事件的全部开始时间（含首次）
func occurrences(evt *ics.VEvent, start time.Time) []time.Time {
	prop := evt.GetProperty(ics.ComponentPropertyRrule)
	if prop == nil {
		return []time.Time{start}
	}
	rule := parseRRule(prop.Value)

	var step func(t time.Time, n int) time.Time
	switch rule.freq {
	case "DAILY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }
	case "WEEKLY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) }
	case "MONTHLY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }
	case "YEARLY":
		step = func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) }
	default:
		return []time.Time{start}
	}

	limit := rule.count
	if limit <= 0 || limit > icsMaxOccurrences {
		limit = icsMaxOccurrences
	}

	result := make([]time.Time, 0, limit)
	for i := 0; i < limit; i++ {
		current := step(start, i*rule.interval)
		if !rule.until.IsZero() && current.After(rule.until) {
			break
		}
		result = append(result, current)
	}
	return result
}

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
}

// parseRRule 解析 RRULE 字符串（如 FREQ=YEARLY;COUNT=5;INTERVAL=1）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			fmt.Sscanf(kv[1], "%d", &r.interval)
		case "COUNT":
			fmt.Sscanf(kv[1], "%d", &r.count)
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				t, _ = time.Parse("20060102", kv[1])
			}
			r.until = t
		}
	}
	if r.interval < 1 {
		r.interval = 1
	}
	return r
}

// parseExDates 解析事件中所有 EXDATE
func parseExDates(evt *ics.VEvent, loc *time.Location) map[string]bool {
	exDates := make(map[string]bool)
	for _, prop := range evt.Properties {
		if prop.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, v := range strings.Split(prop.Value, ",") {
			if t, err := time.Parse("20060102T150405Z", v); err == nil {
				exDates[t.In(loc).Format("20060102")] = true
				continue
			}
			if t, err := time.Parse("20060102T150405", v); err == nil {
				exDates[t.Format("20060102")] = true
				continue
			}
			if t, err := time.Parse("20060102", v); err == nil {
				exDates[t.Format("20060102")] = true
			}
		}
	}
	return exDates
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性；纯日期值视为全天
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, bool, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	// 检查 TZID 参数
	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	if t, err := time.Parse("20060102", val); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true, nil
	}
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t.In(loc), false, nil
	}
	if t, err := time.Parse("20060102T150405", val); err == nil {
		src := loc
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				src = tzLoc
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, src).In(loc), false, nil
	}

	return time.Time{}, false, fmt.Errorf("无法解析日期: %s", val)
}
