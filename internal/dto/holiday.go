package dto

// ── 节假日 DTO ──

// CreateHolidayRequest 新增节假日请求
type CreateHolidayRequest struct {
	Date string `json:"date" binding:"required"` // "2024-12-25"
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// HolidayListRequest 节假日查询区间（含端点）
type HolidayListRequest struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// HolidayResponse 节假日响应
type HolidayResponse struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// ImportHolidaysResponse ICS 导入结果
type ImportHolidaysResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportHolidaysRequest 通过订阅地址导入（支持 webcal://）
type ImportHolidaysRequest struct {
	URL string `json:"url" binding:"required,max=2048"`
}
