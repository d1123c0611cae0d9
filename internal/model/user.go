package model

// 用户角色
const (
	RoleAdmin     = "ADMIN"
	RoleGestor    = "GESTOR"
	RoleAtendente = "ATENDENTE"
)

// 用户状态
const (
	UserActive   = "ACTIVE"
	UserInactive = "INACTIVE"
)

// User 用户表 — 对应 users（由外部用户管理模块维护，本服务只读）
type User struct {
	UserID string `gorm:"type:uuid;primaryKey"                          json:"user_id"`
	Name   string `gorm:"type:varchar(100);not null"                    json:"name"`
	Email  string `gorm:"type:varchar(255);not null"                    json:"email"`
	Role   string `gorm:"type:varchar(20);not null;default:'ATENDENTE'" json:"role"`
	Status string `gorm:"type:varchar(20);not null;default:'ACTIVE'"    json:"status"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }
