package service

import "koerner360/backend/internal/model"

// Capability 单项操作权限
type Capability string

const (
	CapManagePeriods     Capability = "periods:manage"
	CapManageEvaluations Capability = "evaluations:manage" // 指派/取消/删除/编辑任意评估
	CapBypassWindow      Capability = "evaluations:bypass_window"
	CapViewAll           Capability = "evaluations:view_all"
	CapOperateScheduler  Capability = "scheduler:operate"
	CapManageHolidays    Capability = "holidays:manage"
)

var elevatedCapabilities = []Capability{
	CapManagePeriods,
	CapManageEvaluations,
	CapBypassWindow,
	CapViewAll,
	CapOperateScheduler,
	CapManageHolidays,
}

// Permissions 每个请求解析一次的权限集合
type Permissions struct {
	role string
	caps map[Capability]bool
}

// PermissionsFor 由角色推导权限集合；未知角色没有任何权限
func PermissionsFor(role string) Permissions {
	p := Permissions{role: role, caps: make(map[Capability]bool)}
	switch role {
	case model.RoleAdmin, model.RoleGestor:
		for _, c := range elevatedCapabilities {
			p.caps[c] = true
		}
	}
	return p
}

// Has 是否拥有指定权限
func (p Permissions) Has(c Capability) bool {
	return p.caps[c]
}

// Role 原始角色
func (p Permissions) Role() string {
	return p.role
}

// Caller 发起操作的用户及其权限
type Caller struct {
	UserID string
	Perms  Permissions
}

// NewCaller 构造 Caller
func NewCaller(userID, role string) Caller {
	return Caller{UserID: userID, Perms: PermissionsFor(role)}
}

// SystemCaller 后台任务（CLI、调度器）使用的调用者，拥有全部管理权限
func SystemCaller() Caller {
	return Caller{Perms: PermissionsFor(model.RoleAdmin)}
}

// Can 是否拥有指定权限
func (c Caller) Can(capability Capability) bool {
	return c.Perms.Has(capability)
}

// operator 审计日志中的操作人，系统调用为空
func (c Caller) operator() *string {
	if c.UserID == "" {
		return nil
	}
	id := c.UserID
	return &id
}

func (c Caller) require(capability Capability) error {
	if !c.Can(capability) {
		return ErrForbidden
	}
	return nil
}

// ErrForbidden 通用权限不足错误
var ErrForbidden = newError(ErrPermission, "当前角色无权执行该操作")
