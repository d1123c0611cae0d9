package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// writeBizError 按错误分类写入响应，code 为模块内的业务错误码
//
//	ValidationError / FatalConfigError → 400
//	Permission → 403
//	NotFound   → 404
//	Conflict   → 409（周期冲突附带完整的冲突周期列表）
//	其他       → 500
func writeBizError(c *gin.Context, err error, code int) {
	var conflict *service.ConflictError
	var fatal *service.FatalConfigError
	switch {
	case errors.As(err, &conflict) && len(conflict.Periods) > 0:
		response.ErrorWithData(c, http.StatusConflict, code, conflict.Reason, gin.H{"conflicts": conflict.Conflicts()})
	case errors.As(err, &fatal):
		response.ErrorWithDetails(c, http.StatusBadRequest, code, "调度配置无效", fatal.Error())
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, code, err.Error())
	case errors.Is(err, service.ErrPermission):
		response.Forbidden(c, 10003, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, code, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, code, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
