package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"koerner360/backend/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// maxBytes 为默认上限；overrides 按路由模板（c.FullPath()）单独放宽，例如 ICS 上传
func BodyLimit(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if v, ok := overrides[c.FullPath()]; ok {
			limit = v
		}

		if c.Request.ContentLength > limit {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()
	}
}
