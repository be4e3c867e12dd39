// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/model"
)

// 所有接口都返回 {"code", "data", "message"} 结构。
func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	respond(c, status, nil, message)
}

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusForMessage 用于只携带错误文本的结果对象。
func statusForMessage(msg string) int {
	for _, sentinel := range []error{model.ErrValidation, model.ErrNotFound, model.ErrEmbedding} {
		if strings.HasPrefix(msg, sentinel.Error()) {
			return statusFor(sentinel)
		}
	}
	return http.StatusInternalServerError
}
