package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/service"
	"pai-semantic-go/pkg/log"
)

// IndexHandler 负责索引维护类请求。
type IndexHandler struct {
	indexService service.IndexService
}

// NewIndexHandler 创建一个新的 IndexHandler 实例。
func NewIndexHandler(indexService service.IndexService) *IndexHandler {
	return &IndexHandler{indexService: indexService}
}

// Rebuild 清空索引并重置索引统计。
func (h *IndexHandler) Rebuild(c *gin.Context) {
	if err := h.indexService.RebuildIndex(c.Request.Context()); err != nil {
		log.Errorf("[IndexHandler] 重建索引失败: %v", err)
		respondError(c, statusFor(err), "重建索引失败")
		return
	}
	respond(c, http.StatusOK, nil, "索引已重建")
}

// Optimize 清理孤立向量和维度不符的向量。
func (h *IndexHandler) Optimize(c *gin.Context) {
	report, err := h.indexService.OptimizeIndex(c.Request.Context())
	if err != nil {
		log.Errorf("[IndexHandler] 整理索引失败: %v", err)
		respondError(c, statusFor(err), "整理索引失败")
		return
	}
	respond(c, http.StatusOK, report, "索引整理完成")
}
