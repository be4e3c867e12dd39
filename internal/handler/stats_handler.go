package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/service"
	"pai-semantic-go/pkg/log"
)

// StatsHandler 暴露索引与检索统计。
type StatsHandler struct {
	statsService service.StatsService
}

// NewStatsHandler 创建一个新的 StatsHandler 实例。
func NewStatsHandler(statsService service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

func (h *StatsHandler) Indexing(c *gin.Context) {
	respond(c, http.StatusOK, h.statsService.IndexingStats(), "获取索引统计成功")
}

func (h *StatsHandler) Search(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"analytics": h.statsService.SearchAnalytics(),
		"history":   h.statsService.SearchHistory(),
	}, "获取检索统计成功")
}

// ClearSearch 清空检索统计和历史。
func (h *StatsHandler) ClearSearch(c *gin.Context) {
	if err := h.statsService.ClearSearchData(c.Request.Context()); err != nil {
		log.Errorf("[StatsHandler] 清空检索统计失败: %v", err)
		respondError(c, http.StatusInternalServerError, "清空检索统计失败")
		return
	}
	respond(c, http.StatusOK, nil, "检索统计已清空")
}
