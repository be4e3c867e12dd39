package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/service"
	"pai-semantic-go/pkg/log"
)

// SearchHandler 处理检索与推荐请求。
type SearchHandler struct {
	searchService         service.SearchService
	recommendationService service.RecommendationService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, recommendationService service.RecommendationService) *SearchHandler {
	return &SearchHandler{searchService: searchService, recommendationService: recommendationService}
}

type contextParams struct {
	WorkContext string   `form:"work_context"`
	UserID      string   `form:"user_id"`
	Recent      []string `form:"recent"`
}

func (p contextParams) searchContext() model.SearchContext {
	return model.SearchContext{WorkContext: p.WorkContext, UserID: p.UserID, RecentQueries: p.Recent}
}

type searchParams struct {
	contextParams
	Query      string  `form:"q" binding:"required"`
	Threshold  float64 `form:"threshold"`
	MaxResults int     `form:"max_results"`
	Rerank     bool    `form:"rerank"`
	Explain    bool    `form:"explain"`
	Metric     string  `form:"metric"`
}

// Search 处理 GET /search?q=...
func (h *SearchHandler) Search(c *gin.Context) {
	var p searchParams
	if err := c.ShouldBindQuery(&p); err != nil {
		respondError(c, http.StatusBadRequest, "查询参数错误: "+err.Error())
		return
	}
	log.Infof("[SearchHandler] 收到检索请求, query: '%s', context: '%s', rerank: %t", p.Query, p.WorkContext, p.Rerank)

	result := h.searchService.Search(c.Request.Context(), model.SearchQuery{
		Text:       p.Query,
		Threshold:  p.Threshold,
		MaxResults: p.MaxResults,
		Rerank:     p.Rerank,
		Explain:    p.Explain,
		Metric:     p.Metric,
	}, p.searchContext())

	if result.Error != "" {
		respond(c, statusForMessage(result.Error), result, result.Error)
		return
	}
	respond(c, http.StatusOK, result, "检索成功")
}

// Recommendations 处理 GET /recommendations。
func (h *SearchHandler) Recommendations(c *gin.Context) {
	var p struct {
		contextParams
		MaxResults int `form:"max_results"`
	}
	if err := c.ShouldBindQuery(&p); err != nil {
		respondError(c, http.StatusBadRequest, "查询参数错误: "+err.Error())
		return
	}
	recs, err := h.recommendationService.Recommend(c.Request.Context(), p.searchContext(), p.MaxResults)
	if err != nil {
		log.Errorf("[SearchHandler] 生成推荐失败: %v", err)
		respondError(c, statusFor(err), "生成推荐失败")
		return
	}
	respond(c, http.StatusOK, recs, "获取推荐成功")
}
