package handler

import (
	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/app"
	"pai-semantic-go/internal/middleware"
)

// NewRouter 创建路由引擎并注册 /api/v1 下的全部路由。
func NewRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	documentHandler := NewDocumentHandler(a.Index, a.Queue)
	indexHandler := NewIndexHandler(a.Index)
	searchHandler := NewSearchHandler(a.Search, a.Recommendations)
	statsHandler := NewStatsHandler(a.Stats)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Index)
			documents.POST("/batch", documentHandler.IndexBatch)
			documents.POST("/queue", documentHandler.Enqueue)
			documents.GET("/:id", documentHandler.Get)
			documents.PUT("/:id", documentHandler.Update)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		index := apiV1.Group("/index")
		{
			index.POST("/rebuild", indexHandler.Rebuild)
			index.POST("/optimize", indexHandler.Optimize)
		}

		apiV1.GET("/search", searchHandler.Search)
		apiV1.GET("/recommendations", searchHandler.Recommendations)

		stats := apiV1.Group("/stats")
		{
			stats.GET("/indexing", statsHandler.Indexing)
			stats.GET("/search", statsHandler.Search)
			stats.DELETE("/search", statsHandler.ClearSearch)
		}
	}
	return r
}
