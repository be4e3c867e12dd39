package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/model"
	"pai-semantic-go/internal/pipeline"
	"pai-semantic-go/internal/service"
	"pai-semantic-go/pkg/log"
	"pai-semantic-go/pkg/tasks"
)

// DocumentHandler 负责处理文档索引生命周期相关的 API 请求。
type DocumentHandler struct {
	indexService service.IndexService
	queue        pipeline.Queue
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(indexService service.IndexService, queue pipeline.Queue) *DocumentHandler {
	return &DocumentHandler{indexService: indexService, queue: queue}
}

func indexResponse(c *gin.Context, res model.IndexingResult, okMessage string) {
	if !res.Success {
		respond(c, statusForMessage(res.Error), res, res.Error)
		return
	}
	respond(c, http.StatusOK, res, okMessage)
}

// Index 同步索引单个文档。
func (h *DocumentHandler) Index(c *gin.Context) {
	var req model.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	indexResponse(c, h.indexService.IndexDocument(c.Request.Context(), req), "文档索引成功")
}

// IndexBatch 同步索引多个文档，每个文档的结果独立返回。
func (h *DocumentHandler) IndexBatch(c *gin.Context) {
	var body struct {
		Documents []model.IndexRequest `json:"documents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	results := h.indexService.IndexDocuments(c.Request.Context(), body.Documents)
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	log.Infof("[DocumentHandler] 批量索引完成, total: %d, failed: %d", len(results), failed)
	respond(c, http.StatusOK, gin.H{"results": results, "failed": failed}, "批量索引完成")
}

// Update 重新索引路径中指定的文档，版本号递增。
func (h *DocumentHandler) Update(c *gin.Context) {
	var req model.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	req.ID = c.Param("id")
	indexResponse(c, h.indexService.UpdateDocument(c.Request.Context(), req), "文档更新成功")
}

// Delete 删除文档及其分块和向量。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	removed, err := h.indexService.RemoveDocument(c.Request.Context(), id)
	if err != nil {
		log.Errorf("[DocumentHandler] 删除文档失败, DocumentID: %s, Error: %v", id, err)
		respondError(c, statusFor(err), "删除文档失败")
		return
	}
	if !removed {
		respondError(c, http.StatusNotFound, "文档不存在")
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id}, "文档删除成功")
}

// Get 返回已索引的文档记录。
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.indexService.GetDocument(c.Request.Context(), c.Param("id"))
	if errors.Is(err, model.ErrNotFound) {
		respondError(c, http.StatusNotFound, "文档不存在")
		return
	}
	if err != nil {
		respondError(c, statusFor(err), "获取文档失败")
		return
	}
	respond(c, http.StatusOK, doc, "获取文档成功")
}

// Enqueue 把文档提交到后台索引队列，立即返回任务 ID。
func (h *DocumentHandler) Enqueue(c *gin.Context) {
	var req model.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	if req.ID == "" {
		respondError(c, http.StatusBadRequest, "缺少文档 ID")
		return
	}
	jobID, err := h.queue.Enqueue(c.Request.Context(), tasks.IndexTask{Request: req})
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		respondError(c, http.StatusServiceUnavailable, "索引队列已满")
		return
	case err != nil:
		log.Errorf("[DocumentHandler] 任务入队失败, DocumentID: %s, Error: %v", req.ID, err)
		respondError(c, http.StatusInternalServerError, "任务入队失败")
		return
	}
	respond(c, http.StatusAccepted, gin.H{"jobId": jobID, "documentId": req.ID, "pending": h.queue.Pending()}, "任务已入队")
}
