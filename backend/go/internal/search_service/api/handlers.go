package api

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// Answerer 是问答流水线的入口，由 pipeline.Orchestrator 实现。
type Answerer interface {
	Answer(ctx context.Context, question string, scope schema.UserScope) <-chan schema.AnswerChunk
}

// HealthChecker 报告一个外部依赖是否可达。
type HealthChecker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	answerer Answerer
	checks   []HealthChecker
	log      *logger.Logger
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(answerer Answerer, log *logger.Logger, checks ...HealthChecker) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{answerer: answerer, checks: checks, log: log}
}

// QueryRequest 定义了问答请求的 JSON 结构。
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// QueryResponse 是非流式请求的聚合响应。
type QueryResponse struct {
	Answer    string             `json:"answer"`
	Citations []string           `json:"citations"`
	Error     *schema.ChunkError `json:"error,omitempty"`
}

// StatusFor 把错误类型映射为 HTTP 状态码。
func StatusFor(kind schema.ErrorKind) int {
	switch kind {
	case "":
		return http.StatusOK
	case schema.ParseFailure:
		return http.StatusBadRequest
	case schema.ScopeViolation:
		return http.StatusForbidden
	case schema.StructuredSourceFailure, schema.SemanticSourceFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(kind, message string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "message": message}}
}

func wantsStream(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	switch strings.ToLower(c.Query("stream")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Query 处理 POST /api/v1/query。
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(string(schema.ParseFailure), "request body must be JSON with a non-empty \"question\""))
		return
	}

	scope := ScopeFrom(c)
	chunks := h.answerer.Answer(c.Request.Context(), req.Question, scope)
	if wantsStream(c) {
		h.stream(c, chunks)
		return
	}
	h.aggregate(c, chunks)
}

// stream 以 SSE "chunk" 事件转发答案。首个分片就是错误终止分片时，
// 状态码按错误类型设置，否则为 200。
func (h *Handler) stream(c *gin.Context, chunks <-chan schema.AnswerChunk) {
	first, ok := <-chunks
	if !ok {
		c.JSON(http.StatusInternalServerError, errorBody(string(schema.InternalFailure), "answer stream closed without a final chunk"))
		return
	}
	status := http.StatusOK
	if first.IsFinal && first.Error != nil {
		status = StatusFor(first.Error.Kind)
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(status)

	// c.Stream relies on http.CloseNotifier, which the middleware writers
	// do not expose; the request context covers disconnects instead.
	done := c.Request.Context().Done()
	chunk := first
	for {
		c.SSEvent("chunk", chunk)
		c.Writer.Flush()
		if chunk.IsFinal {
			break
		}
		select {
		case <-done:
			go drain(chunks)
			return
		case next, ok := <-chunks:
			if !ok {
				return
			}
			chunk = next
		}
	}
	go drain(chunks)
}

// drain unblocks a pipeline whose client stopped reading.
func drain(chunks <-chan schema.AnswerChunk) {
	for range chunks {
	}
}

func (h *Handler) aggregate(c *gin.Context, chunks <-chan schema.AnswerChunk) {
	var sb strings.Builder
	resp := QueryResponse{Citations: []string{}}
	final := false
	for chunk := range chunks {
		sb.WriteString(chunk.Text)
		if chunk.IsFinal {
			final = true
			if chunk.Citations != nil {
				resp.Citations = chunk.Citations
			}
			resp.Error = chunk.Error
		}
	}
	resp.Answer = sb.String()

	if !final {
		if c.Request.Context().Err() != nil {
			// 客户端已断开，不再写响应。
			return
		}
		resp.Error = &schema.ChunkError{Kind: schema.InternalFailure, Message: "answer stream closed without a final chunk"}
	}

	status := http.StatusOK
	if resp.Error != nil {
		status = StatusFor(resp.Error.Kind)
		h.log.Warn(fmt.Sprintf("query finished with %s: %s", resp.Error.Kind, resp.Error.Message))
	}
	c.JSON(status, resp)
}

// Health 处理 GET /health，逐个检查依赖的可达性。
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	components := make(map[string]string, len(h.checks))
	healthy := true
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			healthy = false
			components[check.Name] = "error: " + err.Error()
			continue
		}
		components[check.Name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "components": components})
}
