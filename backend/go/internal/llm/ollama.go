package llm

import (
	"Neurologix/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于 Ollama API 的 LLM 客户端。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//
// 返回值:
//
//	*Ollama: 新创建的 Ollama 客户端实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 超时由调用方的 context 控制，这里只设置一个兜底上限。
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// GenerateContent 使用 Ollama API 生成内容。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	var sb strings.Builder
	var modelVersion string
	err := o.client.Generate(ctx, o.toOllamaRequest(req, false), func(resp olla.GenerateResponse) error {
		sb.WriteString(resp.Response)
		modelVersion = resp.Model
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}

	return &models.GenerateContentResponse{
		Content:      []models.Content{models.TextContent(models.SpeakerModel, sb.String())},
		ModelVersion: modelVersion,
	}, nil
}

// GenerateContentStream 使用 Ollama API 以流式方式生成内容。
func (o *Ollama) GenerateContentStream(ctx context.Context, req *models.GenerateContentRequest) (<-chan *models.GenerateContentResponse, error) {
	respChan := make(chan *models.GenerateContentResponse)

	go func() {
		defer close(respChan)
		err := o.client.Generate(ctx, o.toOllamaRequest(req, true), func(resp olla.GenerateResponse) error {
			if resp.Response == "" {
				return nil
			}
			out := &models.GenerateContentResponse{
				Content:      []models.Content{models.TextContent(models.SpeakerModel, resp.Response)},
				ModelVersion: resp.Model,
			}
			if !emit(ctx, respChan, out) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			fail(ctx, respChan, fmt.Errorf("ollama stream failed: %w", err))
		}
	}()

	return respChan, nil
}

// toOllamaRequest 将内部请求转换为 Ollama 的单轮生成请求。
func (o *Ollama) toOllamaRequest(req *models.GenerateContentRequest, stream bool) *olla.GenerateRequest {
	var sb strings.Builder
	for _, content := range req.Content {
		for _, part := range content.Parts {
			sb.WriteString(part.Text)
		}
	}

	out := &olla.GenerateRequest{
		Model:  o.model,
		Prompt: sb.String(),
		System: req.SystemInstruction,
		Stream: &stream,
	}
	if req.Temperature != nil {
		out.Options = map[string]interface{}{"temperature": *req.Temperature}
	}
	if req.JSONOutput {
		out.Format = json.RawMessage(`"json"`)
	}
	return out
}
