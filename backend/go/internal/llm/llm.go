package llm

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/models"
	"context"
	"fmt"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
	// GenerateContentStream 返回的通道在生成结束时关闭；中途失败时最后一个元素携带 Err。
	GenerateContentStream(ctx context.Context, req *models.GenerateContentRequest) (<-chan *models.GenerateContentResponse, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.Model == "" {
			return nil, fmt.Errorf("no model configured for gemini provider")
		}
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		if cfg.OpenAI.Model == "" {
			return nil, fmt.Errorf("no model configured for openai provider")
		}
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		if cfg.Ollama.Model == "" {
			return nil, fmt.Errorf("no model configured for ollama provider")
		}
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// emit 在上下文取消时放弃发送，避免生产者协程因无人接收而泄漏。
func emit(ctx context.Context, ch chan<- *models.GenerateContentResponse, resp *models.GenerateContentResponse) bool {
	select {
	case ch <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail 发送携带错误的最后一个响应。
func fail(ctx context.Context, ch chan<- *models.GenerateContentResponse, err error) {
	emit(ctx, ch, &models.GenerateContentResponse{Err: err})
}
