package llm

import (
	"Neurologix/backend/go/internal/models"
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// 每个请求都是无状态的单轮生成，不保留聊天历史。
type Gemini struct {
	client *genai.Client // GenAI 客户端实例。
	model  string        // Gemini 模型名称。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 客户端实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// generativeModel 为单个请求构建模型配置。GenerativeModel 的字段不是并发安全的，因此不在请求间共享。
func (g *Gemini) generativeModel(req *models.GenerateContentRequest) *genai.GenerativeModel {
	gm := g.client.GenerativeModel(g.model)
	if req.SystemInstruction != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if req.Temperature != nil {
		gm.SetTemperature(*req.Temperature)
	}
	if req.JSONOutput {
		gm.ResponseMIMEType = "application/json"
	}
	return gm
}

// GenerateContent 向 Gemini API 发送请求并返回响应。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	resp, err := g.generativeModel(req).GenerateContent(ctx, toGenaiParts(req.Content)...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return fromGenaiResponse(resp), nil
}

// GenerateContentStream 向 Gemini API 发送请求并返回响应通道。
func (g *Gemini) GenerateContentStream(ctx context.Context, req *models.GenerateContentRequest) (<-chan *models.GenerateContentResponse, error) {
	iter := g.generativeModel(req).GenerateContentStream(ctx, toGenaiParts(req.Content)...)
	ch := make(chan *models.GenerateContentResponse)

	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				fail(ctx, ch, fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			if !emit(ctx, ch, fromGenaiResponse(resp)) {
				return
			}
		}
	}()

	return ch, nil
}

// Close 关闭底层的 GenAI 客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}

// toGenaiParts 将内部 Content 结构体转换为 GenAI Part 切片。
func toGenaiParts(content []models.Content) []genai.Part {
	var parts []genai.Part
	for _, c := range content {
		for _, p := range c.Parts {
			if p != nil && p.Text != "" {
				parts = append(parts, genai.Text(p.Text))
			}
		}
	}
	return parts
}

// fromGenaiResponse 将 GenAI 响应转换为内部响应结构体，只保留文本部分。
func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GenerateContentResponse {
	out := &models.GenerateContentResponse{}
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		var parts []*models.Part
		for _, p := range cand.Content.Parts {
			if text, ok := p.(genai.Text); ok {
				parts = append(parts, &models.Part{Text: string(text)})
			}
		}
		out.Content = append(out.Content, models.Content{Parts: parts, Role: models.SpeakerModel})
		// 只使用第一个候选结果。
		break
	}
	return out
}
