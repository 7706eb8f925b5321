package llm

import (
	"Neurologix/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI 兼容接口的 LLM 客户端。
type OpenAI struct {
	client *openai.Client // OpenAI 客户端实例。
	model  string         // 要使用的模型名称。
}

// NewOpenAI 创建一个新的 OpenAI 客户端。baseURL 为空时使用官方地址。
func NewOpenAI(model, apiKey, baseURL string) (*OpenAI, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// GenerateContent 使用 OpenAI API 生成内容。
func (o *OpenAI) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	out := &models.GenerateContentResponse{ResponseID: resp.ID, ModelVersion: resp.Model}
	if len(resp.Choices) > 0 {
		out.Content = []models.Content{models.TextContent(models.SpeakerModel, resp.Choices[0].Message.Content)}
	}
	return out, nil
}

// GenerateContentStream 使用 OpenAI API 以流式方式生成内容。
func (o *OpenAI) GenerateContentStream(ctx context.Context, req *models.GenerateContentRequest) (<-chan *models.GenerateContentResponse, error) {
	openaiReq := o.toOpenAIRequest(req)
	openaiReq.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion stream: %w", err)
	}

	respChan := make(chan *models.GenerateContentResponse)
	go func() {
		defer close(respChan)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				fail(ctx, respChan, fmt.Errorf("openai stream failed: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			out := &models.GenerateContentResponse{
				Content:      []models.Content{models.TextContent(models.SpeakerModel, resp.Choices[0].Delta.Content)},
				ResponseID:   resp.ID,
				ModelVersion: resp.Model,
			}
			if !emit(ctx, respChan, out) {
				return
			}
		}
	}()

	return respChan, nil
}

// toOpenAIRequest 将我们的内部请求格式转换为 OpenAI 格式。
func (o *OpenAI) toOpenAIRequest(req *models.GenerateContentRequest) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, content := range req.Content {
		role := openai.ChatMessageRoleUser
		switch content.Role {
		case models.SpeakerModel:
			role = openai.ChatMessageRoleAssistant
		case models.SpeakerSystem:
			role = openai.ChatMessageRoleSystem
		}
		for _, part := range content.Parts {
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: part.Text})
		}
	}

	out := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.JSONOutput {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}
