package models

import (
	"strings"
	"time"
)

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerUser   SpeakerRole = "user"   // 用户角色。
	SpeakerModel  SpeakerRole = "model"  // 模型角色。
	SpeakerSystem SpeakerRole = "system" // 系统指令角色。
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	// 可选。构成单个消息的部分列表。
	Parts []*Part `json:"parts,omitempty"`
	// 可选。内容的生产者。
	Role SpeakerRole `json:"role,omitempty"`
}

// Part 定义了消息的单个部分。问答流水线只交换文本。
type Part struct {
	Text string `json:"text,omitempty"`
}

// TextContent 是构造单段文本消息的便捷函数。
func TextContent(role SpeakerRole, text string) Content {
	return Content{Role: role, Parts: []*Part{{Text: text}}}
}

// GenerateContentRequest 定义了生成内容的请求结构。
type GenerateContentRequest struct {
	// 系统指令，为空时不发送。
	SystemInstruction string `json:"systemInstruction,omitempty"`
	// 请求的内容列表。
	Content []Content `json:"content,omitempty"`
	// 可选。采样温度，为 nil 时使用提供商默认值。
	Temperature *float32 `json:"temperature,omitempty"`
	// 要求模型只输出 JSON 对象。
	JSONOutput bool `json:"jsonOutput,omitempty"`
}

// GenerateContentResponse 定义了生成内容的响应结构。
// 在流式响应中，Err 非空的响应是通道上的最后一个元素。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`      // 响应的内容列表。
	CreateTime   time.Time `json:"createTime,omitempty"`   // 响应创建时间。
	ResponseID   string    `json:"responseId,omitempty"`   // 响应ID。
	ModelVersion string    `json:"modelVersion,omitempty"` // 模型版本。
	Err          error     `json:"-"`                      // 流式生成中途失败的原因。
}

// Text 拼接响应中所有文本部分。
func (r *GenerateContentResponse) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range r.Content {
		for _, p := range c.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
	}
	return sb.String()
}
