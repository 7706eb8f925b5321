package models

// RequestInfo 记录触发日志的 HTTP 请求，由 logger.WithRequest 写入 request_info 字段。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo 是结构化的错误信息，由 logger.WithError 写入 error 字段。
type ErrorInfo struct {
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	Type       string `json:"type,omitempty"`        // 例如 "StructuredSourceFailure"
	StatusCode int    `json:"status_code,omitempty"` // 相关的 HTTP 状态码
}
