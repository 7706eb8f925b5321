package api

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/models"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// scopeKey 是 UserScope 在 gin.Context 中的键。
const scopeKey = "userScope"

// ScopeMiddleware 验证 Bearer JWT 并把其中的球队列表转换为 UserScope。
// token 无效时返回 401；token 有效但没有任何球队时照常放行，
// 由流水线以 ScopeViolation 拒绝。
func ScopeMiddleware(auth config.AuthConfig) gin.HandlerFunc {
	teamsClaim := auth.TeamsClaim
	if teamsClaim == "" {
		teamsClaim = "teams"
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "请求未包含授权标头")
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "授权标头格式不正确")
			return
		}

		claims, err := parseClaims(parts[1], auth.JwtSecret)
		if err != nil {
			abortUnauthorized(c, "无效的 token")
			return
		}
		if auth.Issuer != "" && !claims.VerifyIssuer(auth.Issuer, true) {
			abortUnauthorized(c, "token 签发者不匹配")
			return
		}

		c.Set(scopeKey, schema.UserScope{
			UserID:         subject(claims),
			AllowedTeamIDs: stringList(claims[teamsClaim]),
		})
		c.Next()
	}
}

func parseClaims(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 确保 token 的签名方法是我们期望的
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("非预期的签名方法")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("无效的 token claims")
	}
	return claims, nil
}

// subject 读取 sub claim，JWT 解析数字时默认为 float64。
func subject(claims jwt.MapClaims) string {
	switch sub := claims["sub"].(type) {
	case string:
		return sub
	case float64:
		return fmt.Sprintf("%.0f", sub)
	}
	return ""
}

// stringList 接受 JSON 数组或逗号分隔的字符串。
func stringList(v interface{}) []string {
	var out []string
	switch list := v.(type) {
	case []interface{}:
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("Unauthorized", message))
}

// ScopeFrom 取出 ScopeMiddleware 设置的 UserScope。
func ScopeFrom(c *gin.Context) schema.UserScope {
	if v, ok := c.Get(scopeKey); ok {
		if scope, ok := v.(schema.UserScope); ok {
			return scope
		}
	}
	return schema.UserScope{}
}

// RequestLogger 以结构化日志记录每个请求，替代 gin 自带的文本日志。
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if scope := ScopeFrom(c); scope.UserID != "" {
			entry = entry.WithField("user_id", scope.UserID)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Info("request served")
	}
}
