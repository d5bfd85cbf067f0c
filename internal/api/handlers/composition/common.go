package composition

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"composition-resolver/internal/api/middleware"
	"composition-resolver/internal/core/ai/provider"
	compositionCore "composition-resolver/internal/core/composition"
	"composition-resolver/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Resolver 編排器提供給 handler 的能力
type Resolver interface {
	Resolve(ctx context.Context, req compositionCore.ResolveRequest) *compositionCore.Resolution
	Extract(ctx context.Context, req compositionCore.ExtractRequest) *compositionCore.ExtractResult
}

// Handler 組成解析 API 處理器
type Handler struct {
	resolver Resolver
	debug    bool
}

// NewHandler 創建處理器
func NewHandler(resolver Resolver, debug bool) *Handler {
	return &Handler{
		resolver: resolver,
		debug:    debug,
	}
}

// providerHint 從 Authorization 與 X-AI-Provider 標頭讀取供應商偏好
func providerHint(c *gin.Context) provider.Hint {
	var key string
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		key = strings.TrimSpace(auth[7:])
	}
	return provider.Hint{
		Name:   c.GetHeader(middleware.ProviderHeader),
		APIKey: key,
	}.Normalize()
}

// requestID 取得請求 ID，中間件未設置時產生新的
func requestID(c *gin.Context) string {
	if id := requestid.Get(c); id != "" {
		return id
	}
	return common.GenerateUUID()
}

// bindBody 解析請求體，失敗時寫入 INVALID_REQUEST
func (h *Handler) bindBody(c *gin.Context, reqID string, v interface{}) bool {
	err := common.DecodeJSON(c.Request.Body, v)
	if errors.Is(err, io.EOF) {
		// 空請求體視為空物件
		return true
	}
	if err != nil {
		common.LogError("無效的請求格式",
			zap.String("request_id", reqID),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, common.ErrInvalidRequest.Wrap(err).Response(h.debug))
		return false
	}
	return true
}
