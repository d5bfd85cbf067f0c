package composition

import (
	"net/http"
	"time"

	compositionCore "composition-resolver/internal/core/composition"
	"composition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExtractRequest 自由文字擷取請求
type ExtractRequest struct {
	Text        string              `json:"text"`
	Attachments []common.Attachment `json:"attachments,omitempty"`
}

// HandleExtract 從文字與附件擷取物品與製程
func (h *Handler) HandleExtract(c *gin.Context) {
	startTime := time.Now()
	reqID := requestID(c)

	var req ExtractRequest
	if !h.bindBody(c, reqID, &req) {
		return
	}

	common.LogInfo("收到擷取請求",
		zap.String("request_id", reqID),
		zap.Int("text_length", len(req.Text)),
		zap.Int("attachments", len(req.Attachments)),
	)

	result := h.resolver.Extract(c.Request.Context(), compositionCore.ExtractRequest{
		Text:        req.Text,
		Attachments: req.Attachments,
		Provider:    providerHint(c),
	})
	if result == nil || result.Empty {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	common.LogInfo("擷取完成",
		zap.String("request_id", reqID),
		zap.Bool("fallback", result.Fallback),
		zap.Duration("耗時", time.Since(startTime)),
	)
	c.JSON(http.StatusOK, result)
}
