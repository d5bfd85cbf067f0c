package composition

import (
	"net/http"
	"strings"
	"time"

	compositionCore "composition-resolver/internal/core/composition"
	"composition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SuggestRequest 物品描述，所有欄位皆可省略
type SuggestRequest struct {
	Title    string              `json:"title,omitempty"`
	Brand    string              `json:"brand,omitempty"`
	Category string              `json:"category,omitempty"`
	Type     string              `json:"type,omitempty"`
	IDs      []common.Identifier `json:"ids,omitempty"`
	Query    string              `json:"query,omitempty"`
	Quantity *float64            `json:"quantity,omitempty"`
}

// HandleSuggestFood 食品組成建議
func (h *Handler) HandleSuggestFood(c *gin.Context) {
	h.handleResolve(c, compositionCore.KindFood)
}

// HandleDecomposeNonFood 非食品物料拆解
func (h *Handler) HandleDecomposeNonFood(c *gin.Context) {
	h.handleResolve(c, compositionCore.KindNonFood)
}

func (h *Handler) handleResolve(c *gin.Context, kind compositionCore.Kind) {
	startTime := time.Now()
	reqID := requestID(c)

	var req SuggestRequest
	if !h.bindBody(c, reqID, &req) {
		return
	}

	hint := providerHint(c)
	common.LogInfo("收到組成解析請求",
		zap.String("request_id", reqID),
		zap.String("kind", string(kind)),
		zap.String("title", req.Title),
		zap.String("query", req.Query),
		zap.Int("ids", len(req.IDs)),
		zap.String("provider", hint.Name),
		zap.Bool("caller_key", hint.APIKey != ""),
	)

	resolveReq := compositionCore.ResolveRequest{
		Kind:     kind,
		Title:    strings.TrimSpace(req.Title),
		Brand:    strings.TrimSpace(req.Brand),
		Category: strings.TrimSpace(req.Category),
		Type:     strings.TrimSpace(req.Type),
		IDs:      req.IDs,
		Query:    strings.TrimSpace(req.Query),
		Provider: hint,
	}
	if req.Quantity != nil && *req.Quantity > 0 {
		resolveReq.Quantity = *req.Quantity
	}

	res := h.resolver.Resolve(c.Request.Context(), resolveReq)
	if res == nil || res.Empty || res.Item == nil {
		common.LogInfo("無可解析的查詢",
			zap.String("request_id", reqID),
			zap.Duration("耗時", time.Since(startTime)),
		)
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	common.LogInfo("組成解析完成",
		zap.String("request_id", reqID),
		zap.String("name", res.Item.Name),
		zap.String("provider", res.Provider),
		zap.Bool("fallback", res.Fallback),
		zap.Int("candidates", res.Candidates),
		zap.Duration("耗時", time.Since(startTime)),
	)
	c.JSON(http.StatusOK, res.Item)
}
