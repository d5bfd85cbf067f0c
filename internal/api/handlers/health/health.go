package health

import (
	"net/http"
	"runtime"
	"time"

	"composition-resolver/internal/core/ai/queue"
	"composition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status          string                 `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`
	Version         string                 `json:"version"`
	Providers       []string               `json:"providers"`
	RegistryVersion string                 `json:"registry_version,omitempty"`
	Runtime         map[string]interface{} `json:"runtime"`
	Queue           *QueueStatus           `json:"queue,omitempty"`
	Cache           map[string]interface{} `json:"cache,omitempty"`
}

// QueueStatus 隊列狀態
type QueueStatus struct {
	InFlight       int   `json:"in_flight"`
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// StatsProvider 可回報統計的元件（快取）
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Checker 健康檢查依賴
type Checker struct {
	Version         string
	RegistryVersion string
	Providers       []string
	Queue           *queue.Manager
	Cache           StatsProvider
}

// HealthCheck 健康檢查處理器
func (h *Checker) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := "ok"
	if len(h.Providers) == 0 {
		// 沒有供應商時仍可回傳啟發式結果
		status = "degraded"
	}

	response := HealthResponse{
		Status:          status,
		Timestamp:       time.Now(),
		Version:         h.Version,
		Providers:       h.Providers,
		RegistryVersion: h.RegistryVersion,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if response.Providers == nil {
		response.Providers = []string{}
	}

	if h.Queue != nil {
		qs := h.Queue.GetQueueStatus()
		response.Queue = &QueueStatus{
			InFlight:       qs.InFlight,
			QueueLength:    qs.Waiting,
			ProcessedCount: qs.ProcessedCount,
			MaxQueueSize:   qs.MaxQueueSize,
			Workers:        qs.Workers,
		}
	}
	if h.Cache != nil {
		response.Cache = h.Cache.Stats()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器，等待隊列已滿時回報未就緒
func (h *Checker) ReadinessCheck(c *gin.Context) {
	if h.Queue != nil {
		qs := h.Queue.GetQueueStatus()
		if qs.MaxQueueSize > 0 && qs.Waiting >= qs.MaxQueueSize {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "busy",
				"queue":  qs,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查處理器
func LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
