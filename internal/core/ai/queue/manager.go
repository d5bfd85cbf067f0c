package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"composition-resolver/internal/infrastructure/config"
	"composition-resolver/internal/infrastructure/metrics"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
)

// Status 隊列狀態
type Status struct {
	InFlight       int   `json:"in_flight"`
	Waiting        int   `json:"waiting"`
	ProcessedCount int64 `json:"processed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 限制同時進行的模型調用數，超出時排隊，隊列滿則拒絕
type Manager struct {
	slots     chan struct{}
	maxSize   int
	waiting   int64
	processed int64
	metrics   *metrics.Metrics

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager 創建新的隊列管理器
func NewManager(cfg config.QueueConfig, m *metrics.Metrics) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	maxSize := cfg.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	return &Manager{
		slots:   make(chan struct{}, workers),
		maxSize: maxSize,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Acquire 取得一個調用名額，呼叫端完成後必須 Release
func (m *Manager) Acquire(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		m.metrics.QueueAcquired()
		return nil
	default:
	}

	if int(atomic.AddInt64(&m.waiting, 1)) > m.maxSize {
		atomic.AddInt64(&m.waiting, -1)
		common.LogWarn("Request queue is full",
			zap.Int("max_queue_size", m.maxSize),
			zap.Int("workers", cap(m.slots)),
		)
		return common.ErrQueueFull
	}
	defer atomic.AddInt64(&m.waiting, -1)

	select {
	case m.slots <- struct{}{}:
		m.metrics.QueueAcquired()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("queue manager is closed")
	}
}

// Release 歸還名額
func (m *Manager) Release() {
	select {
	case <-m.slots:
		atomic.AddInt64(&m.processed, 1)
		m.metrics.QueueReleased()
	default:
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		InFlight:       len(m.slots),
		Waiting:        int(atomic.LoadInt64(&m.waiting)),
		ProcessedCount: atomic.LoadInt64(&m.processed),
		MaxQueueSize:   m.maxSize,
		Workers:        cap(m.slots),
	}
}

// Close 關閉隊列管理器，等待中的請求將失敗
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}
