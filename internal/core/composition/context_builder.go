package composition

import (
	"context"
	"strings"

	"composition-resolver/internal/core/scrape"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageFetcher 取得網頁內容
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.Page, error)
}

// ContextBuilder 抓取參考網頁並組成上下文文字
type ContextBuilder struct {
	fetcher  PageFetcher
	maxChars int
}

// NewContextBuilder 建立 ContextBuilder，maxChars <= 0 時不截斷
func NewContextBuilder(fetcher PageFetcher, maxChars int) *ContextBuilder {
	return &ContextBuilder{fetcher: fetcher, maxChars: maxChars}
}

// Build 依序合併各網頁的文字與結構化資料，個別失敗只記錄並略過
func (b *ContextBuilder) Build(ctx context.Context, urls []string) string {
	if b == nil || b.fetcher == nil || len(urls) == 0 {
		return ""
	}

	texts := make([]string, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			page, err := b.fetcher.Fetch(ctx, u)
			if err != nil {
				common.LogWarn("Context fetch failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			texts[i] = page.ContextText()
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return common.Truncate(strings.Join(parts, "\n\n"), b.maxChars)
}
