package composition

import (
	"context"
	"errors"
	"time"

	"composition-resolver/internal/core/catalog"
	"composition-resolver/internal/infrastructure/metrics"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 預設限制
const (
	DefaultPerSourceTimeout = 15 * time.Second
	DefaultMaxPerSource     = 5
	DefaultMaxTotal         = 10
	maxIngredientChars      = 500
)

// AggregatorOptions 彙整限制
type AggregatorOptions struct {
	PerSourceTimeout time.Duration
	MaxPerSource     int
	MaxTotal         int
}

// Aggregator 同時查詢多個型錄，只保留成功的結果
type Aggregator struct {
	catalogs []catalog.Catalog
	opts     AggregatorOptions
	metrics  *metrics.Metrics
}

// NewAggregator 建立彙整器，結果依 catalogs 順序合併
func NewAggregator(catalogs []catalog.Catalog, opts AggregatorOptions, m *metrics.Metrics) *Aggregator {
	if opts.PerSourceTimeout <= 0 {
		opts.PerSourceTimeout = DefaultPerSourceTimeout
	}
	if opts.MaxPerSource <= 0 {
		opts.MaxPerSource = DefaultMaxPerSource
	}
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = DefaultMaxTotal
	}
	return &Aggregator{catalogs: catalogs, opts: opts, metrics: m}
}

// Aggregate 查詢所有型錄。單一來源失敗或逾時只會略過該來源，不會回傳錯誤。
func (a *Aggregator) Aggregate(ctx context.Context, query string) []common.Candidate {
	if a == nil || query == "" || len(a.catalogs) == 0 {
		return nil
	}

	results := make([][]common.Candidate, len(a.catalogs))
	var g errgroup.Group
	for i, c := range a.catalogs {
		i, c := i, c
		g.Go(func() error {
			results[i] = a.lookup(ctx, c, query)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]common.Candidate, 0, a.opts.MaxTotal)
	for _, list := range results {
		for _, cand := range list {
			if len(merged) >= a.opts.MaxTotal {
				return merged
			}
			merged = append(merged, cand)
		}
	}
	return merged
}

// lookup 以獨立超時查詢單一型錄
func (a *Aggregator) lookup(ctx context.Context, c catalog.Catalog, query string) []common.Candidate {
	lookupCtx, cancel := context.WithTimeout(ctx, a.opts.PerSourceTimeout)
	defer cancel()

	start := time.Now()
	found, err := c.Search(lookupCtx, query, a.opts.MaxPerSource)
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		a.metrics.ObserveCatalog(c.Name(), outcome)
		common.LogWarn("Catalog lookup failed",
			zap.String("source", c.Name()),
			zap.String("outcome", outcome),
			zap.Duration("耗時", time.Since(start)),
			zap.Error(err),
		)
		return nil
	}
	a.metrics.ObserveCatalog(c.Name(), metrics.OutcomeSuccess)

	out := make([]common.Candidate, 0, len(found))
	for _, cand := range found {
		if len(out) >= a.opts.MaxPerSource {
			break
		}
		if cand.Source == "" {
			cand.Source = c.Name()
		}
		cand.Ingredients = common.Truncate(common.CollapseWhitespace(cand.Ingredients), maxIngredientChars)
		out = append(out, cand)
	}
	return out
}
