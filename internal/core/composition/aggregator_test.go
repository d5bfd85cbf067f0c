package composition

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"composition-resolver/internal/core/catalog"
	"composition-resolver/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeCatalog struct {
	name    string
	results []common.Candidate
	err     error
	delay   time.Duration
	calls   int32
}

func (f *fakeCatalog) Name() string { return f.name }

func (f *fakeCatalog) Search(ctx context.Context, query string, limit int) ([]common.Candidate, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func candidates(source string, n int) []common.Candidate {
	out := make([]common.Candidate, n)
	for i := range out {
		out[i] = common.Candidate{Source: source, Name: source + "-" + string(rune('a'+i)), ID: source}
	}
	return out
}

func TestAggregator_OneSourceFailing(t *testing.T) {
	good := &fakeCatalog{name: "openfoodfacts", results: candidates("openfoodfacts", 2)}
	bad := &fakeCatalog{name: "fooddata", err: errors.New("503")}

	alone := NewAggregator([]catalog.Catalog{good}, AggregatorOptions{}, nil).Aggregate(context.Background(), "bread")
	withFailure := NewAggregator([]catalog.Catalog{good, bad}, AggregatorOptions{}, nil).Aggregate(context.Background(), "bread")

	assert.Equal(t, alone, withFailure)
	assert.Equal(t, int32(1), atomic.LoadInt32(&bad.calls))
}

func TestAggregator_TimeoutOnlyAbortsThatSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := &fakeCatalog{name: "fooddata", delay: time.Second, results: candidates("fooddata", 1)}
	fast := &fakeCatalog{name: "openfoodfacts", results: candidates("openfoodfacts", 1)}

	a := NewAggregator([]catalog.Catalog{slow, fast}, AggregatorOptions{PerSourceTimeout: 30 * time.Millisecond}, nil)
	start := time.Now()
	got := a.Aggregate(context.Background(), "bread")

	require.Len(t, got, 1)
	assert.Equal(t, "openfoodfacts", got[0].Source)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAggregator_CapsAndOrder(t *testing.T) {
	first := &fakeCatalog{name: "openfoodfacts", results: candidates("openfoodfacts", 8)}
	second := &fakeCatalog{name: "fooddata", results: candidates("fooddata", 8)}

	got := NewAggregator([]catalog.Catalog{first, second}, AggregatorOptions{MaxPerSource: 4, MaxTotal: 6}, nil).
		Aggregate(context.Background(), "bread")

	require.Len(t, got, 6)
	for i := 0; i < 4; i++ {
		assert.Equal(t, "openfoodfacts", got[i].Source)
	}
	assert.Equal(t, "fooddata", got[4].Source)
}

func TestAggregator_NormalizesIngredients(t *testing.T) {
	long := strings.Repeat("sugar,   ", 200)
	c := &fakeCatalog{name: "openfoodfacts", results: []common.Candidate{{Name: "Candy", Ingredients: long}}}

	got := NewAggregator([]catalog.Catalog{c}, AggregatorOptions{}, nil).Aggregate(context.Background(), "candy")

	require.Len(t, got, 1)
	assert.Equal(t, "openfoodfacts", got[0].Source)
	assert.LessOrEqual(t, len([]rune(got[0].Ingredients)), maxIngredientChars)
	assert.NotContains(t, got[0].Ingredients, "  ")
}

func TestAggregator_EmptyQuery(t *testing.T) {
	c := &fakeCatalog{name: "openfoodfacts"}
	assert.Empty(t, NewAggregator([]catalog.Catalog{c}, AggregatorOptions{}, nil).Aggregate(context.Background(), ""))
	assert.Equal(t, int32(0), atomic.LoadInt32(&c.calls))

	var nilAggregator *Aggregator
	assert.Empty(t, nilAggregator.Aggregate(context.Background(), "bread"))
}
