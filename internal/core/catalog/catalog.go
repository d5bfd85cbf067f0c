package catalog

import (
	"context"

	"composition-resolver/internal/pkg/common"
)

// 型錄來源名稱
const (
	SourceOpenFoodFacts = "openfoodfacts"
	SourceFoodData      = "fooddata"
)

// Catalog 產品型錄搜尋
type Catalog interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]common.Candidate, error)
}
