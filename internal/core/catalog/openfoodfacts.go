package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"composition-resolver/internal/infrastructure/config"
	"composition-resolver/internal/pkg/common"

	"github.com/go-resty/resty/v2"
)

const defaultOpenFoodFactsURL = "https://world.openfoodfacts.org"

// OpenFoodFacts Open Food Facts 搜尋客戶端
type OpenFoodFacts struct {
	client *resty.Client
}

type offSearchResponse struct {
	Count    int          `json:"count"`
	Products []offProduct `json:"products"`
}

type offProduct struct {
	Code            string `json:"code"`
	ProductName     string `json:"product_name"`
	GenericName     string `json:"generic_name"`
	Brands          string `json:"brands"`
	IngredientsText string `json:"ingredients_text"`
}

// NewOpenFoodFacts 建立客戶端
func NewOpenFoodFacts(cfg config.OpenFoodFactsConfig, userAgent string, timeout time.Duration) *OpenFoodFacts {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenFoodFactsURL
	}
	if userAgent == "" {
		userAgent = "composition-resolver/1.0"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &OpenFoodFacts{client: client}
}

// Name 來源名稱
func (o *OpenFoodFacts) Name() string {
	return SourceOpenFoodFacts
}

// Search 以關鍵字搜尋產品
func (o *OpenFoodFacts) Search(ctx context.Context, query string, limit int) ([]common.Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	var result offSearchResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search_terms":  query,
			"search_simple": "1",
			"action":        "process",
			"json":          "1",
			"page_size":     strconv.Itoa(limit),
			"fields":        "code,product_name,generic_name,brands,ingredients_text",
		}).
		SetResult(&result).
		Get("/cgi/search.pl")
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts search: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("openfoodfacts search: status %d", resp.StatusCode())
	}

	candidates := make([]common.Candidate, 0, len(result.Products))
	for _, p := range result.Products {
		name := strings.TrimSpace(p.ProductName)
		if name == "" {
			name = strings.TrimSpace(p.GenericName)
		}
		if name == "" {
			continue
		}
		if brand := strings.TrimSpace(strings.Split(p.Brands, ",")[0]); brand != "" {
			name = brand + " " + name
		}
		candidates = append(candidates, common.Candidate{
			Source:      SourceOpenFoodFacts,
			Name:        name,
			Ingredients: p.IngredientsText,
			ID:          p.Code,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
