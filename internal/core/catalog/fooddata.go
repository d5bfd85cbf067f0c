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

const defaultFoodDataURL = "https://api.nal.usda.gov/fdc/v1"

// FoodData USDA FoodData Central 搜尋客戶端
type FoodData struct {
	client *resty.Client
	apiKey string
}

type fdcSearchResponse struct {
	TotalHits int       `json:"totalHits"`
	Foods     []fdcFood `json:"foods"`
}

type fdcFood struct {
	FDCID       int64  `json:"fdcId"`
	Description string `json:"description"`
	BrandOwner  string `json:"brandOwner"`
	BrandName   string `json:"brandName"`
	Ingredients string `json:"ingredients"`
}

// NewFoodData 建立客戶端
func NewFoodData(cfg config.FoodDataConfig, timeout time.Duration) *FoodData {
	base := cfg.BaseURL
	if base == "" {
		base = defaultFoodDataURL
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "DEMO_KEY"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &FoodData{client: client, apiKey: apiKey}
}

// Name 來源名稱
func (f *FoodData) Name() string {
	return SourceFoodData
}

// Search 以關鍵字搜尋食品
func (f *FoodData) Search(ctx context.Context, query string, limit int) ([]common.Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	var result fdcSearchResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":    query,
			"pageSize": strconv.Itoa(limit),
			"api_key":  f.apiKey,
		}).
		SetResult(&result).
		Get("/foods/search")
	if err != nil {
		return nil, fmt.Errorf("fooddata search: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fooddata search: status %d", resp.StatusCode())
	}

	candidates := make([]common.Candidate, 0, len(result.Foods))
	for _, food := range result.Foods {
		name := strings.TrimSpace(food.Description)
		if name == "" {
			continue
		}
		brand := strings.TrimSpace(food.BrandName)
		if brand == "" {
			brand = strings.TrimSpace(food.BrandOwner)
		}
		if brand != "" {
			name = brand + " " + name
		}
		candidates = append(candidates, common.Candidate{
			Source:      SourceFoodData,
			Name:        name,
			Ingredients: food.Ingredients,
			ID:          strconv.FormatInt(food.FDCID, 10),
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
