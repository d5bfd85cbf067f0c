package composition

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"composition-resolver/internal/api/middleware"
	compositionCore "composition-resolver/internal/core/composition"
	"composition-resolver/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	resolveReq *compositionCore.ResolveRequest
	extractReq *compositionCore.ExtractRequest
	resolution *compositionCore.Resolution
	extraction *compositionCore.ExtractResult
}

func (f *fakeResolver) Resolve(_ context.Context, req compositionCore.ResolveRequest) *compositionCore.Resolution {
	f.resolveReq = &req
	return f.resolution
}

func (f *fakeResolver) Extract(_ context.Context, req compositionCore.ExtractRequest) *compositionCore.ExtractResult {
	f.extractReq = &req
	return f.extraction
}

func newTestRouter(r Resolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(r, false)
	router.POST("/suggest/food", h.HandleSuggestFood)
	router.POST("/decompose/non-food", h.HandleDecomposeNonFood)
	router.POST("/extract", h.HandleExtract)
	return router
}

func doPost(router *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSuggestFood_ReturnsItem(t *testing.T) {
	fake := &fakeResolver{resolution: &compositionCore.Resolution{
		Item: &common.Item{
			Category: "food",
			Name:     "Bread",
			Quantity: 1000,
			Process: &common.Process{Type: "cooking", InputInstances: []common.Input{
				{Instance: common.Item{Category: "food", Name: "Flour", Quantity: 500}, Quantity: 500},
			}},
		},
		Provider: "openrouter",
	}}
	router := newTestRouter(fake)

	rec := doPost(router, "/suggest/food",
		`{"title":" Bread ","brand":"Acme","ids":[{"id":"3017620422003","registry":"gtin"}],"quantity":1000}`,
		map[string]string{"Authorization": "Bearer sk-caller", middleware.ProviderHeader: "Google"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.resolveReq)
	assert.Equal(t, compositionCore.KindFood, fake.resolveReq.Kind)
	assert.Equal(t, "Bread", fake.resolveReq.Title)
	assert.Equal(t, 1000.0, fake.resolveReq.Quantity)
	assert.Equal(t, "gemini", fake.resolveReq.Provider.Name)
	assert.Equal(t, "sk-caller", fake.resolveReq.Provider.APIKey)
	require.Len(t, fake.resolveReq.IDs, 1)

	var item common.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "Bread", item.Name)
	require.NotNil(t, item.Process)
	assert.Equal(t, "cooking", item.Process.Type)
	assert.Equal(t, 500.0, item.Process.InputInstances[0].Quantity)
}

func TestDecomposeNonFood_UsesNonFoodKind(t *testing.T) {
	fake := &fakeResolver{resolution: &compositionCore.Resolution{
		Item: &common.Item{Category: "material", Name: "Chair"},
	}}
	router := newTestRouter(fake)

	rec := doPost(router, "/decompose/non-food", `{"query":"chair"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, compositionCore.KindNonFood, fake.resolveReq.Kind)
	assert.Equal(t, "", fake.resolveReq.Provider.Name)
	assert.Equal(t, "", fake.resolveReq.Provider.APIKey)
}

func TestSuggest_EmptyResolutionWritesEmptyObject(t *testing.T) {
	fake := &fakeResolver{resolution: &compositionCore.Resolution{Empty: true}}
	router := newTestRouter(fake)

	for _, body := range []string{``, `{}`} {
		rec := doPost(router, "/suggest/food", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{}`, rec.Body.String())
	}
}

func TestSuggest_MalformedBody(t *testing.T) {
	fake := &fakeResolver{}
	router := newTestRouter(fake)

	rec := doPost(router, "/suggest/food", `{"title":`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, fake.resolveReq)

	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, common.ErrCodeInvalidRequest, resp.Code)
	assert.Empty(t, resp.Details)
}

func TestSuggest_NegativeQuantityIgnored(t *testing.T) {
	fake := &fakeResolver{resolution: &compositionCore.Resolution{Empty: true}}
	router := newTestRouter(fake)

	doPost(router, "/suggest/food", `{"query":"jam","quantity":-5}`, nil)

	require.NotNil(t, fake.resolveReq)
	assert.Equal(t, 0.0, fake.resolveReq.Quantity)
}

func TestExtract_ReturnsSummaryAndPopulated(t *testing.T) {
	fake := &fakeResolver{extraction: &compositionCore.ExtractResult{
		Summary: "Lemonade",
		Populated: &compositionCore.Populated{
			Instance: common.Item{Category: "food", Name: "Lemonade", Quantity: 1000},
			Process:  &common.Process{Type: "blending", InputInstances: []common.Input{}},
		},
	}}
	router := newTestRouter(fake)

	rec := doPost(router, "/extract",
		`{"text":"Lemonade 1 L","attachments":[{"name":"label.txt","content_type":"text/plain","content":"Ingredients: water"}]}`,
		map[string]string{"Authorization": "bearer sk-x", middleware.ProviderHeader: "openrouter"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.extractReq)
	assert.Equal(t, "Lemonade 1 L", fake.extractReq.Text)
	require.Len(t, fake.extractReq.Attachments, 1)
	assert.Equal(t, "openrouter", fake.extractReq.Provider.Name)
	assert.Equal(t, "sk-x", fake.extractReq.Provider.APIKey)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "summary")
	assert.Contains(t, body, "populated")
	assert.NotContains(t, body, "Fallback")
}

func TestExtract_Empty(t *testing.T) {
	fake := &fakeResolver{extraction: &compositionCore.ExtractResult{Empty: true}}
	router := newTestRouter(fake)

	rec := doPost(router, "/extract", `{"text":"  "}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}
