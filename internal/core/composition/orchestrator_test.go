package composition

import (
	"context"
	"errors"
	"sync"
	"testing"

	"composition-resolver/internal/core/ai/provider"
	"composition-resolver/internal/core/ai/service"
	"composition-resolver/internal/core/catalog"
	"composition-resolver/internal/core/scrape"
	"composition-resolver/internal/pkg/common"

	"github.com/stretchr/testify/suite"
)

type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	hints     []provider.Hint
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, hint provider.Hint, accept service.AcceptFunc) (*service.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.hints = append(f.hints, hint)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	for _, content := range f.responses {
		if accept == nil || accept(content) == nil {
			return &service.Response{Content: content, Provider: "fake"}, nil
		}
	}
	return nil, service.ErrAllProvidersFailed
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	urls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*scrape.Page, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	text, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return &scrape.Page{URL: url, Text: text}, nil
}

type OrchestratorTestSuite struct {
	suite.Suite
	ai      *fakeCompleter
	fetcher *fakeFetcher
	off     *fakeCatalog
	fdc     *fakeCatalog
	orch    *Orchestrator
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ai = &fakeCompleter{}
	s.fetcher = &fakeFetcher{pages: map[string]string{}}
	s.off = &fakeCatalog{name: catalog.SourceOpenFoodFacts}
	s.fdc = &fakeCatalog{name: catalog.SourceFoodData}
	s.orch = NewOrchestrator(Options{
		AI:         s.ai,
		Contexts:   NewContextBuilder(s.fetcher, 0),
		Aggregator: NewAggregator([]catalog.Catalog{s.off, s.fdc}, AggregatorOptions{}, nil),
		Classifier: NewClassifier(DefaultRegistry()),
		Reconciler: NewReconciler(),
	})
}

func (s *OrchestratorTestSuite) TestEmptyQueryMakesNoCalls() {
	res := s.orch.Resolve(context.Background(), ResolveRequest{
		Kind: KindFood,
		IDs:  []common.Identifier{{ID: "https://example.com/p", Registry: "url"}},
	})

	s.True(res.Empty)
	s.Nil(res.Item)
	s.Equal(0, s.ai.calls())
	s.Empty(s.fetcher.urls)
	s.Equal(int32(0), s.off.calls)
	s.Equal(int32(0), s.fdc.calls)
}

func (s *OrchestratorTestSuite) TestFallbackTemplateWhenProvidersFail() {
	s.ai.err = service.ErrAllProvidersFailed

	res := s.orch.Resolve(context.Background(), ResolveRequest{Kind: KindFood, Type: "juice"})

	s.Require().NotNil(res.Item)
	s.True(res.Fallback)
	s.Equal("juice", res.Item.Name)
	s.Equal("food", res.Item.Category)
	s.Equal(0.0, res.Item.Quantity)
	s.Require().NotNil(res.Item.Process)
	s.Empty(res.Item.Process.InputInstances)
	s.Equal("blending", res.Item.Process.Type)
}

func (s *OrchestratorTestSuite) TestUnparseableOutputFallsBack() {
	s.ai.responses = []string{"Sorry, I can't do that."}

	res := s.orch.Resolve(context.Background(), ResolveRequest{Kind: KindNonFood, Title: "Desk lamp"})

	s.True(res.Fallback)
	s.Equal("Desk lamp", res.Item.Name)
	s.Equal("material", res.Item.Category)
	s.True(s.orch.Registry().Contains(res.Item.Process.Type))
}

func (s *OrchestratorTestSuite) TestExtractionPreferredOverEmptyModelInputs() {
	s.fetcher.pages["https://shop.example/bread"] = "Country bread. Ingredients: Flour 50%, Water 30%, Salt"
	s.ai.responses = []string{"```json\n{\"name\":\"Country bread\",\"category\":\"bakery\",\"process\":{\"type\":\"baking\",\"inputInstances\":[]}}\n```"}

	res := s.orch.Resolve(context.Background(), ResolveRequest{
		Kind:     KindFood,
		Title:    "Country bread",
		Quantity: 1000,
		IDs: []common.Identifier{
			{ID: "https://shop.example/bread", Registry: "url"},
			{ID: "3017620422003", Registry: "gtin"},
		},
		Provider: provider.Hint{Name: "gemini"},
	})

	s.False(res.Fallback)
	item := res.Item
	s.Equal("Country bread", item.Name)
	s.Equal("bakery", item.Category)
	s.Equal(1000.0, item.Quantity)
	s.Equal("cooking", item.Process.Type)

	inputs := item.Process.InputInstances
	s.Require().Len(inputs, 3)
	s.Equal("Flour", inputs[0].Instance.Name)
	s.Equal(500.0, inputs[0].Quantity)
	s.Equal(300.0, inputs[1].Quantity)
	s.Equal(200.0, inputs[2].Quantity)

	s.Equal([]string{"https://shop.example/bread"}, s.fetcher.urls)
	s.Require().Len(s.ai.prompts, 1)
	s.Contains(s.ai.prompts[0], "gtin:3017620422003")
	s.Contains(s.ai.prompts[0], "Flour 50%")
	s.Equal("gemini", s.ai.hints[0].Name)
}

func (s *OrchestratorTestSuite) TestModelInputsKeptWhenQuantified() {
	s.fetcher.pages["https://shop.example/jam"] = "Ingredients: strawberries 55%, sugar"
	s.ai.responses = []string{`{"name":"Jam","process":{"type":"cooking","inputInstances":[{"instance":{"name":"Fruit"},"quantity":"250 g"},{"name":"Sugar","quantity":150}]}}`}

	res := s.orch.Resolve(context.Background(), ResolveRequest{
		Kind:  KindFood,
		Query: "strawberry jam 400 g",
		IDs:   []common.Identifier{{ID: "https://shop.example/jam", Registry: "web page"}},
	})

	inputs := res.Item.Process.InputInstances
	s.Require().Len(inputs, 2)
	s.Equal("Fruit", inputs[0].Instance.Name)
	s.Equal(250.0, inputs[0].Quantity)
	s.Equal(150.0, inputs[1].Quantity)
	s.Equal(400.0, res.Item.Quantity)
}

func (s *OrchestratorTestSuite) TestCandidateIngredientsUsedWithoutContext() {
	s.ai.err = errors.New("offline")
	s.off.results = []common.Candidate{{Source: catalog.SourceOpenFoodFacts, Name: "Dark chocolate", Ingredients: "sugar 60%, cocoa 40%"}}
	s.fdc.err = errors.New("rate limited")

	res := s.orch.Resolve(context.Background(), ResolveRequest{Kind: KindFood, Query: "Chocolate bar 100 g"})

	s.Equal(1, res.Candidates)
	s.Equal(100.0, res.Item.Quantity)
	inputs := res.Item.Process.InputInstances
	s.Require().Len(inputs, 2)
	s.Equal("sugar", inputs[0].Instance.Name)
	s.Equal(60.0, inputs[0].Quantity)
	s.Equal(40.0, inputs[1].Quantity)
}

func (s *OrchestratorTestSuite) TestFailedFetchTolerated() {
	s.ai.responses = []string{`{"name":"Soap","process":{"type":"mixing","inputInstances":[]}}`}

	res := s.orch.Resolve(context.Background(), ResolveRequest{
		Kind:  KindNonFood,
		Query: "hand soap",
		IDs:   []common.Identifier{{ID: "https://gone.example/soap", Registry: "url"}},
	})

	s.False(res.Fallback)
	s.Equal("Soap", res.Item.Name)
	s.Equal("blending", res.Item.Process.Type)
}

func (s *OrchestratorTestSuite) TestExtract() {
	s.ai.err = errors.New("offline")

	res := s.orch.Extract(context.Background(), ExtractRequest{
		Text: "Homemade lemonade, 1 l. Ingredients: lemon juice 10%, sugar 8%, water",
	})

	s.False(res.Empty)
	s.True(res.Fallback)
	s.NotEmpty(res.Summary)
	s.Require().NotNil(res.Populated)
	s.Equal("Homemade lemonade, 1 l", res.Populated.Instance.Name)
	s.Equal(1000.0, res.Populated.Instance.Quantity)
	s.Nil(res.Populated.Instance.Process)

	inputs := res.Populated.Process.InputInstances
	s.Require().Len(inputs, 3)
	s.Equal(100.0, inputs[0].Quantity)
	s.Equal(80.0, inputs[1].Quantity)
	s.Equal(820.0, inputs[2].Quantity)
	s.True(s.orch.Registry().Contains(res.Populated.Process.Type))
}

func (s *OrchestratorTestSuite) TestExtractUsesModelOutputAndAttachments() {
	s.fetcher.pages["https://maker.example/sheet"] = "Composition: steel 70%, plastic 30%"
	s.ai.responses = []string{`{"summary":"A steel desk frame.","instance":{"name":"Desk frame","category":"furniture","quantity":12000},"process":{"type":"welding","inputInstances":[]}}`}

	res := s.orch.Extract(context.Background(), ExtractRequest{
		Text:        "desk frame",
		Attachments: []common.Attachment{{URL: "https://maker.example/sheet"}, {ContentType: "image/png", Content: "binary"}},
	})

	s.False(res.Fallback)
	s.Equal("A steel desk frame.", res.Summary)
	s.Equal("Desk frame", res.Populated.Instance.Name)
	s.Equal(12000.0, res.Populated.Instance.Quantity)
	s.Equal("assembly", res.Populated.Process.Type)

	inputs := res.Populated.Process.InputInstances
	s.Require().Len(inputs, 2)
	s.Equal(8400.0, inputs[0].Quantity)
	s.Equal(3600.0, inputs[1].Quantity)
	s.NotContains(s.ai.prompts[0], "binary")
}

func (s *OrchestratorTestSuite) TestExtractEmpty() {
	res := s.orch.Extract(context.Background(), ExtractRequest{Text: "   "})
	s.True(res.Empty)
	s.Equal(0, s.ai.calls())
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
