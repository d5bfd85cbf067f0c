package composition

import (
	"context"
	"strings"
	"time"

	"composition-resolver/internal/core/ai/provider"
	"composition-resolver/internal/core/ai/service"
	"composition-resolver/internal/infrastructure/metrics"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind 解析類型
type Kind string

const (
	KindFood    Kind = "food"
	KindNonFood Kind = "non-food"
)

// DefaultCategory 模型未提供分類時使用
func (k Kind) DefaultCategory() string {
	if k == KindNonFood {
		return "material"
	}
	return "food"
}

// 網頁類型的識別碼 registry
var pageRegistries = map[string]bool{
	"url": true, "web": true, "webpage": true, "web page": true, "page": true,
}

// ResolveRequest 解析請求
type ResolveRequest struct {
	Kind     Kind
	Title    string
	Brand    string
	Category string
	Type     string
	IDs      []common.Identifier
	Query    string
	Quantity float64
	Provider provider.Hint
}

// Resolution 解析結果，Empty 時 Item 為 nil
type Resolution struct {
	Item       *common.Item
	Empty      bool
	Fallback   bool
	Provider   string
	Candidates int
	Extracted  []common.ExtractedIngredient
}

// ExtractRequest 自由文字擷取請求
type ExtractRequest struct {
	Text        string
	Attachments []common.Attachment
	Provider    provider.Hint
}

// Populated 擷取出的物品與製程
type Populated struct {
	Instance common.Item     `json:"instance"`
	Process  *common.Process `json:"process"`
}

// ExtractResult 擷取結果
type ExtractResult struct {
	Summary   string     `json:"summary"`
	Populated *Populated `json:"populated"`
	Empty     bool       `json:"-"`
	Fallback  bool       `json:"-"`
}

// Completer 依序嘗試模型供應商
type Completer interface {
	Complete(ctx context.Context, prompt string, hint provider.Hint, accept service.AcceptFunc) (*service.Response, error)
}

// Options 編排器依賴
type Options struct {
	AI              Completer
	Contexts        *ContextBuilder
	Aggregator      *Aggregator
	Classifier      *Classifier
	Reconciler      *Reconciler
	Metrics         *metrics.Metrics
	MaxContextChars int
}

// Orchestrator 串接上下文、型錄、模型、擷取、調整與分類
type Orchestrator struct {
	ai              Completer
	contexts        *ContextBuilder
	aggregator      *Aggregator
	classifier      *Classifier
	reconciler      *Reconciler
	metrics         *metrics.Metrics
	maxContextChars int
}

// NewOrchestrator 建立編排器
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(nil)
	}
	if opts.Reconciler == nil {
		opts.Reconciler = NewReconciler()
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 8000
	}
	return &Orchestrator{
		ai:              opts.AI,
		contexts:        opts.Contexts,
		aggregator:      opts.Aggregator,
		classifier:      opts.Classifier,
		reconciler:      opts.Reconciler,
		metrics:         opts.Metrics,
		maxContextChars: opts.MaxContextChars,
	}
}

// Registry 目前的製程列舉
func (o *Orchestrator) Registry() *Registry {
	return o.classifier.Registry()
}

// Resolve 解析物品描述為調整後的物品樹，不回傳錯誤
func (o *Orchestrator) Resolve(ctx context.Context, req ResolveRequest) *Resolution {
	start := time.Now()
	if req.Kind == "" {
		req.Kind = KindFood
	}

	query := deriveQuery(req)
	if query == "" {
		o.metrics.ObserveResolution(string(req.Kind), metrics.OutcomeEmpty, time.Since(start))
		return &Resolution{Empty: true}
	}
	locators, identifiers := splitIdentifiers(req.IDs)

	var contextText string
	var candidates []common.Candidate
	var g errgroup.Group
	g.Go(func() error {
		contextText = o.contexts.Build(ctx, locators)
		return nil
	})
	g.Go(func() error {
		candidates = o.aggregator.Aggregate(ctx, query)
		return nil
	})
	_ = g.Wait()

	defaultCategory := req.Category
	if defaultCategory == "" {
		defaultCategory = req.Kind.DefaultCategory()
	}

	prompt := buildResolvePrompt(req.Kind, req, query,
		common.Truncate(contextText, o.maxContextChars), identifiers, candidates, o.Registry().Enum())

	res := &Resolution{Candidates: len(candidates)}
	if parsed, resp, ok := completeJSON[modelItem](ctx, o.ai, prompt, req.Provider); ok {
		res.Provider = resp.Provider
		item := parsed.toItem(defaultCategory)
		res.Item = &item
	} else {
		res.Fallback = true
		res.Item = fallbackItem(defaultCategory, query)
	}

	item := res.Item
	if item.Name == "" {
		item.Name = query
	}
	if item.Process == nil {
		item.Process = &common.Process{InputInstances: []common.Input{}}
	}

	res.Extracted = extractionSource(contextText, candidates)
	if len(res.Extracted) > 0 && allZero(item.Process.InputInstances) {
		item.Process.InputInstances = inputsFromExtracted(res.Extracted, item.Category)
	}

	o.reconciler.Reconcile(item, ReconcileInput{
		Declared:    req.Quantity,
		Query:       query,
		Context:     contextText,
		Identifiers: identifiers,
		Extracted:   res.Extracted,
	})
	o.classifier.ClassifyTree(item, req.Type)

	outcome := metrics.OutcomeSuccess
	if res.Fallback {
		outcome = metrics.OutcomeFallback
	}
	o.metrics.ObserveResolution(string(req.Kind), outcome, time.Since(start))

	common.LogInfo("Resolution completed",
		zap.String("kind", string(req.Kind)),
		zap.String("query", query),
		zap.String("provider", res.Provider),
		zap.Bool("fallback", res.Fallback),
		zap.Int("candidates", res.Candidates),
		zap.Int("extracted", len(res.Extracted)),
		zap.Float64("quantity", item.Quantity),
		zap.Duration("耗時", time.Since(start)),
	)
	return res
}

// Extract 從自由文字與附件擷取物品與製程，不回傳錯誤
func (o *Orchestrator) Extract(ctx context.Context, req ExtractRequest) *ExtractResult {
	start := time.Now()
	text := strings.TrimSpace(req.Text)

	var inline []string
	var urls []string
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.URL) != "" {
			urls = append(urls, strings.TrimSpace(a.URL))
		}
		if isTextAttachment(a) && strings.TrimSpace(a.Content) != "" {
			inline = append(inline, strings.TrimSpace(a.Content))
		}
	}
	if fetched := o.contexts.Build(ctx, urls); fetched != "" {
		inline = append(inline, fetched)
	}
	contextText := strings.Join(inline, "\n\n")

	if text == "" && contextText == "" {
		o.metrics.ObserveResolution("extract", metrics.OutcomeEmpty, time.Since(start))
		return &ExtractResult{Empty: true}
	}

	prompt := buildExtractPrompt(text, common.Truncate(contextText, o.maxContextChars), o.Registry().Enum())

	result := &ExtractResult{}
	var item common.Item
	if parsed, _, ok := completeJSON[modelExtract](ctx, o.ai, prompt, req.Provider); ok {
		result.Summary = strings.TrimSpace(parsed.Summary)
		item = parsed.Instance.toItem("")
		if parsed.Process != nil {
			item.Process = parsed.Process.toProcess(item.Category)
		} else if parsed.Instance != nil && parsed.Instance.unwrap().Process != nil {
			item.Process = parsed.Instance.unwrap().Process.toProcess(item.Category)
		}
	} else {
		result.Fallback = true
	}

	source := text
	if source == "" {
		source = contextText
	}
	if result.Summary == "" {
		result.Summary = common.Truncate(common.CollapseWhitespace(source), 280)
	}
	if item.Name == "" {
		item.Name = firstLine(source, 80)
	}
	if item.Process == nil {
		item.Process = &common.Process{InputInstances: []common.Input{}}
	}

	extracted := ExtractIngredients(text + "\n" + contextText)
	if len(extracted) > 0 && allZero(item.Process.InputInstances) {
		item.Process.InputInstances = inputsFromExtracted(extracted, item.Category)
	}

	o.reconciler.Reconcile(&item, ReconcileInput{
		Query:     text,
		Context:   contextText,
		Extracted: extracted,
	})
	o.classifier.ClassifyTree(&item, "")

	process := item.Process
	item.Process = nil
	result.Populated = &Populated{Instance: item, Process: process}

	outcome := metrics.OutcomeSuccess
	if result.Fallback {
		outcome = metrics.OutcomeFallback
	}
	o.metrics.ObserveResolution("extract", outcome, time.Since(start))
	return result
}

// completeJSON 調用模型，回傳第一個可解析為 T 的回應
func completeJSON[T any](ctx context.Context, ai Completer, prompt string, hint provider.Hint) (*T, *service.Response, bool) {
	if ai == nil {
		return nil, nil, false
	}
	var parsed *T
	resp, err := ai.Complete(ctx, prompt, hint, func(content string) error {
		var v T
		if err := common.ExtractJSON(content, &v); err != nil {
			return err
		}
		parsed = &v
		return nil
	})
	if err != nil || parsed == nil {
		common.LogWarn("Language model unavailable, using heuristic template", zap.Error(err))
		return nil, nil, false
	}
	return parsed, resp, true
}

// deriveQuery 查詢字串：Query，其次 Brand + Title，最後 Type
func deriveQuery(req ResolveRequest) string {
	if q := strings.TrimSpace(req.Query); q != "" {
		return q
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		if brand := strings.TrimSpace(req.Brand); brand != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(brand)) {
			return brand + " " + title
		}
		return title
	}
	return strings.TrimSpace(req.Type)
}

// splitIdentifiers 將網頁定位與其他識別碼分開
func splitIdentifiers(ids []common.Identifier) (locators []string, identifiers []string) {
	var rest []common.Identifier
	for _, id := range ids {
		value := strings.TrimSpace(id.ID)
		if value == "" {
			continue
		}
		lower := strings.ToLower(value)
		if pageRegistries[strings.ToLower(strings.TrimSpace(id.Registry))] ||
			strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			locators = append(locators, value)
			continue
		}
		rest = append(rest, id)
	}
	return locators, common.FormatIdentifiers(rest)
}

// extractionSource 優先使用網頁上下文，其次為第一個帶成分文字的候選
func extractionSource(contextText string, candidates []common.Candidate) []common.ExtractedIngredient {
	if extracted := ExtractIngredients(contextText); len(extracted) > 0 {
		return extracted
	}
	for _, c := range candidates {
		if strings.TrimSpace(c.Ingredients) == "" {
			continue
		}
		text := c.Ingredients
		if !ingredientKeywordRe.MatchString(text) {
			text = "Ingredients: " + text
		}
		if extracted := ExtractIngredients(text); len(extracted) > 0 {
			return extracted
		}
	}
	return nil
}

func inputsFromExtracted(extracted []common.ExtractedIngredient, category string) []common.Input {
	inputs := make([]common.Input, 0, len(extracted))
	for _, ing := range extracted {
		qty := 0.0
		if ing.Percent != nil {
			qty = *ing.Percent
		}
		inputs = append(inputs, common.Input{
			Instance: common.Item{Category: category, Name: ing.Name},
			Quantity: qty,
		})
	}
	return inputs
}

func allZero(inputs []common.Input) bool {
	for _, in := range inputs {
		if in.Quantity > 0 {
			return false
		}
	}
	return true
}

func fallbackItem(category, query string) *common.Item {
	return &common.Item{
		Category: category,
		Name:     query,
		Process:  &common.Process{Type: "", InputInstances: []common.Input{}},
	}
}

func isTextAttachment(a common.Attachment) bool {
	ct := strings.ToLower(a.ContentType)
	return ct == "" || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json") || strings.Contains(ct, "xml")
}

func firstLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\n.!?"); i > 0 {
		s = s[:i]
	}
	return common.Truncate(common.CollapseWhitespace(s), max)
}
