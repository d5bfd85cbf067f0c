package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"composition-resolver/internal/infrastructure/config"
	"composition-resolver/internal/infrastructure/metrics"
	"composition-resolver/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultMaxBodyBytes = 2 << 20
	defaultMaxChars     = 20000
)

// Page 擷取後的網頁內容
type Page struct {
	URL            string
	Title          string
	Description    string
	Text           string
	StructuredData []string
}

// ContextText 組合成單一上下文文字
func (p *Page) ContextText() string {
	var sb strings.Builder
	if p.Title != "" {
		sb.WriteString(p.Title)
		sb.WriteString("\n")
	}
	if p.Description != "" {
		sb.WriteString(p.Description)
		sb.WriteString("\n")
	}
	if p.Text != "" {
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	for _, data := range p.StructuredData {
		sb.WriteString(data)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// Fetcher 以 HTTP 取得網頁並抽出可讀文字
type Fetcher struct {
	client       *resty.Client
	allowPrivate bool
	maxBodyBytes int64
	maxChars     int
	metrics      *metrics.Metrics
}

// NewFetcher 建立網頁擷取器
func NewFetcher(cfg config.ScrapeConfig, m *metrics.Metrics) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; composition-resolver/1.0)"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	if cfg.AllowPrivateHosts {
		client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	} else {
		client.SetTransport(guardedTransport(timeout)).
			SetRedirectPolicy(
				resty.FlexibleRedirectPolicy(5),
				resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
					return checkURL(req.URL.String())
				}),
			)
	}

	return &Fetcher{
		client:       client,
		allowPrivate: cfg.AllowPrivateHosts,
		maxBodyBytes: maxBody,
		maxChars:     maxChars,
		metrics:      m,
	}
}

// Fetch 取得並解析單一網頁
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	page, err := f.fetch(ctx, url)
	if err != nil {
		f.metrics.ObservePageFetch(metrics.OutcomeFailure)
		return nil, err
	}
	f.metrics.ObservePageFetch(metrics.OutcomeSuccess)
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*Page, error) {
	if !f.allowPrivate {
		if err := checkURL(url); err != nil {
			return nil, err
		}
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}

	raw, err := io.ReadAll(io.LimitReader(body, f.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	page, err := ParseHTML(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	page.URL = url
	page.Text = common.Truncate(page.Text, f.maxChars)

	common.LogDebug("Fetched page",
		zap.String("url", url),
		zap.Int("bytes", len(raw)),
		zap.Int("text_length", len(page.Text)),
		zap.Int("structured_blocks", len(page.StructuredData)),
	)
	return page, nil
}

// skipped 不輸出文字的元素
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true,
	"iframe": true, "template": true, "nav": true, "head": true,
	"button": true, "form": true,
}

// ParseHTML 抽出標題、描述、可見文字與 JSON-LD
func ParseHTML(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	var text strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.Title == "" {
					page.Title = common.CollapseWhitespace(nodeText(n))
				}
				return
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				prop := strings.ToLower(attr(n, "property"))
				if page.Description == "" && (name == "description" || prop == "og:description") {
					page.Description = common.CollapseWhitespace(attr(n, "content"))
				}
				return
			case "script":
				if strings.Contains(strings.ToLower(attr(n, "type")), "ld+json") {
					if data := strings.TrimSpace(nodeText(n)); data != "" {
						page.StructuredData = append(page.StructuredData, data)
					}
				}
				return
			}
			if skipped[n.Data] {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.Data == "title" || c.Data == "meta" || c.Data == "script") {
						walk(c)
					}
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				text.WriteString(s)
				text.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.Data) {
			text.WriteString("\n")
		}
	}
	walk(doc)

	page.Text = normalizeLines(text.String())
	return page, nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "ul", "ol", "table", "tr",
		"h1", "h2", "h3", "h4", "h5", "h6", "br", "dd", "dt", "footer", "header", "main":
		return true
	}
	return false
}

// normalizeLines 每行壓縮空白並去除空行
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = common.CollapseWhitespace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
