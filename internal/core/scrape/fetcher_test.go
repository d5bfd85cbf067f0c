package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"composition-resolver/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<!doctype html>
<html><head>
<title>  Sunny Orange Juice  </title>
<meta name="description" content="Freshly squeezed">
<script type="application/ld+json">{"@type":"Product","name":"Sunny Orange Juice"}</script>
<style>.x{color:red}</style>
</head>
<body>
<nav>Home | Shop</nav>
<h1>Sunny Orange Juice</h1>
<p>Ingredients: orange juice 98%, pulp 2%.</p>
<script>var tracking = 1;</script>
</body></html>`

func TestParseHTML(t *testing.T) {
	page, err := ParseHTML(strings.NewReader(productPage))
	require.NoError(t, err)

	assert.Equal(t, "Sunny Orange Juice", page.Title)
	assert.Equal(t, "Freshly squeezed", page.Description)
	require.Len(t, page.StructuredData, 1)
	assert.Contains(t, page.StructuredData[0], `"@type":"Product"`)
	assert.Contains(t, page.Text, "Ingredients: orange juice 98%, pulp 2%.")
	assert.NotContains(t, page.Text, "tracking")
	assert.NotContains(t, page.Text, "Home | Shop")
	assert.NotContains(t, page.Text, "color:red")
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	f := NewFetcher(config.ScrapeConfig{Timeout: time.Second, MaxChars: 30, AllowPrivateHosts: true}, nil)

	page, err := f.Fetch(context.Background(), srv.URL+"/product")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/product", page.URL)
	assert.LessOrEqual(t, len([]rune(page.Text)), 30)
	assert.Contains(t, page.ContextText(), "Sunny Orange Juice")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFetcher_BlocksInternalAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("internal server must not be reached: %s", r.URL)
	}))
	defer srv.Close()

	f := NewFetcher(config.ScrapeConfig{Timeout: time.Second}, nil)

	_, err := f.Fetch(context.Background(), srv.URL+"/product")
	assert.ErrorIs(t, err, ErrBlockedURL)
}

func TestCheckURL(t *testing.T) {
	tests := []struct {
		url     string
		blocked bool
	}{
		{"https://shop.example/product/1", false},
		{"http://93.184.216.34/page", false},
		{"ftp://shop.example/file", true},
		{"file:///etc/passwd", true},
		{"gopher://shop.example", true},
		{"http:///nohost", true},
		{"http://localhost:8080/admin", true},
		{"http://127.0.0.1/", true},
		{"http://10.0.0.5/", true},
		{"http://192.168.1.1/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://[::1]/", true},
		{"http://0.0.0.0/", true},
		{"http://metadata.google.internal/", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := checkURL(tt.url)
			if tt.blocked {
				assert.ErrorIs(t, err, ErrBlockedURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDialControl(t *testing.T) {
	assert.ErrorIs(t, dialControl("tcp4", "127.0.0.1:80", nil), ErrBlockedURL)
	assert.ErrorIs(t, dialControl("tcp4", "100.64.1.1:80", nil), ErrBlockedURL)
	assert.ErrorIs(t, dialControl("tcp6", "[fd00::1]:443", nil), ErrBlockedURL)
	assert.NoError(t, dialControl("tcp4", "93.184.216.34:443", nil))
}
