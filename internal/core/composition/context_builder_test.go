package composition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextBuilder_Build(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://a.example": "first page",
		"https://c.example": "third page",
	}}
	b := NewContextBuilder(f, 0)

	got := b.Build(context.Background(), []string{"https://a.example", "https://b.example", "https://c.example"})

	assert.Equal(t, "first page\n\nthird page", got)
	assert.Len(t, f.urls, 3)
}

func TestContextBuilder_Truncates(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example": "0123456789"}}
	assert.Equal(t, "01234", NewContextBuilder(f, 5).Build(context.Background(), []string{"https://a.example"}))

	var nilBuilder *ContextBuilder
	assert.Empty(t, nilBuilder.Build(context.Background(), []string{"https://a.example"}))
}
