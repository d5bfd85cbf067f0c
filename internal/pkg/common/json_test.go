package common

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want sample
	}{
		{"plain object", `{"name":"Bread","quantity":500}`, sample{"Bread", 500}},
		{"prose around", `Sure! Here it is: {"name":"Bread","quantity":500} hope it helps {x}`, sample{"Bread", 500}},
		{"code fence", "```json\n{\"name\":\"Soup\",\"quantity\":1000}\n```", sample{"Soup", 1000}},
		{"braces inside strings", `{"name":"Jam {strawberry}","quantity":1}`, sample{"Jam {strawberry}", 1}},
		{"unquoted keys", `{name: "Tea", quantity: 250}`, sample{"Tea", 250}},
		{"trailing comma", `{"name":"Tea","quantity":250,}`, sample{"Tea", 250}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sample
			require.NoError(t, ExtractJSON(tt.raw, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoParse(t *testing.T) {
	for _, raw := range []string{"", "   ", "no json here", "{broken", `{"name": }`} {
		var got sample
		err := ExtractJSON(raw, &got)
		require.Error(t, err, raw)
		assert.True(t, IsNoParse(err), raw)
	}
}

func TestQuoteJSONKeys(t *testing.T) {
	assert.Equal(t, `{"a": 1, "b": [ {"c": 2}]}`, QuoteJSONKeys(`{a: 1, b: [ {c: 2}]}`))
}

func TestTruncateAndCollapse(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c "))
	assert.Equal(t, "éé", Truncate("ééé", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestFormatIdentifiers(t *testing.T) {
	got := FormatIdentifiers([]Identifier{{ID: "3017620422003", Registry: "ean"}, {ID: " "}, {ID: "sku-1"}})
	assert.Equal(t, []string{"ean:3017620422003", "sku-1"}, got)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "sk-a...wxyz", MaskSecret("sk-abcdefghijklmnopqrstuvwxyz"))
}

func TestExtractJSON_FailedCandidateLeavesNoFields(t *testing.T) {
	raw := "{\"quantity\":5}\n```json\n{\"name\":\"Wrong\",\"quantity\":\"x\"}\n```"

	var got sample
	require.NoError(t, ExtractJSON(raw, &got))
	assert.Equal(t, sample{Quantity: 5}, got)
}

func TestExtractJSON_RequiresPointer(t *testing.T) {
	var got sample
	assert.True(t, IsNoParse(ExtractJSON(`{"name":"x"}`, got)))
}

func TestDecodeJSON(t *testing.T) {
	var got sample
	require.NoError(t, DecodeJSON(strings.NewReader(`{"name":"Tea"}  `), &got))
	assert.Equal(t, "Tea", got.Name)

	assert.Error(t, DecodeJSON(strings.NewReader(`{"name":"Tea"} {"name":"Jam"}`), &got))
	assert.ErrorIs(t, DecodeJSON(strings.NewReader("  "), &got), io.EOF)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"500", 500},
		{"1,5", 1.5},
		{"1.5", 1.5},
		{"1,000", 1000},
		{"1.000", 1000},
		{"12,500,000", 12500000},
		{"0,750", 0.75},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"-1,000", -1000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
