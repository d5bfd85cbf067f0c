package composition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`500`, 500},
		{`"500 g"`, 500},
		{`"1,000 ml"`, 1000},
		{`"2.500 g"`, 2500},
		{`"0,75 l"`, 0.75},
		{`"12.5%"`, 12.5},
		{`"about"`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var f flexNumber
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &f))
			assert.InDelta(t, tt.want, float64(f), 1e-9)
		})
	}
}
