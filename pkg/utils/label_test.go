package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{"empty existing", Label{}, Label{Value: "cf", Source: "recall"}, Label{Value: "cf", Source: "recall"}},
		{"empty incoming", Label{Value: "cf", Source: "recall"}, Label{Source: "rank"}, Label{Value: "cf", Source: "recall"}},
		{"same value", Label{Value: "cf", Source: "recall"}, Label{Value: "cf", Source: "rerank"}, Label{Value: "cf", Source: "recall"}},
		{"same source", Label{Value: "cf", Source: "recall"}, Label{Value: "graph", Source: "recall"}, Label{Value: "cf|graph", Source: "recall"}},
		{"new source", Label{Value: "mmr", Source: "rerank"}, Label{Value: "genre", Source: "policy"}, Label{Value: "mmr|genre", Source: "rerank,policy"}},
		{"no existing source", Label{Value: "a"}, Label{Value: "b", Source: "rank"}, Label{Value: "a|b", Source: "rank"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeLabel(tt.existing, tt.incoming))
		})
	}
}
