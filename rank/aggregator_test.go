package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/utils"
)

func candidate(id string, scores map[string]float64, meta map[string]any) *core.Candidate {
	c := core.NewCandidate(id)
	for k, v := range scores {
		c.SetScore(k, v)
	}
	for k, v := range meta {
		c.Meta[k] = v
	}
	return c
}

func TestAggregator_WeightedSum(t *testing.T) {
	agg := NewAggregator(core.MustWeights(core.DefaultWeightsConfig()))
	c := candidate("m1", map[string]float64{
		core.ComponentCollaborative: 0.8,
		core.ComponentContent:       0.6,
		core.ComponentGraph:         0.4,
		core.ComponentSentiment:     0.9,
		core.ComponentPopularity:    0.5,
	}, nil)

	sc := agg.Score(&core.Request{UserID: "u1", TopK: 5}, c)
	want := 0.35*0.8 + 0.25*0.6 + 0.20*0.4 + 0.10*0.9 + 0.05*0.5
	assert.InDelta(t, want, sc.Score, 1e-6)
	assert.NotContains(t, sc.Components, core.ComponentContext, "no request context, no context component")
}

func TestAggregator_MissingComponentsCountAsZero(t *testing.T) {
	agg := NewAggregator(core.MustWeights(core.DefaultWeightsConfig()))
	sc := agg.Score(nil, candidate("m1", map[string]float64{core.ComponentGraph: 1}, nil))
	assert.InDelta(t, 0.20, sc.Score, 1e-6)
}

func TestAggregator_ContextComponent(t *testing.T) {
	agg := NewAggregator(core.MustWeights(core.DefaultWeightsConfig()))
	req := &core.Request{UserID: "u1", TopK: 5, Context: map[string]any{"hour": 23, "mood": "tense"}}
	c := candidate("m1", map[string]float64{core.ComponentCollaborative: 1}, map[string]any{
		"runtime": 95,
		"moods":   []string{"tense", "dark"},
	})

	sc := agg.Score(req, c)
	assert.InDelta(t, 1.0, sc.Components[core.ComponentContext], 1e-6)
	assert.InDelta(t, 0.35+0.05, sc.Score, 1e-6)
	assert.NotContains(t, c.Scores, core.ComponentContext, "candidate is not mutated")
}

func TestAggregator_OverweightedConfigStaysLinear(t *testing.T) {
	cfg := core.DefaultWeightsConfig()
	cfg.Collaborative += 0.01
	w, err := core.NewWeights(cfg)
	require.NoError(t, err)
	agg := NewAggregator(w)

	scores := map[string]float64{}
	for _, comp := range []string{core.ComponentCollaborative, core.ComponentContent, core.ComponentGraph, core.ComponentSentiment, core.ComponentPopularity} {
		scores[comp] = 1
	}
	sc := agg.Score(nil, candidate("m1", scores, nil))

	var want float64
	for comp, v := range sc.Components {
		want += w.Of(comp) * v
	}
	assert.InDelta(t, want, sc.Score, 1e-6)
	assert.LessOrEqual(t, sc.Score, 1.0)
}

func TestAggregator_RankOrderAndTies(t *testing.T) {
	agg := NewAggregator(core.MustWeights(core.DefaultWeightsConfig()))
	cands := []*core.Candidate{
		candidate("b", map[string]float64{core.ComponentContent: 0.4}, nil),
		candidate("c", map[string]float64{core.ComponentCollaborative: 0.9}, nil),
		candidate("a", map[string]float64{core.ComponentContent: 0.4}, nil),
		nil,
	}
	cands[1].PutLabel(utils.LabelRecallSource, utils.Label{Value: "recall.collaborative"})

	ranked := agg.Rank(nil, cands)
	require.Len(t, ranked, 3)
	assert.Equal(t, "c", ranked[0].ID)
	assert.Equal(t, "a", ranked[1].ID, "ties broken by id")
	assert.Equal(t, "b", ranked[2].ID)
	assert.NotContains(t, ranked[0].Meta, utils.LabelRecallSource, "provenance stays out of output metadata")
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestContextScorer(t *testing.T) {
	var s ContextScorer
	cases := []struct {
		name string
		ctx  map[string]any
		meta map[string]any
		want float64
		ok   bool
	}{
		{name: "no context", ctx: nil, want: 0, ok: false},
		{name: "base", ctx: map[string]any{"device": "tv"}, want: 0.5, ok: true},
		{name: "late short film", ctx: map[string]any{"hour": 22}, meta: map[string]any{"runtime": 90}, want: 0.7, ok: true},
		{name: "late default runtime", ctx: map[string]any{"hour": 23}, want: 0.5, ok: true},
		{name: "weekend epic", ctx: map[string]any{"hour": 14, "is_weekend": true}, meta: map[string]any{"runtime": 180}, want: 0.6, ok: true},
		{name: "weekend without hour", ctx: map[string]any{"is_weekend": "true"}, meta: map[string]any{"runtime": 180}, want: 0.5, ok: true},
		{name: "mood match", ctx: map[string]any{"mood": "uplifting"}, meta: map[string]any{"moods": []any{"uplifting"}}, want: 0.8, ok: true},
		{name: "mobile cinematography", ctx: map[string]any{"device": "mobile"}, meta: map[string]any{"cinematography_rating": 4.5}, want: 0.6, ok: true},
		{
			name: "clamped",
			ctx:  map[string]any{"hour": 23, "mood": "dark", "device": "mobile"},
			meta: map[string]any{"runtime": 80, "moods": []string{"dark"}, "cinematography_rating": 5},
			want: 1, ok: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := s.Score(tc.ctx, tc.meta)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestWeightsValidation(t *testing.T) {
	_, err := core.NewWeights(core.DefaultWeightsConfig())
	require.NoError(t, err)

	bad := core.DefaultWeightsConfig()
	bad.Graph = 0.5
	_, err = core.NewWeights(bad)
	assert.Error(t, err, "sum above tolerance")

	neg := core.DefaultWeightsConfig()
	neg.Collaborative = 0.45
	neg.Popularity = -0.05
	_, err = core.NewWeights(neg)
	assert.Error(t, err)

	near := core.DefaultWeightsConfig()
	near.Context = 0.055
	_, err = core.NewWeights(near)
	assert.NoError(t, err, "within ±0.01")
}
