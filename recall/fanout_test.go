package recall

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/utils"
)

func staticSource(name, component string, ids ...string) *SourceFunc {
	return &SourceFunc{
		SourceName: name,
		Comp:       component,
		Fn: func(_ context.Context, _ string, k int, _ map[string]any) ([]*core.Candidate, error) {
			out := make([]*core.Candidate, 0, len(ids))
			for i, id := range ids {
				out = append(out, newCandidate(id, name, component, 1-float64(i)*0.1))
			}
			if len(out) > k {
				out = out[:k]
			}
			return out, nil
		},
	}
}

func failingSource(name string, err error) *SourceFunc {
	return &SourceFunc{
		SourceName: name,
		Comp:       core.ComponentGraph,
		Fn: func(context.Context, string, int, map[string]any) ([]*core.Candidate, error) {
			return nil, err
		},
	}
}

func candidateIDs(cs []*core.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func request() *core.Request {
	return &core.Request{UserID: "u1", TopK: 10}
}

func TestAllotment(t *testing.T) {
	assert.Equal(t, 40, Allotment(100, 0.4))
	assert.Equal(t, 10, Allotment(100, 0.1))
	assert.Equal(t, 1, Allotment(5, 0.1), "positive fraction gets at least one slot")
	assert.Equal(t, 0, Allotment(100, 0))
	assert.Equal(t, 0, Allotment(0, 0.5))
}

func TestFanout_PartialFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	panicky := &SourceFunc{
		SourceName: "panicky",
		Comp:       core.ComponentContent,
		Fn: func(context.Context, string, int, map[string]any) ([]*core.Candidate, error) {
			panic("boom")
		},
	}
	f := NewFanout([]Entry{
		{Source: staticSource("cf", core.ComponentCollaborative, "a", "b"), Fraction: 0.4, Priority: 0},
		{Source: panicky, Fraction: 0.3, Priority: 1},
		{Source: failingSource("graph", errors.New("connection refused")), Fraction: 0.2, Priority: 2},
		{Source: staticSource("trending", core.ComponentPopularity, "c", "a"), Fraction: 0.1, Priority: 3},
	}, WithMetrics(m))

	res, err := f.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, candidateIDs(res.Candidates))

	failures := res.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "panicky", failures[0].Name)
	assert.Contains(t, failures[0].Err.Error(), "panic: boom")
	assert.True(t, core.IsSourceUnavailable(failures[1].Err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFailures.WithLabelValues("graph", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFailures.WithLabelValues("panicky", "error")))
}

func TestFanout_SourceTimeout(t *testing.T) {
	stuck := &SourceFunc{
		SourceName: "stuck",
		Comp:       core.ComponentGraph,
		Fn: func(context.Context, string, int, map[string]any) ([]*core.Candidate, error) {
			// 忽略 ctx 的慢源
			time.Sleep(500 * time.Millisecond)
			return []*core.Candidate{core.NewCandidate("late")}, nil
		},
	}
	f := NewFanout([]Entry{
		{Source: stuck, Fraction: 0.5},
		{Source: staticSource("cf", core.ComponentCollaborative, "a"), Fraction: 0.5, Priority: 1},
	}, WithSourceTimeout(30*time.Millisecond))

	start := time.Now()
	res, err := f.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, []string{"a"}, candidateIDs(res.Candidates))

	require.Len(t, res.Failures(), 1)
	rep := res.Failures()[0]
	assert.Equal(t, "stuck", rep.Name)
	assert.ErrorIs(t, rep.Err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", failureReason(rep.Err))
}

func TestFanout_CallerCanceled(t *testing.T) {
	f := NewFanout([]Entry{{Source: staticSource("cf", core.ComponentCollaborative, "a"), Fraction: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Generate(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFanout_PriorityOrderAndFirstWins(t *testing.T) {
	// 注册顺序与优先级相反
	f := NewFanout([]Entry{
		{Source: staticSource("low", core.ComponentPopularity, "x", "shared"), Fraction: 0.5, Priority: 5},
		{Source: staticSource("high", core.ComponentCollaborative, "shared", "y"), Fraction: 0.5, Priority: 1},
	})
	res, err := f.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "y", "x"}, candidateIDs(res.Candidates))
	assert.Equal(t, "high", res.Reports[0].Name)

	shared := res.Candidates[0]
	assert.Contains(t, shared.Scores, core.ComponentCollaborative)
	assert.NotContains(t, shared.Scores, core.ComponentPopularity)
	assert.Equal(t, "high|low", shared.Labels[utils.LabelRecallSource].Value)
}

func TestFanout_UnionMerge(t *testing.T) {
	f := NewFanout([]Entry{
		{Source: staticSource("cf", core.ComponentCollaborative, "shared", "y"), Fraction: 0.5},
		{Source: staticSource("trending", core.ComponentPopularity, "shared"), Fraction: 0.5, Priority: 1},
	}, WithMergeStrategy(MergeUnion))

	res, err := f.Generate(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, []string{"shared", "y"}, candidateIDs(res.Candidates))
	assert.InDelta(t, 1.0, res.Candidates[0].Scores[core.ComponentCollaborative], 1e-9)
	assert.InDelta(t, 1.0, res.Candidates[0].Scores[core.ComponentPopularity], 1e-9)
}

func TestFanout_AllotmentTruncatesAndSkipsZero(t *testing.T) {
	var calls atomic.Int32
	greedy := &SourceFunc{
		SourceName: "greedy",
		Comp:       core.ComponentContent,
		Fn: func(_ context.Context, _ string, k int, _ map[string]any) ([]*core.Candidate, error) {
			calls.Add(1)
			// 不遵守 k 的源
			out := make([]*core.Candidate, 0, 10)
			for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"} {
				out = append(out, core.NewCandidate(id))
			}
			return out, nil
		},
	}
	never := &SourceFunc{
		SourceName: "never",
		Comp:       core.ComponentGraph,
		Fn: func(context.Context, string, int, map[string]any) ([]*core.Candidate, error) {
			t.Error("zero allotment source must not be called")
			return nil, nil
		},
	}
	f := NewFanout([]Entry{
		{Source: greedy, Fraction: 0.3},
		{Source: never, Fraction: 0},
	}, WithPoolSize(10))

	res, err := f.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 3)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, res.Reports[0].Count)
	assert.Equal(t, 0, res.Reports[1].Allotment)
}

func TestFanout_DoesNotMutateSourceCandidates(t *testing.T) {
	owned := newCandidate("a", "cf", core.ComponentCollaborative, 0.9)
	src := &SourceFunc{
		SourceName: "cf",
		Comp:       core.ComponentCollaborative,
		Fn: func(context.Context, string, int, map[string]any) ([]*core.Candidate, error) {
			return []*core.Candidate{owned}, nil
		},
	}
	f := NewFanout([]Entry{{Source: src, Fraction: 1}})
	_, err := f.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.NotContains(t, owned.Labels, utils.LabelRecallPriority)
}

func TestFanout_NoEntries(t *testing.T) {
	res, err := NewFanout(nil).Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}
