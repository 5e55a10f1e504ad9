package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/store"
)

type recommendOptions struct {
	fixture  string
	userID   string
	topK     int
	lambda   float64
	filters  []string
	context  []string
	useRedis bool
	pretty   bool
}

func newRecommendCommand() *cobra.Command {
	opts := &recommendOptions{}
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Run one recommendation request against a catalog fixture",
		Long: `Load a JSON catalog fixture (items, ratings, preferences, trending) into the
configured data store, run a single request through the pipeline and print
the recommendations as JSON.

Filters and context are key=value pairs; values are parsed as JSON when
possible, e.g. --filter 'genres=["Drama"]' --filter min_year=1990
--context hour=23 --context mood=relaxed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return recommendE(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.fixture, "fixture", "f", "", "Path to catalog fixture JSON (required)")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "User ID (required)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 10, "Number of recommendations")
	cmd.Flags().Float64Var(&opts.lambda, "lambda", -1, "MMR lambda in [0,1] (default: from config)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Filter key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.context, "context", nil, "Context key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.useRedis, "redis", false, "Use the configured Redis instead of an in-memory store")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", true, "Indent JSON output")
	_ = cmd.MarkFlagRequired("fixture")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func recommendE(cmd *cobra.Command, opts *recommendOptions) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	cfg.Log.Output = cmd.ErrOrStderr()
	logger := logging.New(cfg.Log)

	filters, err := parsePairs(opts.filters)
	if err != nil {
		return fmt.Errorf("--filter: %w", err)
	}
	reqCtx, err := parsePairs(opts.context)
	if err != nil {
		return fmt.Errorf("--context: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var kv core.KeyValueStore
	if opts.useRedis {
		rs, err := store.NewRedisStore(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		kv = rs
	} else {
		kv = store.NewMemoryStore()
	}
	defer kv.Close()

	fx, err := loadFixture(opts.fixture)
	if err != nil {
		return err
	}
	data, err := fx.seed(ctx, kv, cfg.Feature.KeyPrefix, trendingKey(cfg))
	if err != nil {
		return err
	}

	rt, err := config.BuildOrchestrator(cfg, config.Deps{
		Store:   kv,
		CF:      data.cf,
		Content: data.content,
		Logger:  logger,
		Metrics: metrics.New(prometheus.NewRegistry()),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	req := &core.Request{
		UserID:  opts.userID,
		TopK:    opts.topK,
		Filters: filters,
		Context: reqCtx,
	}
	if opts.lambda >= 0 {
		req.Lambda = core.Lambda(opts.lambda)
	}

	recs, err := rt.Orchestrator.GetRecommendations(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(recs)
}

// parsePairs 解析 key=value 列表，value 优先按 JSON 解析，失败时作为字符串。
func parsePairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.New("expected key=value, got " + p)
		}
		var val any
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			val = v
		}
		out[k] = val
	}
	return out, nil
}

// trendingKey 取配置中 trending 召回源使用的有序集合 key。
func trendingKey(cfg *config.Config) string {
	for _, s := range cfg.Recall.Sources {
		if s.Type != config.SourceTrending {
			continue
		}
		if k, ok := s.Options["key"].(string); ok && k != "" {
			return k
		}
	}
	return recall.DefaultTrendingKey
}
