package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/alert"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/config"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/handlers"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
	ledgermocks "github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger/mocks"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/dispatcher"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/memory"
)

func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	logger = newLogger(config.LogConfig{Level: "DEBUG", Format: "text"}, &buf)
	logger.Debug("text line")
	assert.True(t, strings.HasPrefix(buf.String(), "time="))
}

func TestBindHandlers_DefaultFilters(t *testing.T) {
	cfg := loadDefaults(t)
	fs, err := cfg.FilterSet()
	require.NoError(t, err)

	registry := dispatcher.NewRegistry(fs)
	require.NoError(t, bindHandlers(registry, handlers.NewCatalog(slog.Default(), handlers.Options{}), cfg.Filters))

	assert.Equal(t, []string{handlers.TinymanApp}, registry.Handlers("tinyman_app_calls"))
	assert.Equal(t, []string{handlers.PactApp}, registry.Handlers("pact_app_calls"))
	assert.Equal(t, []string{handlers.AssetTransfer}, registry.Handlers("major_asset_transfers"))
	assert.Equal(t, []string{handlers.AlgoTransfer}, registry.Handlers("algo_transfers"))
	assert.Equal(t, []string{handlers.NotedTransaction, handlers.TrackStats}, registry.Handlers("all_transactions"))
}

func TestBindHandlers_Errors(t *testing.T) {
	fs, err := model.NewFilterSet([]model.NamedFilter{{Name: "a"}})
	require.NoError(t, err)
	catalog := handlers.NewCatalog(slog.Default(), handlers.Options{})

	err = bindHandlers(dispatcher.NewRegistry(fs), catalog, []config.FilterBinding{
		{NamedFilter: model.NamedFilter{Name: "a"}, Handlers: []string{"nope"}},
	})
	require.ErrorIs(t, err, handlers.ErrUnknownHandler)
	assert.Contains(t, err.Error(), "filter a")

	err = bindHandlers(dispatcher.NewRegistry(fs), catalog, []config.FilterBinding{
		{NamedFilter: model.NamedFilter{Name: "ghost"}, Handlers: []string{handlers.TrackStats}},
	})
	require.ErrorIs(t, err, dispatcher.ErrUnknownFilter)
}

func TestBuildAlerter(t *testing.T) {
	assert.Nil(t, buildAlerter(config.AlertConfig{}, slog.Default()))

	a := buildAlerter(config.AlertConfig{
		WebhookURL:      "http://hooks.local/alert",
		SlackWebhookURL: "http://hooks.local/slack",
		Cooldown:        time.Minute,
	}, slog.Default())
	require.NotNil(t, a)
	multi, ok := a.(*alert.MultiAlerter)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

func TestBuildLedger_IndexerOptional(t *testing.T) {
	cfg := loadDefaults(t)

	node, index := buildLedger(cfg, slog.Default())
	assert.NotNil(t, node)
	assert.NotNil(t, index)

	cfg.Indexer.URL = ""
	node, index = buildLedger(cfg, slog.Default())
	assert.NotNil(t, node)
	assert.Nil(t, index)
}

func TestCheckNode(t *testing.T) {
	ctrl := gomock.NewController(t)
	node := ledgermocks.NewMockNode(ctrl)

	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)

	node.EXPECT().Tip(gomock.Any()).Return(model.Round(46_000_123), nil)
	tip, err := checkNode(context.Background(), node, time.Second, logger)
	require.NoError(t, err)
	assert.Equal(t, model.Round(46_000_123), tip)
	assert.Contains(t, buf.String(), `"current_round":46000123`)

	node.EXPECT().Tip(gomock.Any()).Return(model.Round(0), fmt.Errorf("http status 401: %w", ledger.ErrInvalidQuery))
	_, err = checkNode(context.Background(), node, time.Second, logger)
	require.ErrorIs(t, err, ledger.ErrInvalidQuery)
	assert.Contains(t, err.Error(), "query node status")
}

func TestBuildPipeline(t *testing.T) {
	cfg := loadDefaults(t)
	ctrl := gomock.NewController(t)

	p, err := buildPipeline(cfg, ledgermocks.NewMockNode(ctrl), ledgermocks.NewMockIndex(ctrl), memory.New(), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateInit, p.State())

	status := p.Status()
	assert.Equal(t, "dex-monitor", status.Subscription)
	assert.Equal(t, "skip-sync-newest", status.SyncBehaviour)
	assert.Equal(t, []string{"tinyman_app_calls", "pact_app_calls", "major_asset_transfers", "algo_transfers", "all_transactions"}, status.Filters)
}

func TestBuildPipeline_UnknownHandlerIsConfigError(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Filters[0].Handlers = []string{"swap_bot"}

	_, err := buildPipeline(cfg, ledgermocks.NewMockNode(gomock.NewController(t)), nil, memory.New(), slog.Default())
	require.ErrorIs(t, err, handlers.ErrUnknownHandler)
}
