package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rockestra/rockestra/internal/infrastructure/metrics"
	"github.com/rockestra/rockestra/internal/rockestra/blueprint"
	"github.com/rockestra/rockestra/internal/rockestra/catalog"
	"github.com/rockestra/rockestra/internal/rockestra/config"
	"github.com/rockestra/rockestra/internal/rockestra/engine"
	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/flowhost"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/internal/rockestra/selector"
)

type echoModule struct{}

func (echoModule) Execute(mctx *ports.ModuleContext) flowctx.BoxedOutcome {
	return flowctx.Box(outcome.Ok(mctx.ModuleID))
}

func newTestHost(t *testing.T) *flowhost.Host {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.Register(catalog.Descriptor{
		TypeName: "echo",
		Factory:  func() (ports.Module, error) { return echoModule{}, nil },
	}))
	eng := engine.New(cat, selector.Empty(), nil, nil, nil)

	template, err := blueprint.NewBuilder("rank").Step("a", "echo").Build()
	require.NoError(t, err)

	provider := config.NewStaticProvider(ports.Snapshot{
		ConfigVersion: 1,
		PatchJSON:     `{"schemaVersion":"v1","flows":{"rank":{}}}`,
	})
	host := flowhost.New(eng, provider, nil, nil)
	host.Register("rank", flowhost.FlowDefinition{Template: template})
	return host
}

func TestHealthzReportsOK(t *testing.T) {
	srv := New(newTestHost(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestExplainRunsRegisteredFlow(t *testing.T) {
	srv := New(newTestHost(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/explain/rank", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body explainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Ok", body.OutcomeKind)
}

func TestExplainUnregisteredFlowReturnsBadRequest(t *testing.T) {
	srv := New(newTestHost(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/explain/missing", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsServesPrometheusRegistry(t *testing.T) {
	collector := metrics.New(prometheus.NewRegistry())
	// A vec with no observed label set is not gathered, so record one sample.
	collector.ObserveHistogram(context.Background(), "rockestra_stage_fanout_module_latency_ms", 1, map[string]string{
		"flow_name": "rank", "stage_name": "s", "module_id": "m", "execution_path": "primary",
	})
	srv := New(newTestHost(t), collector, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "rockestra_stage_fanout_module_latency_ms")
}
