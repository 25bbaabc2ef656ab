package bootstrap

import (
	"context"
	"fmt"

	cblog "github.com/charmbracelet/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rockestra/rockestra/internal/infrastructure/bulkhead"
	"github.com/rockestra/rockestra/internal/infrastructure/configsource"
	"github.com/rockestra/rockestra/internal/infrastructure/httpapi"
	"github.com/rockestra/rockestra/internal/infrastructure/lkgstore"
	"github.com/rockestra/rockestra/internal/infrastructure/logging"
	"github.com/rockestra/rockestra/internal/infrastructure/metrics"
	"github.com/rockestra/rockestra/internal/infrastructure/tracing"
	"github.com/rockestra/rockestra/internal/infrastructure/validation"
	"github.com/rockestra/rockestra/internal/modules"
	"github.com/rockestra/rockestra/internal/rockestra/catalog"
	"github.com/rockestra/rockestra/internal/rockestra/config"
	"github.com/rockestra/rockestra/internal/rockestra/engine"
	"github.com/rockestra/rockestra/internal/rockestra/flowhost"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
	"github.com/rockestra/rockestra/internal/rockestra/selector"

	"github.com/prometheus/client_golang/prometheus"
)

// Runtime holds every collaborator wired at process start. Close releases
// everything that owns a background goroutine or a network connection.
type Runtime struct {
	Host       *flowhost.Host
	HTTPServer *httpapi.Server
	Logger     ports.Logger
	Addr       string

	closers []func() error
}

// Close runs every registered closer, in reverse-registration order,
// collecting (not short-circuiting on) the first error encountered.
func (r *Runtime) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Bootstrap wires logging, tracing, metrics, the module catalog, the config
// snapshot provider chain, the execution engine, and the ambient HTTP
// surface from a validated ProcessConfig, mirroring the teacher's
// cmd/streamy composition root generalized from a one-shot CLI run to a
// long-lived service process.
func Bootstrap(ctx context.Context, cfg *ProcessConfig) (*Runtime, error) {
	rt := &Runtime{Addr: cfg.HTTP.Addr}

	logOpts := logging.Options{
		Level:        cfg.Logging.Level,
		ReportCaller: cfg.Logging.ReportCaller,
		Component:    "rockestra",
	}
	if cfg.Logging.JSON {
		logOpts.Formatter = cblog.JSONFormatter
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, fmt.Errorf("construct logger: %w", err)
	}
	rt.Logger = logger

	var tracer ports.Tracer
	if cfg.Tracing.Enabled {
		tp := tracing.NewProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
		rt.closers = append(rt.closers, func() error { return tp.Shutdown(context.Background()) })
		tracer = tracing.New()
	}

	registry := prometheus.NewRegistry()
	metricsCollector := metrics.New(registry)

	cat := catalog.New()
	if err := modules.Register(cat); err != nil {
		return nil, fmt.Errorf("register modules: %w", err)
	}
	cat.Freeze()

	selectors := selector.New()
	highScore, err := selector.CompileExprSelector("high_score", `(.request_attributes.minScore // 0) < 1`)
	if err != nil {
		return nil, fmt.Errorf("compile built-in selector: %w", err)
	}
	if err := selectors.Register("high_score", highScore.Predicate()); err != nil {
		return nil, fmt.Errorf("register built-in selector: %w", err)
	}
	selectors.Freeze()

	admitter := bulkhead.NewLimiterRegistry()

	eng := engine.New(cat, selectors, metricsCollector, tracer, admitter)

	provider, closeProvider, err := buildConfigProvider(ctx, cfg.ConfigSource, logger)
	if err != nil {
		return nil, fmt.Errorf("build config provider: %w", err)
	}
	if closeProvider != nil {
		rt.closers = append(rt.closers, closeProvider)
	}

	host := flowhost.New(eng, provider, nil, logger)
	registerDemoFlows(host)
	rt.Host = host

	rt.HTTPServer = httpapi.New(host, metricsCollector, logger)

	return rt, nil
}

// buildConfigProvider constructs the raw provider for cfg.Kind, optionally
// wraps it in a circuit breaker, then wraps the result in the LKG-backed
// fallback decorator every config source shares. The returned closer, if
// non-nil, releases whatever resource the raw provider holds (a file watch
// or a Postgres pool; the git provider returns no closer) — PersistedLKG itself owns nothing
// closeable, so the raw provider's Close is captured here before wrapping.
func buildConfigProvider(ctx context.Context, cfg ConfigSourceConfig, logger ports.Logger) (ports.ConfigSnapshotProvider, func() error, error) {
	var inner ports.ConfigSnapshotProvider
	var closeInner func() error
	var err error

	switch cfg.Kind {
	case "file":
		fp, ferr := configsource.NewFileProvider(cfg.FilePath)
		inner, err = fp, ferr
		if ferr == nil {
			closeInner = fp.Close
		}
	case "git":
		inner, err = configsource.NewGitProvider(cfg.GitRepoURL, cfg.GitLocalPath, cfg.GitPatchPath, nil)
	case "postgres":
		pp, perr := configsource.NewPostgresProvider(ctx, cfg.PostgresDSN)
		inner, err = pp, perr
		if perr == nil {
			closeInner = func() error { pp.Close(); return nil }
		}
	default:
		return nil, nil, fmt.Errorf("unknown config source kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.BreakerEnabled {
		inner = configsource.NewBreakerProvider(cfg.Kind, inner)
	}

	store, err := lkgstore.NewFileStore(cfg.LkgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("construct lkg store: %w", err)
	}

	explainSink := func(ctx context.Context, fallback bool) {
		if fallback {
			logger.Warn(ctx, "config snapshot served from last-known-good store")
		}
	}
	return config.NewPersistedLKG(inner, store, validation.New(), explainSink), closeInner, nil
}
