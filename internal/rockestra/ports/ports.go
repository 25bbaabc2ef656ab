// Package ports defines the hexagonal boundary between Rockestra's domain
// packages (blueprint, catalog, gate, patch, planner, engine) and the
// infrastructure adapters under internal/infrastructure. Engine and catalog
// code depends only on these interfaces; concrete adapters are wired at
// bootstrap in cmd/rockestrad.
package ports

import (
	"context"
	"time"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
)

// ModuleContext is passed to every Module invocation. It carries
// whatever services the module needs, the request's cancellation/deadline,
// pre-bound args, and a handle back to the owning FlowContext for modules
// that need to read sibling node outcomes (rare, but not forbidden).
type ModuleContext struct {
	Ctx        context.Context
	Flow       *flowctx.FlowContext
	Deadline   time.Time
	ModuleID   string
	TypeName   string
	Args       any
	ExecPath   string // "primary" | "shadow" | "" for blueprint Step nodes
}

// Module is the interface every catalog-registered module type implements.
// Execute must never panic across the catalog boundary for data-dependent
// failures — those should be recovered and converted by the caller, per the
// engine's panic-recovery/exception-conversion rule; Module authors may
// still let true programming bugs panic, which the engine's per-node
// executor recovers into Outcome::Error("UNHANDLED_EXCEPTION").
type Module interface {
	Execute(mctx *ModuleContext) flowctx.BoxedOutcome
}

// Logger is Rockestra's structured logging contract, mirroring the ambient
// logging conventions described in SPEC_FULL.md Part B.1.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, msg string, fields ...interface{})
	Error(ctx context.Context, msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

// MetricsCollector records the process's named metric instruments.
type MetricsCollector interface {
	IncCounter(ctx context.Context, name string, labels map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string)
}

// SpanStatus mirrors an OTel span's terminal status.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// Span represents one active tracing span.
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(status SpanStatus, message string)
	End()
}

// Tracer opens spans under the `Rockestra` activity source.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, Span)
}

// ConfigSnapshotProvider is the `get_snapshot` contract.
type ConfigSnapshotProvider interface {
	GetSnapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is the external-facing shape of a ConfigSnapshot; it is
// defined here, not in the config package, so ports stays the shared
// vocabulary between the engine and every infrastructure adapter.
type Snapshot struct {
	ConfigVersion uint64
	PatchJSON     string
	Source        string
	TimestampUTC  time.Time
	LkgFallback   bool
	LastGoodVersion uint64
}

// LkgLoadStatus is the result tag of LkgSnapshotStore.TryLoad.
type LkgLoadStatus string

const (
	LkgNotFound LkgLoadStatus = "NotFound"
	LkgLoaded   LkgLoadStatus = "Loaded"
	LkgCorrupt  LkgLoadStatus = "Corrupt"
	LkgError    LkgLoadStatus = "Error"
)

// LkgSnapshotStore is the last-known-good persistence contract.
type LkgSnapshotStore interface {
	TryLoad(ctx context.Context) (LkgLoadStatus, Snapshot, error)
	TryStore(ctx context.Context, snapshot Snapshot) bool
}

// Validator is the external validator collaborator. The
// engine never executes a plan against a patch the validator has not marked
// valid; Rockestra's own validator implementation is deliberately minimal
// since a full human-readable validator CLI is out of scope here.
type Validator interface {
	ValidatePatchJSON(patchJSON string) ValidationReport
}

// ValidationSeverity mirrors the Error|Warn|Info severities used by Validator.
type ValidationSeverity string

const (
	SeverityError ValidationSeverity = "Error"
	SeverityWarn  ValidationSeverity = "Warn"
	SeverityInfo  ValidationSeverity = "Info"
)

// ValidationFinding is one entry of a ValidationReport.
type ValidationFinding struct {
	Severity ValidationSeverity
	Code     string
	Path     string
	Message  string
}

// ValidationReport is the result of running a patch through the Validator.
type ValidationReport struct {
	IsValid  bool
	Findings []ValidationFinding
}

// QoSProvider selects the current QoS tier for a request; FlowHost defaults
// to a provider that always returns Full.
type QoSProvider interface {
	SelectTier(ctx context.Context, flowContext *flowctx.FlowContext) string
}
