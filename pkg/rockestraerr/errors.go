// Package rockestraerr defines the error taxonomy shared by every Rockestra
// component. Errors are values, not exceptions: every code named in
// model appears here, tagged with the tier that produced it so
// callers at the engine boundary can decide what is allowed to propagate.
package rockestraerr

import (
	"errors"
	"fmt"
)

// Tier classifies where in the three-tier error model a Code belongs.
type Tier string

const (
	// TierDesignTime covers builder/registration failures: duplicate names,
	// malformed blueprints. These are programming errors and always propagate.
	TierDesignTime Tier = "design_time"
	// TierConfiguration covers invalid or unreachable configuration snapshots.
	// The engine never partially executes against a config in this tier.
	TierConfiguration Tier = "configuration"
	// TierRequest covers per-request outcomes. Errors in this tier are
	// converted into Outcome values and never escape engine.Execute.
	TierRequest Tier = "request"
	// TierContractViolation covers the two categories that are data-independent
	// contract violations rather than runtime failures, and are the only
	// request-time errors allowed to propagate out of engine.Execute.
	TierContractViolation Tier = "contract_violation"
)

// Code enumerates every well-known Rockestra error identifier.
type Code string

const (
	// Blueprint / catalog / registry (design-time)
	CodeDuplicateModuleType     Code = "DUPLICATE_MODULE_TYPE"
	CodeModuleTypeNotRegistered Code = "MODULE_TYPE_NOT_REGISTERED"
	CodeDuplicateNodeName       Code = "DUPLICATE_NODE_NAME"
	CodeEmptyStage              Code = "EMPTY_STAGE"
	CodeDuplicateStageName      Code = "DUPLICATE_STAGE_NAME"
	CodeMissingFlowName         Code = "MISSING_FLOW_NAME"
	CodeSelectorAlreadyExists   Code = "DUPLICATE_SELECTOR_NAME"
	CodeSelectorRegistryReadOnly Code = "SELECTOR_REGISTRY_READ_ONLY"
	CodeFlowNotRegistered       Code = "FLOW_NOT_REGISTERED"

	// FlowContext invariants (contract violation — propagates)
	CodeNodeAlreadyRecorded Code = "NODE_ALREADY_RECORDED"
	CodeNodeTypeMismatch    Code = "NODE_TYPE_MISMATCH"
	CodeInvalidDeadline     Code = "INVALID_DEADLINE"

	// Module concurrency (contract violation — propagates)
	CodeModuleConcurrencyViolation Code = "MODULE_CONCURRENCY_VIOLATION"

	// Outcome programming errors (contract violation — propagates)
	CodeOutcomeHasNoValue Code = "OUTCOME_HAS_NO_VALUE"

	// Configuration tier
	CodeConfigSnapshotUnavailable Code = "CONFIG_SNAPSHOT_UNAVAILABLE"
	CodeConfigSnapshotInvalid    Code = "CONFIG_SNAPSHOT_INVALID"
	CodeLkgStoreCorrupt          Code = "LKG_STORE_CORRUPT"
	CodeLkgStoreMiss             Code = "LKG_STORE_MISS"

	// Request-time outcome codes (never escape, become Outcome codes)
	CodeStageContractDynamicModulesForbidden Code = "STAGE_CONTRACT_DYNAMIC_MODULES_FORBIDDEN"
	CodeStageContractModuleTypeForbidden     Code = "STAGE_CONTRACT_MODULE_TYPE_FORBIDDEN"
	CodeDisabled                             Code = "DISABLED"
	CodeGateFalse                            Code = "GATE_FALSE"
	CodeStageContractShadowForbidden         Code = "STAGE_CONTRACT_SHADOW_FORBIDDEN"
	CodeShadowNotSampled                     Code = "SHADOW_NOT_SAMPLED"
	CodeStageContractMaxModulesHardExceeded  Code = "STAGE_CONTRACT_MAX_MODULES_HARD_EXCEEDED"
	CodeStageContractMaxShadowModulesHardExceeded Code = "STAGE_CONTRACT_MAX_SHADOW_MODULES_HARD_EXCEEDED"
	CodeFanoutTrim                           Code = "FANOUT_TRIM"
	CodeBulkheadRejected                     Code = "BULKHEAD_REJECTED"
	CodeDeadlineExceeded                     Code = "DEADLINE_EXCEEDED"
	CodeUpstreamCanceled                     Code = "UPSTREAM_CANCELED"
	CodeUnhandledException                   Code = "UNHANDLED_EXCEPTION"
)

// RockestraError is the concrete error type produced throughout the module.
type RockestraError struct {
	Code    Code
	Tier    Tier
	Message string
	Cause   error
	Context map[string]interface{}
}

// New constructs a RockestraError.
func New(tier Tier, code Code, message string) *RockestraError {
	return &RockestraError{Tier: tier, Code: code, Message: message}
}

// Wrap constructs a RockestraError around an existing cause.
func Wrap(tier Tier, code Code, message string, cause error) *RockestraError {
	return &RockestraError{Tier: tier, Code: code, Message: message, Cause: cause}
}

func (e *RockestraError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *RockestraError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is allows errors.Is comparisons keyed on Code alone.
func (e *RockestraError) Is(target error) bool {
	var other *RockestraError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithContext returns a copy of e with additional context fields merged in.
func (e *RockestraError) WithContext(ctx map[string]interface{}) *RockestraError {
	if e == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	return &RockestraError{
		Code:    e.Code,
		Tier:    e.Tier,
		Message: e.Message,
		Cause:   e.Cause,
		Context: merged,
	}
}

// Propagates reports whether an error of this tier is allowed to escape
// engine.Execute: only design-time and contract-violation tiers do.
func (e *RockestraError) Propagates() bool {
	if e == nil {
		return false
	}
	return e.Tier == TierDesignTime || e.Tier == TierContractViolation
}
