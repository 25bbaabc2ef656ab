// Package patch implements the overlay-resolver wire format: it
// composes default < base < experiment < qos < emergency layers over a
// flow's params and per-stage module lists, producing an effective plan plus
// an ordered overlays_applied trace and a stable params hash.
package patch

import (
	"encoding/json"
	"fmt"

	"github.com/rockestra/rockestra/internal/rockestra/gate"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// Document is the top-level wire format: schema v1 patch JSON.
type Document struct {
	SchemaVersion string               `json:"schemaVersion"`
	Flows         map[string]FlowPatch `json:"flows"`
	Limits        *Limits              `json:"limits,omitempty"`
}

// Limits carries the top-level moduleConcurrency bulkhead limits,
// consumed by the bulkhead admission hook in internal/infrastructure/bulkhead.
type Limits struct {
	ModuleConcurrency struct {
		MaxInFlight map[string]uint32 `json:"maxInFlight"`
	} `json:"moduleConcurrency"`
}

// FlowPatch is one flow's patch object.
type FlowPatch struct {
	Params      map[string]any        `json:"params,omitempty"`
	Stages      map[string]StagePatch `json:"stages,omitempty"`
	Experiments []ExperimentOverlay   `json:"experiments,omitempty"`
	QoS         *QoSPatch             `json:"qos,omitempty"`
	Emergency   *EmergencyPatch       `json:"emergency,omitempty"`
}

// InnerPatch is the restricted shape allowed inside experiment/qos/emergency
// patches: params and stage overrides only. The validator, not the engine,
// is responsible for rejecting a nested experiments/qos/emergency block; this
// type simply has no field to decode one into.
type InnerPatch struct {
	Params map[string]any        `json:"params,omitempty"`
	Stages map[string]StagePatch `json:"stages,omitempty"`
}

// StagePatch overrides one stage's fanoutMax and/or module list.
type StagePatch struct {
	FanoutMax *int          `json:"fanoutMax,omitempty"`
	Modules   []ModulePatch `json:"modules,omitempty"`
}

// ExperimentOverlay is one `flows.<flow>.experiments[]` entry.
type ExperimentOverlay struct {
	Layer   string     `json:"layer"`
	Variant string     `json:"variant"`
	Patch   InnerPatch `json:"patch"`
}

// QoSTierPatch is one tier's entry under `flows.<flow>.qos.tiers`.
type QoSTierPatch struct {
	Patch InnerPatch `json:"patch"`
}

// QoSPatch is the `flows.<flow>.qos` block.
type QoSPatch struct {
	Tiers map[string]QoSTierPatch `json:"tiers"`
}

// EmergencyPatch is the `flows.<flow>.emergency` block.
type EmergencyPatch struct {
	Reason     string     `json:"reason"`
	Operator   string     `json:"operator"`
	TTLMinutes int        `json:"ttlMinutes"`
	Patch      InnerPatch `json:"patch"`
}

// ModulePatch is one entry of `stages.<s>.modules[]`. Pointer/RawMessage
// fields are nil when the patch entry does not carry that field, matching the
// "updates only the fields it carries" merge rule.
type ModulePatch struct {
	ID       string          `json:"id"`
	Use      *string         `json:"use,omitempty"`
	With     json.RawMessage `json:"with,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"`
	Priority *int            `json:"priority,omitempty"`
	Gate     json.RawMessage `json:"gate,omitempty"`
	Shadow   *ShadowPatch    `json:"shadow,omitempty"`
	LimitKey *string         `json:"limitKey,omitempty"`
}

// ShadowPatch carries a fractional sample rate, converted to basis points at
// merge time.
type ShadowPatch struct {
	Sample *float64 `json:"sample,omitempty"`
}

// ParseDocument decodes raw patch JSON into a Document.
func ParseDocument(raw string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, rockestraerr.Wrap(rockestraerr.TierConfiguration, rockestraerr.CodeConfigSnapshotInvalid, "malformed patch json", err)
	}
	return &doc, nil
}

// sampleToBps converts a [0,1] fractional sample rate to basis points,
// rounding half-away-from-zero.
func sampleToBps(sample float64) int {
	if sample <= 0 {
		return 0
	}
	if sample >= 1 {
		return 10000
	}
	scaled := sample * 10000
	if scaled >= 0 {
		return int(scaled + 0.5)
	}
	return int(scaled - 0.5)
}

// gateEnvelope is the JSON discriminated-union shape for a gate tree node.
type gateEnvelope struct {
	Type     string            `json:"type"`
	Layer    string            `json:"layer,omitempty"`
	In       []string          `json:"in,omitempty"`
	Children []json.RawMessage `json:"children,omitempty"`
	Child    json.RawMessage   `json:"child,omitempty"`
	Percent  int               `json:"percent,omitempty"`
	Salt     string            `json:"salt,omitempty"`
	Field    string            `json:"field,omitempty"`
	Name     string            `json:"name,omitempty"`
}

// decodeGate parses a gate tree from its discriminated-union JSON envelope.
func decodeGate(raw json.RawMessage) (gate.Gate, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env gateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, rockestraerr.Wrap(rockestraerr.TierConfiguration, rockestraerr.CodeConfigSnapshotInvalid, "malformed gate tree", err)
	}
	switch env.Type {
	case "experiment":
		return &gate.Experiment{Layer: env.Layer, In: env.In}, nil
	case "all":
		children, err := decodeGateList(env.Children)
		if err != nil {
			return nil, err
		}
		return &gate.All{Children: children}, nil
	case "any":
		children, err := decodeGateList(env.Children)
		if err != nil {
			return nil, err
		}
		return &gate.Any{Children: children}, nil
	case "not":
		child, err := decodeGate(env.Child)
		if err != nil {
			return nil, err
		}
		return &gate.Not{Child: child}, nil
	case "rollout":
		return &gate.Rollout{Percent: env.Percent, Salt: env.Salt}, nil
	case "requestAttr":
		return &gate.RequestAttr{Field: env.Field, In: env.In}, nil
	case "selector":
		return &gate.Selector{Name: env.Name}, nil
	default:
		return nil, rockestraerr.New(rockestraerr.TierConfiguration, rockestraerr.CodeConfigSnapshotInvalid, fmt.Sprintf("unknown gate type %q", env.Type))
	}
}

func decodeGateList(raw []json.RawMessage) ([]gate.Gate, error) {
	out := make([]gate.Gate, 0, len(raw))
	for _, r := range raw {
		g, err := decodeGate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
