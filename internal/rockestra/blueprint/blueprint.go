// Package blueprint builds the immutable, typed description of a flow: an
// ordered sequence of Step and Join nodes grouped into stages, each with an
// attached contract.
package blueprint

import (
	"hash/fnv"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
	"github.com/rockestra/rockestra/internal/rockestra/outcome"
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// NodeKind distinguishes the two node shapes a blueprint can contain.
type NodeKind string

const (
	NodeStep NodeKind = "Step"
	NodeJoin NodeKind = "Join"
)

// JoinDelegate reads prior node outcomes from the context and produces the
// join node's own boxed outcome. It may resolve synchronously or after
// suspending; the engine treats both uniformly.
type JoinDelegate func(ctx *flowctx.FlowContext) flowctx.BoxedOutcome

// StageContract bounds what a stage's fan-out planner is allowed to do,
// attached to a stage at blueprint build time.
type StageContract struct {
	AllowDynamicModules bool
	AllowedModuleTypes  map[string]struct{} // nil means "no allowlist restriction"
	MaxModulesWarn      int
	MaxModulesHard      int
	AllowShadow         bool
	MaxShadowModules    int
	MaxShadowSampleBps  int
	FanoutMaxMin        int
	FanoutMaxMax        int
}

// DefaultStageContract returns the conservative default contract: dynamic
// modules forbidden, no shadow, generous but finite hard caps.
func DefaultStageContract() StageContract {
	return StageContract{
		AllowDynamicModules: false,
		MaxModulesWarn:      8,
		MaxModulesHard:      16,
		AllowShadow:         false,
		MaxShadowModules:    4,
		MaxShadowSampleBps:  10000,
		FanoutMaxMin:        0,
		FanoutMaxMax:        16,
	}
}

// BlueprintNode is one node of a flow's plan template.
type BlueprintNode struct {
	Kind                    NodeKind
	Name                    string
	StageName               string // empty for top-level (non-stage) nodes
	ModuleType              string // Step only
	JoinDelegate            JoinDelegate // Join only
	JoinOutputTypeFingerprint string // Join only; fully qualified type name
}

// PlanTemplate is the immutable, built form of a blueprint.
type PlanTemplate struct {
	FlowName       string
	Nodes          []BlueprintNode
	NodeNameToIndex map[string]int
	StageOrder     []string
	StageContracts map[string]StageContract
	Hash           uint64
}

// NodeIndex resolves a node name to its position, or -1 if absent.
func (p *PlanTemplate) NodeIndex(name string) int {
	if i, ok := p.NodeNameToIndex[name]; ok {
		return i
	}
	return -1
}

// Builder is the fluent, single-owner-thread construction API for a
// PlanTemplate. It is NOT safe for concurrent use — it is
// owned by a single thread during bootstrap.
type Builder struct {
	flowName       string
	nodes          []BlueprintNode
	nodeNames      map[string]struct{}
	stageOrder     []string
	stageContracts map[string]StageContract
	stageNodeCount map[string]int
	err            error
}

// NewBuilder starts a builder for the named flow. flowName must be non-empty.
func NewBuilder(flowName string) *Builder {
	b := &Builder{
		flowName:       flowName,
		nodeNames:      make(map[string]struct{}),
		stageContracts: make(map[string]StageContract),
		stageNodeCount: make(map[string]int),
	}
	if flowName == "" {
		b.err = rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeMissingFlowName, "flow name must not be empty")
	}
	return b
}

// Step appends a Step node invoking moduleType, outside of any stage.
func (b *Builder) Step(name, moduleType string) *Builder {
	return b.addNode(BlueprintNode{Kind: NodeStep, Name: name, ModuleType: moduleType})
}

// StageStep appends a Step node inside the named stage, declaring the
// stage's contract the first time the stage is seen (subsequent calls for
// the same stage reuse the previously declared contract).
func (b *Builder) StageStep(stage, name, moduleType string, contract StageContract) *Builder {
	b.declareStage(stage, contract)
	return b.addNode(BlueprintNode{Kind: NodeStep, Name: name, StageName: stage, ModuleType: moduleType})
}

// Join appends a Join node whose delegate reads prior outcomes.
func (b *Builder) Join(name string, outputTypeFingerprint string, delegate JoinDelegate) *Builder {
	return b.addNode(BlueprintNode{
		Kind:                      NodeJoin,
		Name:                      name,
		JoinDelegate:              delegate,
		JoinOutputTypeFingerprint: outputTypeFingerprint,
	})
}

func (b *Builder) declareStage(stage string, contract StageContract) {
	if b.err != nil {
		return
	}
	if _, ok := b.stageContracts[stage]; ok {
		return
	}
	for _, s := range b.stageOrder {
		if s == stage {
			b.err = rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeDuplicateStageName, "stage "+stage+" declared twice with different contracts")
			return
		}
	}
	b.stageOrder = append(b.stageOrder, stage)
	b.stageContracts[stage] = contract
}

func (b *Builder) addNode(n BlueprintNode) *Builder {
	if b.err != nil {
		return b
	}
	if n.Name == "" {
		b.err = rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeMissingFlowName, "node name must not be empty")
		return b
	}
	if _, exists := b.nodeNames[n.Name]; exists {
		b.err = rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeDuplicateNodeName, "duplicate node name "+n.Name)
		return b
	}
	b.nodeNames[n.Name] = struct{}{}
	b.nodes = append(b.nodes, n)
	if n.StageName != "" {
		b.stageNodeCount[n.StageName]++
	}
	return b
}

// Configure runs fn against the builder; if fn returns an error, the nodes
// and node names fn added are removed again and fn's error is kept on the
// builder, so Build returns that error instead of a partially-built template.
func (b *Builder) Configure(fn func(*Builder) error) *Builder {
	if b.err != nil {
		return b
	}
	checkpoint := len(b.nodes)
	checkpointNames := make(map[string]struct{}, len(b.nodeNames))
	for k := range b.nodeNames {
		checkpointNames[k] = struct{}{}
	}
	if err := fn(b); err != nil {
		b.nodes = b.nodes[:checkpoint]
		b.nodeNames = checkpointNames
		b.err = err
		return b
	}
	return b
}

// Build validates and produces an immutable PlanTemplate.
func (b *Builder) Build() (*PlanTemplate, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.nodes) == 0 {
		return nil, rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeEmptyStage, "blueprint "+b.flowName+" has no nodes")
	}
	for stage, count := range b.stageNodeCount {
		if count == 0 {
			return nil, rockestraerr.New(rockestraerr.TierDesignTime, rockestraerr.CodeEmptyStage, "stage "+stage+" has no nodes")
		}
	}

	nodeNameToIndex := make(map[string]int, len(b.nodes))
	for i, n := range b.nodes {
		nodeNameToIndex[n.Name] = i
	}

	template := &PlanTemplate{
		FlowName:        b.flowName,
		Nodes:           append([]BlueprintNode(nil), b.nodes...),
		NodeNameToIndex: nodeNameToIndex,
		StageOrder:      append([]string(nil), b.stageOrder...),
		StageContracts:  cloneContracts(b.stageContracts),
	}
	template.Hash = planHash(template)
	return template, nil
}

func cloneContracts(in map[string]StageContract) map[string]StageContract {
	out := make(map[string]StageContract, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// planHash computes a stable 64-bit FNV-1a fingerprint:
// flow_name, 0x1F, then per node: kind-byte || name || 0x1F || stage_name ||
// 0x1F || module_type || 0x1F || join_output_type_fingerprint.
func planHash(t *PlanTemplate) uint64 {
	h := fnv.New64a()
	h.Write([]byte(t.FlowName))
	h.Write([]byte{0x1F})
	for _, n := range t.Nodes {
		kindByte := byte('S')
		if n.Kind == NodeJoin {
			kindByte = 'J'
		}
		h.Write([]byte{kindByte})
		h.Write([]byte(n.Name))
		h.Write([]byte{0x1F})
		h.Write([]byte(n.StageName))
		h.Write([]byte{0x1F})
		h.Write([]byte(n.ModuleType))
		h.Write([]byte{0x1F})
		h.Write([]byte(n.JoinOutputTypeFingerprint))
	}
	return h.Sum64()
}

// JoinOutputType returns the fully qualified type fingerprint for T, for use
// as a blueprint's join_output_type_fingerprint argument.
func JoinOutputType[T any]() string {
	var zero outcome.Outcome[T]
	_ = zero
	return flowctx.Box(outcome.Unspecified[T]()).TypeFingerprint
}
