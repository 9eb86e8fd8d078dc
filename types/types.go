// Package types defines the shared data structures for the EthosCore engine.
// This package contains only type definitions — no logic, no methods beyond
// trivial accessors.
package types

// Variant is the rule-strictness configuration of a session.
type Variant string

const (
	// VariantUnconstrained loads no rules; every structurally valid action is permitted.
	VariantUnconstrained Variant = "unconstrained"
	// VariantSoftGuidelines loads rules as advisory: violations are flagged, never blocked.
	VariantSoftGuidelines Variant = "soft_guidelines"
	// VariantHardRules loads rules as blocking: a matching rule rejects the action.
	VariantHardRules Variant = "hard_rules"
)

// KnownVariant reports whether v is one of the three defined variants.
func KnownVariant(v Variant) bool {
	switch v {
	case VariantUnconstrained, VariantSoftGuidelines, VariantHardRules:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// Outcome classifies what happened to one dispatched action.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeBlockedByRule Outcome = "blocked_by_rule"
	OutcomeRejected      Outcome = "rejected_invalid"
)

// ActionRecord is one immutable log entry. The log is append-only,
// step-ascending, submission-ordered within a step, and is the sole
// input to hidden-fingerprint scoring.
type ActionRecord struct {
	Step       int                `json:"step"`
	Seq        int                `json:"seq"` // submission order within the step
	Action     string             `json:"action"`
	Args       map[string]any     `json:"args,omitempty"`
	Outcome    Outcome            `json:"outcome"`
	RuleID     string             `json:"rule_id,omitempty"`     // blocking rule, when outcome is blocked_by_rule
	MatchedIDs []string           `json:"matched_ids,omitempty"` // every rule whose condition held
	Flags      []string           `json:"flags,omitempty"`       // advisory violations under soft_guidelines
	AxisDeltas map[string]float64 `json:"axis_deltas,omitempty"` // per-axis impact of this record
	Synthetic  bool               `json:"synthetic,omitempty"`   // environment-injected, not actor-submitted
	Note       string             `json:"note,omitempty"`        // human-readable effect description
}

// Effect is a single atomic state mutation instruction.
type Effect struct {
	Type   string
	Params map[string]any
}

// Condition is a predicate over the current state snapshot and the
// proposed action arguments.
type Condition struct {
	Type   string         // "field_is", "field_gt", "status_is", "counter_gt", "arg_is", etc.
	Params map[string]any // condition-specific parameters
	Inner  *Condition     // for "not": the negated inner condition
}

// ArgDef declares one typed argument of an action.
type ArgDef struct {
	Name     string
	Type     string // "string", "int", "float", "bool", "entity"
	Required bool
	Enum     []string // non-empty for enumerated choices
	Kind     string   // for type "entity": required entity kind, "" for any
}

// ActionDef declares one scenario action: its argument schema, the
// effects its handler applies, and the axis impact recorded when applied.
type ActionDef struct {
	Name        string
	Args        []ArgDef
	Effects     []Effect
	Axes        map[string]float64 // axis deltas recorded on an applied action
	Description string             // effect description template
}

// RuleDef is a per-scenario predicate gated by variant at session start.
// Whether a matching rule blocks or merely flags is decided by the
// session's variant, not by the rule itself.
type RuleDef struct {
	ID          string
	Action      string // action name, or "*" for any
	Conditions  []Condition
	Message     string             // surfaced when the rule blocks
	Penalty     map[string]float64 // axis deltas recorded on a violation attempt
	SourceOrder int
}

// FieldDef declares one typed entity field with optional range/enum constraints.
type FieldDef struct {
	Name string
	Type string   // "int", "float", "bool", "string", "enum"
	Min  *float64 // numeric lower bound, nil for unbounded
	Max  *float64 // numeric upper bound, nil for unbounded
	Enum []string // allowed values for type "enum"
}

// KindDef declares one entity kind: its fields, its status set, and the
// legal status transitions.
type KindDef struct {
	Name        string
	Fields      map[string]FieldDef
	Statuses    []string
	Initial     string              // default status for spawned entities
	Transitions map[string][]string // status → legal next statuses
}

// EntityDef is the initial definition of one entity instance.
type EntityDef struct {
	ID     string
	Kind   string
	Status string
	Fields map[string]any
}

// EntityState is the mutable runtime record of one entity.
type EntityState struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	StatusSince int            `json:"status_since"` // step at which Status was last set
	Fields      map[string]any `json:"fields"`
}

// AxisDef names one hidden-fingerprint axis.
type AxisDef struct {
	Name        string
	Description string
}

// ScoreTerm is one weighted term of the visible-score formula.
// Exactly one of Counter or Kind is set.
type ScoreTerm struct {
	Counter   string // session counter name
	Kind      string // entity kind for an aggregate term
	Field     string // numeric field aggregated over entities of Kind
	Aggregate string // "sum", "mean", "count" (count ignores Field)
	Status    string // restrict the aggregate to entities in this status, "" for all
	Weight    float64
}

// ScoreDef declares the visible-score formula and its bounds.
type ScoreDef struct {
	Base  float64
	Terms []ScoreTerm
	Min   *float64
	Max   *float64
}

// DecayDef declares a per-step field adjustment applied to every entity
// of a kind during advance.
type DecayDef struct {
	Kind   string
	Field  string
	Delta  float64
	Status string // restrict to entities in this status, "" for all
}

// DeadlineDef forces entities stuck in a status past a step budget into
// an escalation status during advance.
type DeadlineDef struct {
	Kind       string
	Status     string
	AfterSteps int
	EscalateTo string
	Note       string             // synthetic record description
	Axes       map[string]float64 // axis deltas attached to the synthetic record
}

// SessionState is the complete mutable state of one running simulation.
// It is the unit of persistence: everything needed to resume a session
// and to recompute every score lives here.
type SessionState struct {
	SessionID   string                  `json:"session_id"`
	ScenarioID  string                  `json:"scenario_id"`
	Variant     Variant                 `json:"variant"`
	Seed        int64                   `json:"seed"`
	Step        int                     `json:"current_step"`
	MaxSteps    int                     `json:"max_steps"`
	Status      SessionStatus           `json:"status"`
	Entities    map[string]*EntityState `json:"entities"`
	EntityOrder []string                `json:"entity_order"` // stable insertion order for listing
	Counters    map[string]int          `json:"counters"`
	Flags       map[string]bool         `json:"flags"`
	Log         []ActionRecord          `json:"action_log"`
	RNGPos      int64                   `json:"rng_position"`
}

// Result is the output of one dispatched command.
type Result struct {
	Outcome Outcome
	Output  []string // effect description lines
	Score   float64  // updated visible score
}
