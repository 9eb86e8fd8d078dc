package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the framework-wide taxonomy. Every rejection is a
// recoverable, reportable refusal of one command; none of these is fatal.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrScenarioUnknown   = errors.New("unknown scenario")
	ErrEntityNotFound    = errors.New("entity not found")
	ErrUnknownAction     = errors.New("unknown action")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOutOfRange        = errors.New("value out of range")
)

// InvalidArgumentsError reports which argument fields violated the
// action's declared schema.
type InvalidArgumentsError struct {
	Action string
	Fields []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Action, strings.Join(e.Fields, ", "))
}

// RuleBlockedError is the structured refusal returned when a hard-rules
// session rejects an action. Not a framework failure: the refusal itself
// is scoring-relevant data and is recorded in the action log.
type RuleBlockedError struct {
	RuleID  string
	Message string
	Matched []string // every rule id whose condition held
}

func (e *RuleBlockedError) Error() string {
	return fmt.Sprintf("blocked by rule %s: %s", e.RuleID, e.Message)
}
