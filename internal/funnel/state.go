// AngelaMos | 2026
// state.go

// Package funnel holds the onboarding state machine: the state enum and
// its transition table, the metadata document attached to each user, the
// Postgres-backed store, and the engine that is the only writer of state.
package funnel

import (
	"fmt"

	"github.com/angelamos/tenfold/internal/core"
)

type State string

const (
	StateVisitor State = "VISITOR"
	StateAuth    State = "AUTH"
	StatePayment State = "PAYMENT"
	StateDrive   State = "DRIVE"
	StateActive  State = "ACTIVE"
)

// transitionTable is the single source of truth for the funnel graph.
// Backward edges exist so a user can re-enter payment after a failed
// charge or a revoked drive connection.
var transitionTable = map[State][]State{
	StateVisitor: {StateAuth},
	StateAuth:    {StatePayment},
	StatePayment: {StateDrive, StateAuth},
	StateDrive:   {StateActive, StatePayment},
	StateActive:  {StatePayment},
}

// requiredFields lists what a transition into each state must carry in
// its metadata patch before the engine will accept it.
var requiredFields = map[State][]string{
	StateVisitor: {},
	StateAuth:    {"email", "auth_id"},
	StatePayment: {"plan_id", "session_id", "status"},
	StateDrive:   {"auth_status"},
	StateActive:  {"folder_id"},
}

// requirementNamespace maps a state to the metadata namespace its
// required fields live in.
var requirementNamespace = map[State]string{
	StateAuth:    NamespaceUser,
	StatePayment: NamespacePayment,
	StateDrive:   NamespaceDrive,
	StateActive:  NamespaceWorkspaceStatus,
}

func RequirementNamespace(s State) string {
	return requirementNamespace[s]
}

func (s State) Valid() bool {
	_, ok := transitionTable[s]
	return ok
}

func (s State) String() string {
	return string(s)
}

func (s State) CanTransitionTo(target State) bool {
	for _, next := range transitionTable[s] {
		if next == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy so callers cannot mutate the table.
func AllowedTransitions(s State) []State {
	next := transitionTable[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

func RequiredFields(s State) []string {
	fields := requiredFields[s]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("parse state %q: %w", raw, core.ErrInvalidState)
	}
	return s, nil
}
