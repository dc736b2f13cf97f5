// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

// State is the position of the orchestrator within a request cycle.
type State int

const (
	// StateIdle means no cycle is in flight.
	StateIdle State = iota
	// StateDispatched means the user message and placeholder are appended
	// and the request is being routed.
	StateDispatched
	// StateAwaitingCredential means the host is prompting for a key grant.
	StateAwaitingCredential
	// StateRetrying means the grant completed and the call is being made
	// for the second and last time.
	StateRetrying
	// StateStreaming means chunks of a chat stream are being applied.
	StateStreaming
	// StateAwaitingResponse means a single-shot call is in flight.
	StateAwaitingResponse
	// StateSettledSuccess means the placeholder holds the final response.
	StateSettledSuccess
	// StateSettledError means the placeholder holds an error message.
	StateSettledError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateAwaitingCredential:
		return "awaiting_credential"
	case StateRetrying:
		return "retrying"
	case StateStreaming:
		return "streaming"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateSettledSuccess:
		return "settled_success"
	case StateSettledError:
		return "settled_error"
	default:
		return "unknown"
	}
}

// IsSettled returns true for the two terminal states.
func (s State) IsSettled() bool {
	return s == StateSettledSuccess || s == StateSettledError
}

// InFlight returns true while a cycle is between dispatch and settle.
func (s State) InFlight() bool {
	return s != StateIdle && !s.IsSettled()
}

// Transition is one state change within a cycle.
type Transition struct {
	Cycle string
	From  State
	To    State
}
