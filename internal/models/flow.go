package models

import (
	"encoding/json"
	"fmt"
)

// FlowState is the persisted conversation state of one user.
// Entries in Flows other than CurrentFlow are paused and can be resumed.
type FlowState struct {
	CurrentFlow *string                 `json:"current_flow"`
	Flows       map[string]FlowProgress `json:"flows"`
}

// FlowProgress records where a flow stopped and its flow-local data
type FlowProgress struct {
	Step string            `json:"step"`
	Data map[string]string `json:"data"`
}

// NewFlowState returns an empty state with no active flow
func NewFlowState() FlowState {
	return FlowState{Flows: make(map[string]FlowProgress)}
}

// Active returns the name of the active flow, if any
func (s FlowState) Active() (string, bool) {
	if s.CurrentFlow == nil || *s.CurrentFlow == "" {
		return "", false
	}
	return *s.CurrentFlow, true
}

// Paused returns the last recorded step of every flow that is not active.
func (s FlowState) Paused() map[string]string {
	active, _ := s.Active()
	paused := make(map[string]string)
	for name, p := range s.Flows {
		if name != active {
			paused[name] = p.Step
		}
	}
	return paused
}

// Marshal serializes the state for the flow_states table
func (s FlowState) Marshal() (string, error) {
	if s.Flows == nil {
		s.Flows = make(map[string]FlowProgress)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal flow state: %w", err)
	}
	return string(data), nil
}

// UnmarshalFlowState parses a value written by Marshal
func UnmarshalFlowState(value string) (FlowState, error) {
	state := NewFlowState()
	if value == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal flow state: %w", err)
	}
	if state.Flows == nil {
		state.Flows = make(map[string]FlowProgress)
	}
	for name, p := range state.Flows {
		if p.Data == nil {
			p.Data = make(map[string]string)
			state.Flows[name] = p
		}
	}
	return state, nil
}
