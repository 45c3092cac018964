// Package domain defines the core data model and error vocabulary shared by
// every Mission Control component: missions, events, queued messages, and
// the typed errors components use to signal failure across package
// boundaries.
package domain

import (
	"encoding/json"
	"time"
)

// MissionStatus is the lifecycle state of a Mission.
type MissionStatus string

const (
	MissionActive       MissionStatus = "active"
	MissionCompleted    MissionStatus = "completed"
	MissionFailed       MissionStatus = "failed"
	MissionInterrupted  MissionStatus = "interrupted"
	MissionBlocked      MissionStatus = "blocked"
	MissionNotFeasible  MissionStatus = "not_feasible"
)

// transitions enumerates the allowed MissionStatus moves. A transition not
// listed here fails with ErrInvalidTransition.
var transitions = map[MissionStatus]map[MissionStatus]bool{
	MissionActive: {
		MissionCompleted:   true,
		MissionFailed:      true,
		MissionInterrupted: true,
		MissionBlocked:     true,
		MissionNotFeasible: true,
	},
	MissionInterrupted: {MissionActive: true},
	MissionBlocked:     {MissionActive: true},
	MissionFailed:      {MissionActive: true},
	MissionCompleted:   {MissionActive: true},
	MissionNotFeasible: {},
}

// CanTransition reports whether moving from one status to another is allowed
// by the state machine in spec §4.3.
func CanTransition(from, to MissionStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// Mission is the persistent record of a single agent session.
type Mission struct {
	ID            string        `json:"id"`
	Status        MissionStatus `json:"status"`
	Title         string        `json:"title,omitempty"`
	WorkspaceID   string        `json:"workspace_id,omitempty"`
	Agent         string        `json:"agent,omitempty"`
	Backend       string        `json:"backend,omitempty"`
	ModelOverride string        `json:"model_override,omitempty"`
	ConfigProfile string        `json:"config_profile,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	InterruptedAt *time.Time    `json:"interrupted_at,omitempty"`
}

// Resumable reports whether this mission's status permits a resume call.
func (m *Mission) Resumable() bool {
	switch m.Status {
	case MissionInterrupted, MissionBlocked, MissionFailed, MissionCompleted:
		return true
	default:
		return false
	}
}

// MarshalJSON includes the derived Resumable() value alongside Mission's own
// fields, since spec §3 lists "resumable" as an attribute of the wire
// representation even though it is computed, not stored.
func (m Mission) MarshalJSON() ([]byte, error) {
	type alias Mission
	return json.Marshal(struct {
		alias
		Resumable bool `json:"resumable"`
	}{alias: alias(m), Resumable: m.Resumable()})
}

// CreateMissionParams are the inputs accepted when creating a new mission.
type CreateMissionParams struct {
	WorkspaceID   string `json:"workspace_id,omitempty"`
	Agent         string `json:"agent,omitempty"`
	Backend       string `json:"backend,omitempty"`
	ModelOverride string `json:"model_override,omitempty"`
	ConfigProfile string `json:"config_profile,omitempty"`
	Title         string `json:"title,omitempty"`
}
