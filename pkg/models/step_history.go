package models

import "time"

// StepHistoryAction tags a structural change to a step.
type StepHistoryAction string

const (
	StepHistoryActionCreate     StepHistoryAction = "create"
	StepHistoryActionNameChange StepHistoryAction = "name_change"
	StepHistoryActionDelete     StepHistoryAction = "delete"
	StepHistoryActionMoveUsers  StepHistoryAction = "move_users"
)

func (a StepHistoryAction) IsValid() bool {
	switch a {
	case StepHistoryActionCreate, StepHistoryActionNameChange, StepHistoryActionDelete, StepHistoryActionMoveUsers:
		return true
	default:
		return false
	}
}

// StepHistoryDetails is the structured payload of a history entry. Which
// fields are set depends on the action.
type StepHistoryDetails struct {
	Name       string   `json:"name,omitempty"`
	OldName    string   `json:"old_name,omitempty"`
	NewName    string   `json:"new_name,omitempty"`
	SourceStep string   `json:"source_step,omitempty"`
	TargetStep string   `json:"target_step,omitempty"`
	MovedUsers []string `json:"moved_users,omitempty"`
	MovedTeams []string `json:"moved_teams,omitempty"`
}

// StepHistory is an append-only audit entry for a step topology change.
type StepHistory struct {
	ID        string             `json:"id"`
	StepID    string             `json:"step_id"`
	ActorID   string             `json:"actor_id"`
	Action    StepHistoryAction  `json:"action"`
	Details   StepHistoryDetails `json:"details"`
	CreatedAt time.Time          `json:"created_at"`
}
