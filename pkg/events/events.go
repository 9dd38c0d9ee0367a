// Package events defines the domain events emitted by review routing and step
// topology changes.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic every reviewflow event is published on.
const Topic = "reviewflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Form response lifecycle events.
	FormResponseSubmittedEvent EventType = "form_response.submitted"
	FormResponseAdvancedEvent  EventType = "form_response.advanced"
	FormResponseApprovedEvent  EventType = "form_response.approved"
	FormResponseRejectedEvent  EventType = "form_response.rejected"

	// Step topology events.
	StepCreatedEvent      EventType = "step.created"
	StepRenamedEvent      EventType = "step.renamed"
	StepMembersMovedEvent EventType = "step.members_moved"
	StepDeletedEvent      EventType = "step.deleted"
)

// AllEventTypes lists every event type in publication order of a response's
// life, followed by the topology events.
var AllEventTypes = []EventType{
	FormResponseSubmittedEvent,
	FormResponseAdvancedEvent,
	FormResponseApprovedEvent,
	FormResponseRejectedEvent,
	StepCreatedEvent,
	StepRenamedEvent,
	StepMembersMovedEvent,
	StepDeletedEvent,
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event of type eventType caused by actorID.
func NewBaseEvent(eventType EventType, actorID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
	}
}

type FormResponseSubmitted struct {
	BaseEvent

	FormResponseID string `json:"form_response_id"`
	FlowID         string `json:"flow_id"`
	StepID         string `json:"step_id"`
	SubmittedBy    string `json:"submitted_by"`
}

func (e FormResponseSubmitted) GetType() EventType {
	return FormResponseSubmittedEvent
}

// FormResponseAdvanced is emitted when an approval moves a response to the
// next step of its flow.
type FormResponseAdvanced struct {
	BaseEvent

	FormResponseID string `json:"form_response_id"`
	FlowID         string `json:"flow_id"`
	FromStepID     string `json:"from_step_id"`
	ToStepID       string `json:"to_step_id"`
}

func (e FormResponseAdvanced) GetType() EventType {
	return FormResponseAdvancedEvent
}

type FormResponseApproved struct {
	BaseEvent

	FormResponseID string   `json:"form_response_id"`
	FlowID         string   `json:"flow_id"`
	StepID         string   `json:"step_id"`
	Recipients     []string `json:"recipients"`
}

func (e FormResponseApproved) GetType() EventType {
	return FormResponseApprovedEvent
}

type FormResponseRejected struct {
	BaseEvent

	FormResponseID string   `json:"form_response_id"`
	FlowID         string   `json:"flow_id"`
	StepID         string   `json:"step_id"`
	Reason         string   `json:"reason"`
	Recipients     []string `json:"recipients"`
}

func (e FormResponseRejected) GetType() EventType {
	return FormResponseRejectedEvent
}

type StepCreated struct {
	BaseEvent

	StepID string `json:"step_id"`
	Name   string `json:"name"`
}

func (e StepCreated) GetType() EventType {
	return StepCreatedEvent
}

type StepRenamed struct {
	BaseEvent

	StepID  string `json:"step_id"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (e StepRenamed) GetType() EventType {
	return StepRenamedEvent
}

type StepMembersMoved struct {
	BaseEvent

	SourceStepID string   `json:"source_step_id"`
	TargetStepID string   `json:"target_step_id"`
	UserIDs      []string `json:"user_ids,omitempty"`
	TeamIDs      []string `json:"team_ids,omitempty"`
}

func (e StepMembersMoved) GetType() EventType {
	return StepMembersMovedEvent
}

type StepDeleted struct {
	BaseEvent

	StepID string `json:"step_id"`
	Name   string `json:"name"`
}

func (e StepDeleted) GetType() EventType {
	return StepDeletedEvent
}
