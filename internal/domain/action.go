package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies a scheduled or proposed outbound action
type ActionType string

const (
	ActionSendFirstContact ActionType = "send_first_contact"
	ActionSendFollowupA1   ActionType = "send_followup_a_1"
	ActionSendFollowupA2   ActionType = "send_followup_a_2"
	ActionSendFollowupA3   ActionType = "send_followup_a_3"
	ActionSendFollowupB    ActionType = "send_followup_b"
	ActionSendFollowupC    ActionType = "send_followup_c"
	ActionMessageProposed  ActionType = "message_proposed"
	ActionFollowupProposed ActionType = "followup_proposed"
)

// SendActions lists the action types the executor dispatches unattended
var SendActions = []ActionType{
	ActionSendFirstContact,
	ActionSendFollowupA1,
	ActionSendFollowupA2,
	ActionSendFollowupA3,
	ActionSendFollowupB,
	ActionSendFollowupC,
}

// Valid reports whether the action tag is known
func (a ActionType) Valid() bool {
	switch a {
	case ActionSendFirstContact, ActionSendFollowupA1, ActionSendFollowupA2,
		ActionSendFollowupA3, ActionSendFollowupB, ActionSendFollowupC,
		ActionMessageProposed, ActionFollowupProposed:
		return true
	}
	return false
}

// FollowupStep maps a ladder action to its template step (1-based).
// Returns 0 for actions outside the ladder.
func (a ActionType) FollowupStep() int {
	switch a {
	case ActionSendFollowupA1:
		return 1
	case ActionSendFollowupA2:
		return 2
	case ActionSendFollowupA3:
		return 3
	case ActionSendFollowupB:
		return 1
	}
	return 0
}

// Source records who scheduled an action
type Source string

const (
	SourceUser   Source = "user"
	SourceLLM    Source = "llm"
	SourceSystem Source = "system"
)

// ValidationStatus is the approval workflow state of an action entry
type ValidationStatus string

const (
	ValidationPending      ValidationStatus = "pending"
	ValidationApproved     ValidationStatus = "approved"
	ValidationRejected     ValidationStatus = "rejected"
	ValidationAutoExecute  ValidationStatus = "auto_execute"
	ValidationAutoExecuted ValidationStatus = "auto_executed"
	ValidationCancelled    ValidationStatus = "cancelled"
)

// EntryStatus is the execution outcome of an action entry
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntrySuccess EntryStatus = "success"
	EntryFailed  EntryStatus = "failed"
)

// ActionLogEntry is one row of the action log queue: a scheduled send,
// a proposed message awaiting validation, or an executed action's record.
type ActionLogEntry struct {
	ID                 int64
	AccountID          int64
	ProspectID         *int64
	Action             ActionType
	Source             Source
	Priority           int
	RequiresValidation bool
	ValidationStatus   ValidationStatus
	Payload            json.RawMessage
	Status             EntryStatus
	Error              string
	RejectionCategory  string
	CreatedAt          time.Time
	ExecutedAt         *time.Time
}

// ActionPayload is the typed payload shared by scheduled send entries
type ActionPayload struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Content     string    `json:"content,omitempty"`
	Reply       string    `json:"reply,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	FollowupNum int       `json:"followup_number,omitempty"`
}

// DecodePayload unmarshals the entry payload into its typed form
func (e *ActionLogEntry) DecodePayload() (ActionPayload, error) {
	var p ActionPayload
	if len(e.Payload) == 0 {
		return p, fmt.Errorf("entry %d: empty payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("entry %d: decoding payload: %w", e.ID, err)
	}
	return p, nil
}

// Executed reports whether the entry has already been dispatched
func (e *ActionLogEntry) Executed() bool {
	return e.ExecutedAt != nil
}
