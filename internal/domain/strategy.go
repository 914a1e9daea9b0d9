package domain

// ConversationAction is the strategic stage's verdict on a conversation
type ConversationAction string

const (
	ConversationReply   ConversationAction = "reply"
	ConversationSkip    ConversationAction = "skip"
	ConversationArchive ConversationAction = "archive"
	ConversationClose   ConversationAction = "close"
)

// Valid reports whether the verdict is one the pipeline understands
func (a ConversationAction) Valid() bool {
	switch a {
	case ConversationReply, ConversationSkip, ConversationArchive, ConversationClose:
		return true
	}
	return false
}

// StrategyDirective is the strategic stage's output: the next
// conversational move plus, for replies, the guidance the generation
// stage must honor. Ephemeral; never persisted.
type StrategyDirective struct {
	ConversationAction ConversationAction `json:"conversation_action"`
	ActionReason       string             `json:"action_reason"`

	// reply-only fields
	Phase             string             `json:"conversation_phase,omitempty"`
	Objective         string             `json:"objective,omitempty"`
	Approach          string             `json:"approach,omitempty"`
	SubjectsToExplore []string           `json:"subjects_to_explore,omitempty"`
	Tone              string             `json:"tone,omitempty"`
	PainPoints        []string           `json:"pain_points_detected,omitempty"`
	PainAmplification *PainAmplification `json:"pain_amplification,omitempty"`
	PivotRequired     bool               `json:"pivot_required,omitempty"`
	TransitionBridge  string             `json:"transition_bridge,omitempty"`
	MaxQuestions      int                `json:"max_questions,omitempty"`
	Avoid             []string           `json:"avoid,omitempty"`
	Rationale         string             `json:"rationale,omitempty"`
}

// PainAmplification guides quantifying a minimized pain point
type PainAmplification struct {
	ShouldAmplify      bool     `json:"should_amplify"`
	PainPoint          string   `json:"pain_point,omitempty"`
	ContextNeeded      []string `json:"context_needed,omitempty"`
	AmplificationAngle string   `json:"amplification_angle,omitempty"`
}

// Normalize clamps directive fields to the pipeline's hard output
// constraints: at most one subject per message and at most one open
// question, regardless of what the model returned.
func (d *StrategyDirective) Normalize() {
	if len(d.SubjectsToExplore) > 1 {
		d.SubjectsToExplore = d.SubjectsToExplore[:1]
	}
	if d.ConversationAction == ConversationReply {
		d.MaxQuestions = 1
	}
}
