package model

import "time"

// UserAction classifies what the user did with an offered suggestion.
type UserAction string

const (
	ActionSelected UserAction = "selected"
	ActionRejected UserAction = "rejected"
	ActionModified UserAction = "modified"
)

// Valid reports whether the action is one of the known values.
func (a UserAction) Valid() bool {
	switch a {
	case ActionSelected, ActionRejected, ActionModified:
		return true
	}
	return false
}

// FeedbackEvent is one append-only record of a user interacting with
// suggestions. Events are created by the caller-facing layer at the moment
// of user action and never updated or deleted. Duplicate submissions are
// acceptable; no idempotency key is required.
type FeedbackEvent struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id,omitempty"`
	SessionID      string                 `json:"session_id"`
	OperationType  string                 `json:"operation_type"`
	Query          string                 `json:"query"`
	Offered        []CompletionSuggestion `json:"offered,omitempty"`
	Chosen         *CompletionSuggestion  `json:"chosen,omitempty"`
	FinalInput     string                 `json:"final_input,omitempty"`
	RelevanceScore *float64               `json:"relevance_score,omitempty"`
	WasHelpful     *bool                  `json:"was_helpful,omitempty"`
	UserAction     UserAction             `json:"user_action"`
	ContextData    map[string]any         `json:"context_data,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Pattern is a historical query/selection pair mined from successful
// feedback, used to steer future prompt construction.
type Pattern struct {
	Query          string               `json:"query"`
	Chosen         CompletionSuggestion `json:"chosen"`
	RelevanceScore float64              `json:"relevance_score"`
	CreatedAt      time.Time            `json:"created_at"`
}

// FewShotExample is a prior successful interaction rendered as an
// input/output pair for prompt injection.
type FewShotExample struct {
	Query  string `json:"query"`
	Output string `json:"output"`
}
