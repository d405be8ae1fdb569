package models

import "time"

// SuggestionResponse is the state of an offered suggestion.
type SuggestionResponse string

const (
	// ResponsePending indicates the offer awaits a response.
	ResponsePending SuggestionResponse = "pending"
	// ResponseAccepted indicates the user took the suggestion.
	ResponseAccepted SuggestionResponse = "accepted"
	// ResponseDeclined indicates the user declined the suggestion.
	ResponseDeclined SuggestionResponse = "declined"
	// ResponseExpired indicates the offer went unanswered past its expiry.
	ResponseExpired SuggestionResponse = "expired"
)

// Valid returns true if the response is a known value.
func (r SuggestionResponse) Valid() bool {
	switch r {
	case ResponsePending, ResponseAccepted, ResponseDeclined, ResponseExpired:
		return true
	default:
		return false
	}
}

// Final reports whether no further offer may ever follow this response.
func (r SuggestionResponse) Final() bool {
	return r == ResponseAccepted || r == ResponseDeclined
}

// SuggestionRecord is one offer instance of a task in a window.
// Records are created Pending and only ever transitioned, never deleted.
type SuggestionRecord struct {
	ID          string             `json:"id" yaml:"id"`
	TaskID      string             `json:"task_id" yaml:"task_id"`
	TaskTitle   string             `json:"task_title,omitempty" yaml:"task_title,omitempty"`
	Seq         int                `json:"seq" yaml:"seq"`
	OfferedAt   time.Time          `json:"offered_at" yaml:"offered_at"`
	Window      AvailabilityWindow `json:"window" yaml:"window"`
	Score       float64            `json:"score" yaml:"score"`
	Response    SuggestionResponse `json:"response" yaml:"response"`
	RespondedAt *time.Time         `json:"responded_at,omitempty" yaml:"responded_at,omitempty"`
}

// BudgetCounter is the cumulative model spend for one billing period.
type BudgetCounter struct {
	Period    string    `json:"period" yaml:"period"`
	Spent     float64   `json:"spent" yaml:"spent"`
	Cap       float64   `json:"cap" yaml:"cap"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
