package models

import "time"

// ActionType classifies an audited automation action
type ActionType string

const (
	ActionCapture  ActionType = "capture"
	ActionClick    ActionType = "click"
	ActionTypeText ActionType = "type"
)

// ActionRecord is one entry in the append-only action log. Details carries
// free-form result data, e.g. the bounding box used for a capture or the
// absolute coordinates of a click.
type ActionRecord struct {
	ActionID  string                 `json:"actionId"`
	Timestamp time.Time              `json:"timestamp"`
	Type      ActionType             `json:"type"`
	SessionID string                 `json:"sessionId"`
	Details   map[string]interface{} `json:"details"`
}
