package domain

import "time"

type EventType string

const (
	EventCallStarted   EventType = "call_started"
	EventCallFinished  EventType = "call_finished"
	EventStatusChanged EventType = "status_changed"
)

type Event struct {
	Type    EventType `json:"type"`
	Service string    `json:"service"`
	Method  string    `json:"method,omitempty"`
	CallID  string    `json:"call_id,omitempty"`
	Error   string    `json:"error,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}
