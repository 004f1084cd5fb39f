package domain

import (
	"time"
)

type CallStatus string

const (
	CallStatusOK    CallStatus = "ok"
	CallStatusError CallStatus = "error"
)

// CallRequest addresses one remote method on one service.
type CallRequest struct {
	Service string         `json:"service"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// CallRecord is the audit entry written for every dispatched call.
type CallRecord struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Service    string     `json:"service" gorm:"index"`
	Method     string     `json:"method"`
	Params     string     `json:"params"` // JSON encoded
	Status     CallStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
}

func (CallRecord) TableName() string {
	return "calls"
}

// Remote error codes carried on every transport.
const (
	CodeInternal        = 1
	CodeServiceNotFound = 2
	CodeMethodNotFound  = 3
	CodeInvalidParams   = 4
	CodeBusy            = 5
	CodeCommandFailed   = 6
	CodeUnauthenticated = 7
)

// RemoteError is the failure shape returned by the engine and rebuilt by
// clients. Error returns Message unchanged so callers can show it verbatim.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

func NewRemoteError(code int, message string) *RemoteError {
	return &RemoteError{Code: code, Message: message}
}
