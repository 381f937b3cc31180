package defs

import (
	"time"
)

// SessionState is the state of a streaming session.
type SessionState int

// Session states.
const (
	SessionStateCreated SessionState = iota
	SessionStateNegotiating
	SessionStateConnected
	SessionStateClosing
	SessionStateClosed
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionStateCreated:
		return "created"
	case SessionStateNegotiating:
		return "negotiating"
	case SessionStateConnected:
		return "connected"
	case SessionStateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// APIError is a generic error response.
type APIError struct {
	Error string `json:"error"`
}

// APISession is a session returned by the HTTP API.
type APISession struct {
	ClientID         string            `json:"client_id"`
	CreatedAt        time.Time         `json:"created_at"`
	State            string            `json:"state"`
	Source           string            `json:"source"`
	DetectionEnabled bool              `json:"detection_enabled"`
	LatestSummary    *DetectionSummary `json:"latest_summary,omitempty"`
}

// APISessionList is the response of the active-streams endpoint.
type APISessionList struct {
	Count    int          `json:"count"`
	Sessions []APISession `json:"active_streams"`
}
