// Package api defines the wire types shared by the service and its CLI.
package api

import (
	"phobos.org.uk/sajtmaskin/internal/session"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
)

// ComponentType identifies the service in status responses.
const ComponentType = "interpreter"

// Interface names identify service capabilities.
const (
	InterfaceStatusable = "statusable"
	InterfaceObservable = "observable"
	InterfaceStreamable = "streamable"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Type          string   `json:"type"`
	Interfaces    []string `json:"interfaces"`
	Version       string   `json:"version"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	ActiveStreams int      `json:"active_streams"`
	TotalStreams  int      `json:"total_streams"`
	Upstream      string   `json:"upstream"`
	UpstreamReady bool     `json:"upstream_ready"`
}

// InterpretRequest is the body of POST /interpret. Data is one raw chunk.
type InterpretRequest struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// GenerateRequest is the body of POST /streams/generate.
type GenerateRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
	System  string `json:"system,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// StreamCreated is returned when a stream is registered.
type StreamCreated struct {
	StreamID string            `json:"stream_id"`
	State    streamstate.State `json:"state"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}
