// Package api serves attention state and a websocket event stream.
package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// Envelope types.
const (
	MsgWindow   = "window"
	MsgEye      = "eye"
	MsgSnapshot = "snapshot"
)

// Envelope wraps every message on the event stream.
type Envelope struct {
	ID     string              `json:"id"`
	Type   string              `json:"type"`
	At     time.Time           `json:"at"`
	Window *domain.WindowEvent `json:"window,omitempty"`
	Eye    *domain.EyeEvent    `json:"eye,omitempty"`
	State  *Snapshot           `json:"state,omitempty"`
}

// Snapshot is the latest attention state as observed by the API.
type Snapshot struct {
	Label        domain.ActivityLabel `json:"label"`
	Title        string               `json:"title"`
	Eye          domain.EyeState      `json:"eye"`
	WindowEvents int                  `json:"window_events"`
	EyeEvents    int                  `json:"eye_events"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func newEnvelope(kind string, at time.Time) Envelope {
	return Envelope{
		ID:   uuid.NewString(),
		Type: kind,
		At:   at,
	}
}
