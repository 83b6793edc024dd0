package models

import "time"

// Training event types.
const (
	EventStarted  = "started"
	EventEpoch    = "epoch"
	EventFinished = "finished"
	EventStopped  = "stopped"
	EventFailed   = "failed"
)

// TrainingEvent is published on every state change of a run and every
// configured number of epochs.
type TrainingEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Epoch     int       `json:"epoch"`
	MaxEpochs int       `json:"max_epochs"`
	Running   bool      `json:"running"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
