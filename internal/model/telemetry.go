package model

import (
	"time"
)

// Telemetry channel names, in feature order.
const (
	ChannelVolt      = "volt"
	ChannelRotate    = "rotate"
	ChannelPressure  = "pressure"
	ChannelVibration = "vibration"
)

// Channels lists the telemetry channels in the order they appear as features.
var Channels = []string{ChannelVolt, ChannelRotate, ChannelPressure, ChannelVibration}

// Reading one hourly sensor snapshot for one machine
type Reading struct {
	MachineID int       `json:"machineID"`
	Timestamp time.Time `json:"datetime"`
	Volt      float64   `json:"volt"`
	Rotate    float64   `json:"rotate"`
	Pressure  float64   `json:"pressure"`
	Vibration float64   `json:"vibration"`
}

// Channel returns the value of a telemetry channel by name.
func (r *Reading) Channel(name string) (float64, bool) {
	switch name {
	case ChannelVolt:
		return r.Volt, true
	case ChannelRotate:
		return r.Rotate, true
	case ChannelPressure:
		return r.Pressure, true
	case ChannelVibration:
		return r.Vibration, true
	}
	return 0, false
}

// ErrorEvent error log entry (loaded, not featurized)
type ErrorEvent struct {
	MachineID int       `json:"machineID"`
	Timestamp time.Time `json:"datetime"`
	ErrorID   string    `json:"errorID"`
}

// MaintenanceEvent component replacement (loaded, not featurized)
type MaintenanceEvent struct {
	MachineID int       `json:"machineID"`
	Timestamp time.Time `json:"datetime"`
	Component string    `json:"comp"`
}

// FailureEvent observed failure of a machine component
type FailureEvent struct {
	MachineID int       `json:"machineID"`
	Timestamp time.Time `json:"datetime"`
	Failure   string    `json:"failure"`
}

// Machine static machine metadata
type Machine struct {
	MachineID int    `json:"machineID"`
	Model     string `json:"model"`
	Age       int    `json:"age"`
}

// LabeledReading a reading joined with its machine metadata and failure label
type LabeledReading struct {
	Reading
	Model       string `json:"model,omitempty"`
	Age         int    `json:"age"`
	HasMetadata bool   `json:"-"`
	Label       int    `json:"failure_in_next_24h"` // 1 if a failure falls inside the lookahead window
}

// Dataset the five input tables of one pipeline run
type Dataset struct {
	Telemetry   []Reading
	Errors      []ErrorEvent
	Maintenance []MaintenanceEvent
	Failures    []FailureEvent
	Machines    []Machine
}
