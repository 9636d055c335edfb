package domain

import "time"

// DeviceStatus describes the currently selected device
type DeviceStatus struct {
	Connected   bool
	Serial      string
	DisplayName string
}

// Device is one line of the bridge's device enumeration
type Device struct {
	Serial string
	Status string
	Model  string
}

// Online reports whether the device is ready for commands
func (d Device) Online() bool {
	return d.Status == "device"
}

// Policy holds the safety and timing knobs consumed by the core
type Policy struct {
	// SafeRoot is the remote prefix under which destructive operations are allowed
	SafeRoot string

	// AllowUnsafe lifts the safe-root restriction
	AllowUnsafe bool

	// DefaultTimeout applies to non-streaming bridge calls
	DefaultTimeout time.Duration

	// WhatIf suppresses destructive commands and reports them instead
	WhatIf bool

	// LargeDeleteThreshold escalates delete confirmation above this many bytes
	LargeDeleteThreshold int64
}
