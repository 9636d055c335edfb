package domain

import "errors"

// Bridge errors
var (
	// ErrTimeout indicates a bridge call exceeded its deadline and was killed
	ErrTimeout = errors.New("operation timed out")

	// ErrBridgeFailed indicates the bridge exited non-zero or reported an error
	ErrBridgeFailed = errors.New("bridge command failed")

	// ErrDisconnected indicates the device went away during a call
	ErrDisconnected = errors.New("device disconnected")

	// ErrNoDevice indicates no connected device is available
	ErrNoDevice = errors.New("no device connected")

	// ErrUnsupported indicates the remote shell lacks a command or option
	ErrUnsupported = errors.New("unsupported by device")
)

// Validation errors
var (
	// ErrUnsafePath indicates a path contains shell metacharacters or control characters
	ErrUnsafePath = errors.New("unsafe path")

	// ErrOutsideSafeRoot indicates a path lies outside the configured safe root
	ErrOutsideSafeRoot = errors.New("path outside safe root")

	// ErrInvalidName indicates a rename target or new name is malformed
	ErrInvalidName = errors.New("invalid name")

	// ErrNotConfirmed indicates the user declined a confirmation gate
	ErrNotConfirmed = errors.New("not confirmed")
)

// Transfer errors
var (
	// ErrTransferFailed indicates the transfer tool failed or reported error text
	ErrTransferFailed = errors.New("transfer failed")

	// ErrVerifyFailed indicates source and destination did not match after a move
	ErrVerifyFailed = errors.New("verification failed")

	// ErrCancelled indicates the user cancelled a transfer
	ErrCancelled = errors.New("cancelled")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// Local filesystem errors
var (
	// ErrNotFound indicates a local path does not exist
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates insufficient local permissions
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotDirectory indicates a directory was expected
	ErrNotDirectory = errors.New("not a directory")
)
