package session

import (
	"fmt"
	"time"

	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
)

// StatusRefreshInterval throttles device status refresh while connected
const StatusRefreshInterval = 15 * time.Second

// State is the single mutable aggregate threaded through every operation.
// It is not safe for concurrent use: one operation at a time.
type State struct {
	Device          domain.DeviceStatus
	LastStatusCheck time.Time
	Cache           *dircache.Cache
	Features        Features
	Config          domain.Policy

	// Serial pins the session to a specific device; empty selects the first online one
	Serial string
}

// New creates a session state with an empty cache of the given capacity
func New(policy domain.Policy, cacheCapacity int) (*State, error) {
	if cacheCapacity <= 0 {
		cacheCapacity = dircache.DefaultCapacity
	}
	cache, err := dircache.New(cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory cache: %w", err)
	}
	return &State{
		Cache:  cache,
		Config: policy,
	}, nil
}

// HandleDisconnect drops everything that can no longer be trusted once the
// device goes away: device status, cached listings, aliases and feature flags
func (s *State) HandleDisconnect() {
	s.Device = domain.DeviceStatus{}
	s.LastStatusCheck = time.Time{}
	s.Cache.Clear()
	s.Features.Reset()
}

// StatusFresh reports whether the last status check is recent enough to skip refreshing
func (s *State) StatusFresh(now time.Time) bool {
	if !s.Device.Connected || s.LastStatusCheck.IsZero() {
		return false
	}
	return now.Sub(s.LastStatusCheck) < StatusRefreshInterval
}
