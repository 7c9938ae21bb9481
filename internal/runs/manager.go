package runs

import (
	"errors"
	"fmt"
	"sync"

	"upload-ai/internal/domain"
)

// ErrRunInProgress is returned when starting a second run before the first
// reaches a terminal status.
var ErrRunInProgress = errors.New("run already in progress")

// Manager tracks the single allowed in-flight run and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Run
}

// NewManager creates a manager in waiting state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Run{
			Status: domain.RunStatusWaiting,
		},
	}
}

// Start creates a new run and moves it to converting state. Any VideoID or
// error detail from a prior terminal run is discarded.
func (m *Manager) Start(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrRunInProgress
	}

	m.current = domain.Run{
		ID:     runID,
		Status: domain.RunStatusConverting,
	}
	return nil
}

// Transition validates and applies state transitions for the current run.
func (m *Manager) Transition(status domain.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.RunStatusWaiting {
		return fmt.Errorf("cannot transition without an active run")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Fail moves the current run to its terminal error state, recording detail.
func (m *Manager) Fail(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Status = domain.RunStatusError
	m.current.Error = message
}

// SetVideoID records the backend identifier returned by the upload.
func (m *Manager) SetVideoID(videoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.VideoID = videoID
}

// Current returns a snapshot of the current run.
func (m *Manager) Current() domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears run metadata and returns the manager to waiting.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Run{Status: domain.RunStatusWaiting}
}

// IsActive reports whether the current state is a non-terminal stage.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// isActive checks if a status represents an in-flight pipeline stage.
func isActive(status domain.RunStatus) bool {
	switch status {
	case domain.RunStatusConverting, domain.RunStatusUploading, domain.RunStatusGenerating:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed run state machine edges. Statuses
// only move forward, except that every in-flight stage may fail to error.
func isValidTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunStatusWaiting:
		return to == domain.RunStatusConverting
	case domain.RunStatusConverting:
		return to == domain.RunStatusUploading || to == domain.RunStatusError
	case domain.RunStatusUploading:
		return to == domain.RunStatusGenerating || to == domain.RunStatusError
	case domain.RunStatusGenerating:
		return to == domain.RunStatusSuccess || to == domain.RunStatusError
	case domain.RunStatusSuccess, domain.RunStatusError:
		return to == domain.RunStatusConverting || to == domain.RunStatusWaiting
	default:
		return false
	}
}
