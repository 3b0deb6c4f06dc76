package handlers

import (
	"sync"

	"clinic-records-server/internal/records"
)

// SessionManager tracks the open edit session per patient. A patient has at
// most one session at a time; the session itself is single-owner and is
// only ever driven through the handler that looked it up.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*records.Session
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*records.Session)}
}

// Put registers a session for the patient. Returns false if the patient
// already has an open session.
func (m *SessionManager) Put(patientID string, s *records.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[patientID]; exists {
		return false
	}
	m.sessions[patientID] = s
	return true
}

// Get returns the open session for the patient, if any.
func (m *SessionManager) Get(patientID string) (*records.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[patientID]
	return s, ok
}

// Remove drops the session for the patient and returns it, if any.
func (m *SessionManager) Remove(patientID string) (*records.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[patientID]
	if ok {
		delete(m.sessions, patientID)
	}
	return s, ok
}
