package player

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager maintains the registry of all connected Sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session // accountID → session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session exists for the same
// account, it is closed first (handles duplicate login / reconnect).
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if old, ok := sm.sessions[s.AccountID]; ok {
		old.Close()
		sm.logger.Info("duplicate session displaced",
			zap.Int64("account_id", s.AccountID))
	}
	sm.sessions[s.AccountID] = s
	sm.logger.Info("session registered",
		zap.Int64("account_id", s.AccountID),
		zap.String("role", s.Role))
}

// Unregister removes the session for an account.
func (sm *SessionManager) Unregister(accountID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, accountID)
	sm.logger.Info("session unregistered", zap.Int64("account_id", accountID))
}

// SweepClosed drops sessions that closed without unregistering
// themselves. Returns the number of sessions removed.
func (sm *SessionManager) SweepClosed() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	swept := 0
	for id, s := range sm.sessions {
		if s.IsClosed() {
			delete(sm.sessions, id)
			swept++
		}
	}
	return swept
}

// Get returns the session for an account, or nil if not found.
func (sm *SessionManager) Get(accountID int64) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[accountID]
}

// GetByCharacter finds the session whose bound character matches charID.
func (sm *SessionManager) GetByCharacter(charID int64) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, s := range sm.sessions {
		if id, _ := s.Character(); id == charID {
			return s
		}
	}
	return nil
}

// IsOnline reports whether an account is currently connected.
func (sm *SessionManager) IsOnline(accountID int64) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.sessions[accountID]
	return ok
}

// Count returns the number of currently connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns a snapshot slice of all current sessions.
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// BroadcastAll sends a raw pre-encoded packet to every connected session.
// Uses non-blocking send to prevent slow connections from blocking the broadcast.
func (sm *SessionManager) BroadcastAll(data []byte) {
	for _, s := range sm.All() {
		s.SendRaw(data)
	}
}

// BroadcastToAll sends a packet to every connected session (typed version).
func (sm *SessionManager) BroadcastToAll(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		sm.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	sm.BroadcastAll(data)
}

// CloseAllSessions gracefully closes all connected sessions.
func (sm *SessionManager) CloseAllSessions() {
	sessions := sm.All()

	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
