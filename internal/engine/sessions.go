package engine

import (
	"crypto/subtle"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	fileutil "trns/internal/file"
)

// Sessions tracks which session identifiers have presented the shared
// authentication key. The authenticated set survives restarts through an
// atomically written JSON file under the data dir.
type Sessions struct {
	mu      sync.RWMutex
	authed  map[string]struct{}
	authKey string
	path    string
}

// NewSessions creates a store backed by the given state file. An empty path
// disables persistence (used by tests and the one-shot CLI).
func NewSessions(authKey, path string) *Sessions {
	return &Sessions{
		authed:  make(map[string]struct{}),
		authKey: authKey,
		path:    path,
	}
}

// Load restores the authenticated set from disk. A missing file is not an
// error.
func (s *Sessions) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	s.mu.Lock()
	for _, id := range ids {
		s.authed[id] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// IsAuthenticated reports whether the session may submit work.
func (s *Sessions) IsAuthenticated(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authed[sessionID]
	return ok
}

// Authenticate checks the presented key and, on match, grants the session.
func (s *Sessions) Authenticate(sessionID, key string) error {
	if s.authKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.authKey)) != 1 {
		return ErrInvalidKey
	}
	s.Grant(sessionID)
	return nil
}

// Grant marks a session as authenticated without a key check. Used after a
// successful key exchange and by the trusted local CLI.
func (s *Sessions) Grant(sessionID string) {
	s.mu.Lock()
	_, existed := s.authed[sessionID]
	s.authed[sessionID] = struct{}{}
	s.mu.Unlock()
	if !existed {
		s.persist()
	}
}

// persist writes the authenticated set to disk, best-effort.
func (s *Sessions) persist() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.authed))
	for id := range s.authed {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	if err := fileutil.WriteJSONAtomic(s.path, ids); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("persist sessions failed")
	}
}
