// Package filestore persists the whole user->session mapping as a single
// JSON document, rewritten wholesale after every update.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mnemo/internal/logging"
	"mnemo/internal/session"
)

type store struct {
	path   string
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New loads the session file (absence is an empty mapping) and returns a
// store that keeps the live mapping in memory and rewrites the file on
// every Put.
func New(path string) (session.Store, error) {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	s := &store{
		path:     path,
		logger:   logging.NewComponentLogger("SessionFileStore"),
		sessions: make(map[string]*session.Session),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("No session file at %s, starting with empty state", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}

	var sessions map[string]*session.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.logger.Error("Failed to decode session file %s: %v. Preview: %s", s.path, err, previewJSON(data))
		return fmt.Errorf("decode session file %s: %w", s.path, err)
	}
	for userID, sess := range sessions {
		if sess == nil {
			delete(sessions, userID)
			continue
		}
		sess.Normalize()
	}
	s.sessions = sessions
	s.logger.Info("Loaded %d sessions from %s", len(sessions), s.path)
	return nil
}

// Get returns a private clone of the stored session. Callers mutate
// their clone freely and hand it back through Put; the store's own
// mapping is never aliased outside the mutex, so serializing it for a
// write cannot race another user's in-flight mutations.
func (s *store) Get(ctx context.Context, userID string) (*session.Session, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, false, fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		clone, err := cloneSession(sess)
		if err != nil {
			return nil, false, err
		}
		return clone, true, nil
	}
	sess := session.New()
	clone, err := cloneSession(sess)
	if err != nil {
		return nil, false, err
	}
	s.sessions[userID] = sess
	return clone, false, nil
}

func (s *store) Put(ctx context.Context, userID string, sess *session.Session) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	clone, err := cloneSession(sess)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID] = clone
	return s.writeSnapshot()
}

func (s *store) Snapshot(ctx context.Context) (map[string]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]*session.Session, len(s.sessions))
	for userID, sess := range s.sessions {
		clone, err := cloneSession(sess)
		if err != nil {
			return nil, err
		}
		copied[userID] = clone
	}
	return copied, nil
}

// writeSnapshot serializes the whole mapping and replaces the file via a
// temp-file rename, so a crash mid-write leaves the previous snapshot
// intact. Caller holds s.mu.
func (s *store) writeSnapshot() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func cloneSession(sess *session.Session) (*session.Session, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	var clone session.Session
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	return &clone, nil
}

func previewJSON(data []byte) string {
	const maxPreview = 512
	preview := strings.TrimSpace(string(data))
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\t", " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
