package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/sitefactory/internal/fileutil"
)

// ErrNotFound is returned when a session id has no record on disk.
var ErrNotFound = errors.New("session not found")

// InterruptedError is recorded on a session found running at startup.
const InterruptedError = "interrupted: process exited while the session was running"

// Store manages session records under <home>/sessions and the checkpoint
// at <home>/checkpoint.json.
type Store struct {
	baseDir string
	now     func() time.Time
}

// NewStore creates a Store rooted at the state home directory.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// SessionsDir returns the directory holding one subdirectory per session.
func (s *Store) SessionsDir() string {
	return filepath.Join(s.baseDir, "sessions")
}

// SessionDir returns the directory for one session.
func (s *Store) SessionDir(id string) string {
	return filepath.Join(s.SessionsDir(), id)
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.SessionDir(id), "session.json")
}

// CheckpointPath returns the path of the latest-session snapshot.
func (s *Store) CheckpointPath() string {
	return filepath.Join(s.baseDir, "checkpoint.json")
}

// NewID returns a sortable session id.
func (s *Store) NewID() string {
	return "sess-" + s.now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// Create initialises a pending session and checkpoints it.
func (s *Store) Create(opts Options) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:            s.NewID(),
		TargetCount:   opts.WebsiteCount,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Config:        opts,
		Learnings:     []string{},
		QualityScores: nil,
		Attempts:      []AttemptSummary{},
	}
	if err := s.Save(sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Save stamps UpdatedAt and writes both the session record and the
// checkpoint. Both writes are attempted; the first error is returned.
func (s *Store) Save(sess *Session) error {
	sess.UpdatedAt = s.now().UTC()
	errRecord := fileutil.WriteJSON(s.sessionPath(sess.ID), sess)
	errCheckpoint := fileutil.WriteJSON(s.CheckpointPath(), sess)
	if errRecord != nil {
		return fmt.Errorf("write session.json: %w", errRecord)
	}
	if errCheckpoint != nil {
		return fmt.Errorf("write checkpoint: %w", errCheckpoint)
	}
	return nil
}

// Get reads the session record for id.
func (s *Store) Get(id string) (*Session, error) {
	var sess Session
	if err := fileutil.ReadJSON(s.sessionPath(id), &sess); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &sess, nil
}

// LoadCheckpoint returns the last checkpointed session, or nil if none exists.
func (s *Store) LoadCheckpoint() (*Session, error) {
	var sess Session
	if err := fileutil.ReadJSON(s.CheckpointPath(), &sess); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// RecoverInterrupted marks a checkpoint left running by a crash as failed
// and returns it. It returns nil when there is nothing to recover. A
// checkpoint that does not decode is moved aside so the next session starts
// clean; the returned error names where it went.
func (s *Store) RecoverInterrupted() (*Session, error) {
	sess, err := s.LoadCheckpoint()
	if errors.Is(err, fileutil.ErrCorrupt) {
		dst, qerr := fileutil.Quarantine(s.CheckpointPath())
		if qerr != nil {
			return nil, errors.Join(err, qerr)
		}
		return nil, fmt.Errorf("checkpoint moved to %s: %w", dst, err)
	}
	if err != nil || sess == nil || sess.Status != StatusRunning {
		return nil, err
	}
	sess.Status = StatusFailed
	sess.Error = InterruptedError
	sess.CompletedAt = s.now().UTC()
	if err := s.Save(sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// List returns all sessions, newest first, optionally filtered by status.
// Pass "" for statusFilter to return all sessions.
func (s *Store) List(statusFilter Status) ([]Session, error) {
	entries, err := os.ReadDir(s.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.SessionsDir(), err)
	}

	var sessions []Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		if statusFilter == "" || sess.Status == statusFilter {
			sessions = append(sessions, *sess)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}
