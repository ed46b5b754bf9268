package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore keeps one JSON document per session under a data directory.
// Each append is a read-modify-write of the whole document, so all access to
// a session's file is serialized through a per-session lock; without it two
// concurrent turns for the same session could both read the log before either
// writes and one append would be lost.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	lastTimestamp time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sessionLock),
	}, nil
}

func (s *FileStore) lockFor(sessionID string) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *FileStore) Append(_ context.Context, turn Turn) error {
	l := s.lockFor(turn.SessionID)
	l.Lock()
	defer l.Unlock()

	turns, err := s.readLocked(turn.SessionID)
	if err != nil {
		return err
	}

	// Timestamps are the sole ordering key, so clamp them non-decreasing
	// per session even if the wall clock steps backwards.
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if turn.Timestamp.Before(l.lastTimestamp) {
		turn.Timestamp = l.lastTimestamp
	}
	l.lastTimestamp = turn.Timestamp

	turns = append(turns, turn)

	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	path := s.path(turn.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}

func (s *FileStore) LoadAll(_ context.Context, sessionID string) ([]Turn, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()
	return s.readLocked(sessionID)
}

func (s *FileStore) LoadTail(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	turns, err := s.LoadAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *FileStore) Count(ctx context.Context, sessionID string) (int, error) {
	turns, err := s.LoadAll(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(turns), nil
}

func (s *FileStore) Close() error { return nil }

// readLocked loads and sorts a session document. Callers must hold the
// session lock. sort.SliceStable keeps insertion order for equal timestamps.
func (s *FileStore) readLocked(sessionID string) ([]Turn, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Turn{}, nil
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", sessionID, err)
	}

	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	return turns, nil
}
