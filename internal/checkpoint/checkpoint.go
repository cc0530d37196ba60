// Package checkpoint records which backfill windows have completed every
// stage, so an interrupted backfill resumes where it stopped.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrLocked means another backfill holds the checkpoint.
var ErrLocked = errors.New("checkpoint is locked by another run")

const stateVersion = 1

// Window is a completed backfill window.
type Window struct {
	From        time.Time `yaml:"from" json:"from"`
	To          time.Time `yaml:"to" json:"to"`
	CompletedAt time.Time `yaml:"completed_at" json:"completed_at"`
	RunID       string    `yaml:"run_id" json:"run_id"`
}

// State is the on-disk checkpoint document.
type State struct {
	Version int      `yaml:"version"`
	Windows []Window `yaml:"windows"`
}

// Backend persists backfill progress and serializes backfill runs.
type Backend interface {
	// Lock takes the run lock. The returned func releases it. ErrLocked
	// means another live run holds it.
	Lock(ctx context.Context) (func() error, error)
	Load(ctx context.Context) (*State, error)
	MarkDone(ctx context.Context, from, to time.Time, runID string) error
	// Location names the checkpoint for operators.
	Location() string
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*RedisStore)(nil)
)

// Done reports whether [from, to) was completed.
func (s *State) Done(from, to time.Time) bool {
	for _, w := range s.Windows {
		if w.From.Equal(from) && w.To.Equal(to) {
			return true
		}
	}
	return false
}

// Store reads and writes the checkpoint file. Writes replace the file
// atomically, so a crash never leaves a torn checkpoint.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a Store for the checkpoint at path.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Location returns the checkpoint file path.
func (s *Store) Location() string { return s.path }

// Load reads the checkpoint. A missing file is an empty state.
func (s *Store) Load(_ context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &State{Version: stateVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", s.path, err)
	}
	if st.Version == 0 {
		st.Version = stateVersion
	}
	return &st, nil
}

// MarkDone records [from, to) as completed by runID.
func (s *Store) MarkDone(_ context.Context, from, to time.Time, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if st.Done(from, to) {
		return nil
	}
	st.Windows = append(st.Windows, completed(from, to, s.now(), runID))
	st.sort()
	return s.write(st)
}

func completed(from, to, now time.Time, runID string) Window {
	return Window{
		From:        from.UTC(),
		To:          to.UTC(),
		CompletedAt: now.UTC().Truncate(time.Second),
		RunID:       runID,
	}
}

func (s *State) sort() {
	sort.Slice(s.Windows, func(i, j int) bool { return s.Windows[i].From.Before(s.Windows[j].From) })
}

func (s *Store) write(st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

// Lock takes an OS lock on a file next to the checkpoint. The kernel drops
// the lock when the process exits, so a crashed run never blocks the next
// one. The lock file itself is left in place.
func (s *Store) Lock(_ context.Context) (func() error, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return fl.Unlock, nil
}
