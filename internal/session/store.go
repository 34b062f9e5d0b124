package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hnrobert/rundird/internal/fsutil"
)

var ErrNoLease = errors.New("no lease recorded for session")

// Lease records one successful acquire awaiting its matching release.
type Lease struct {
	Key        string    `json:"key"` // e.g. "<user>:<pid-of-session-leader>" or a PAM session id
	UID        int       `json:"uid"`
	Dir        string    `json:"dir"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

type state struct {
	Leases []Lease `json:"leases,omitempty"`
}

// Store persists leases so the open and close helper invocations, which
// run as separate processes, can pair up.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Ensure creates the backing directory and an empty state file if missing.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.saveLocked(state{})
		}
		return err
	}
	return nil
}

func (s *Store) Put(l Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return err
	}
	// A repeated open for the same key replaces the stale record.
	out := st.Leases[:0]
	for _, have := range st.Leases {
		if have.Key != l.Key {
			out = append(out, have)
		}
	}
	st.Leases = append(out, l)
	return s.saveLocked(st)
}

// Get returns the lease for key without consuming it, so callers can
// validate the record before committing to the release.
func (s *Store) Get(key string) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return Lease{}, err
	}
	for _, l := range st.Leases {
		if l.Key == key {
			return l, nil
		}
	}
	return Lease{}, ErrNoLease
}

// Take removes and returns the lease for key. ErrNoLease means the
// matching acquire never succeeded and the close must be a no-op.
func (s *Store) Take(key string) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return Lease{}, err
	}
	found := -1
	for i, l := range st.Leases {
		if l.Key == key {
			found = i
			break
		}
	}
	if found < 0 {
		return Lease{}, ErrNoLease
	}
	l := st.Leases[found]
	st.Leases = append(st.Leases[:found], st.Leases[found+1:]...)
	if err := s.saveLocked(st); err != nil {
		return Lease{}, err
	}
	return l, nil
}

func (s *Store) List() ([]Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return st.Leases, nil
}

func (s *Store) loadLocked() (state, error) {
	b, err := fsutil.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state{}, nil
		}
		return state{}, err
	}
	if len(b) == 0 {
		return state{}, nil
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return state{}, err
	}
	return st, nil
}

func (s *Store) saveLocked(st state) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsutil.WriteFileAtomic(s.path, b, 0600)
}
