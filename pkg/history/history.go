package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultFileName = ".bridge-aggregator-history.json"
)

// Attempt is one execution attempt of a bridge quote, including any approval
// sub-cycle it went through
type Attempt struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	FromToken      string    `json:"from_token"`
	ToToken        string    `json:"to_token"`
	FromAmount     string    `json:"from_amount"`
	ExpectedOutput string    `json:"expected_output"`
	Recipient      string    `json:"recipient"`
	Status         string    `json:"status"`
	TxHash         string    `json:"tx_hash,omitempty"`
	ApprovalHash   string    `json:"approval_hash,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewID returns a fresh attempt id
func NewID() string {
	return uuid.New().String()
}

// Store persists attempts as a JSON file
type Store struct {
	filePath string
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

type fileFormat struct {
	Attempts map[string]*Attempt `json:"attempts"`
}

// NewStore opens the history at filePath, defaulting to the home directory.
// A missing file is created on first write.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get home directory")
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{
		filePath: filePath,
		attempts: make(map[string]*Attempt),
	}

	if err := s.load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "failed to load history")
	}

	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "failed to unmarshal history")
	}

	s.attempts = f.Attempts
	if s.attempts == nil {
		s.attempts = make(map[string]*Attempt)
	}
	return nil
}

// saveLocked writes the file; callers hold s.mu
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Attempts: s.attempts}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	// write then rename so a crash never leaves a truncated file
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write history")
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}
	return nil
}

// Record inserts or replaces the attempt with the same id
func (s *Store) Record(a Attempt) error {
	if a.ID == "" {
		return errors.New("attempt id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.attempts[a.ID]; ok && a.CreatedAt.IsZero() {
		a.CreatedAt = existing.CreatedAt
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	s.attempts[a.ID] = &a
	return s.saveLocked()
}

func (s *Store) Get(id string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, errors.Errorf("attempt '%s' not found", id)
	}
	cp := *a
	return &cp, nil
}

// List returns all attempts, newest first
func (s *Store) List() []Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

func (s *Store) FilePath() string {
	return s.filePath
}
