package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"

	"reportjudge/internal/domain"
)

// FileStore keeps the checkpoint as one JSON object rewritten atomically on every mark.
type FileStore struct {
	path string

	mu    sync.Mutex
	state domain.Checkpoint
	ids   map[string]struct{}
	now   func() time.Time
}

func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	s := &FileStore{path: path, ids: make(map[string]struct{}), now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.state.ProcessedIDs = []string{}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	unique := make([]string, 0, len(s.state.ProcessedIDs))
	for _, id := range s.state.ProcessedIDs {
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		unique = append(unique, id)
	}
	s.state.ProcessedIDs = unique
	return s, nil
}

func (s *FileStore) Has(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *FileStore) MarkProcessed(_ context.Context, id string, index, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.ProcessedIDs = s.state.ProcessedIDs
	_, seen := s.ids[id]
	if !seen {
		next.ProcessedIDs = append(append([]string(nil), s.state.ProcessedIDs...), id)
	}
	next.CurrentIndex = index
	next.TotalFiles = total
	next.UpdatedAt = s.now().UTC()

	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next
	s.ids[id] = struct{}{}
	return nil
}

func (s *FileStore) Snapshot(context.Context) (domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.state
	cp.ProcessedIDs = append([]string{}, s.state.ProcessedIDs...)
	return cp, nil
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", s.path, err)
	}
	s.state = domain.Checkpoint{ProcessedIDs: []string{}}
	s.ids = make(map[string]struct{})
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) persist(cp domain.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", s.path, err)
	}
	return nil
}
