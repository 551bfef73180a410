// Package artifact stores one JSON result file per evaluated report.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"

	"reportjudge/internal/domain"
)

const filePerm = 0o644

type Store struct {
	dir string
}

// Open creates dir if needed and checks that it accepts new files.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// checkWritable creates and removes a scratch file in the output directory.
func (s *Store) checkWritable() error {
	f, err := os.CreateTemp(s.dir, ".wcheck-*")
	if err != nil {
		return fmt.Errorf("output dir %s is not writable: %w", s.dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// Write replaces <dir>/<id>.json with rec. Readers see either the old file or the new one.
func (s *Store) Write(id string, rec domain.EvaluationRecord) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("encode artifact %s: %w", id, err)
	}
	path := s.Path(id)
	if err := atomicwriter.WriteFile(path, buf.Bytes(), filePerm); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}

// Exists reports whether an artifact for id is already on disk.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}
