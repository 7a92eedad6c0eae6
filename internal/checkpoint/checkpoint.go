// Package checkpoint persists the last successfully processed position per
// data stream as one small JSON file per stream key. A missing or corrupt
// checkpoint degrades to the stream's default lookback; it is never fatal.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"polyflow/internal/pipeline/normalize"
	"polyflow/logger"
)

type state struct {
	Position string `json:"position"`
}

// Store reads and writes per-stream checkpoint files under a single
// directory. Each stream owns a distinct key, so independent streams can use
// the store concurrently without coordination.
type Store struct {
	dir string
	log *logger.Log
}

// NewStore ensures the checkpoint directory exists and is writable. An
// unwritable directory is an unrecoverable startup error.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("checkpoint dir not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Store{dir: dir, log: logger.GetLogger()}, nil
}

func (s *Store) path(stream string) string {
	return filepath.Join(s.dir, "checkpoint_"+stream+".json")
}

// LoadRaw returns the stored position string for the stream. The second
// return value is false when no usable checkpoint exists; read errors are
// logged and treated as absent.
func (s *Store) LoadRaw(stream string) (string, bool) {
	data, err := os.ReadFile(s.path(stream))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithComponent("checkpoint").WithError(err).WithFields(logger.Fields{
				"stream": stream,
			}).Warn("failed to read checkpoint; falling back to default lookback")
		}
		return "", false
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil || st.Position == "" {
		s.log.WithComponent("checkpoint").WithFields(logger.Fields{
			"stream": stream,
		}).Warn("corrupt checkpoint; falling back to default lookback")
		return "", false
	}
	return st.Position, true
}

// SaveRaw writes the position string for the stream atomically (temp file
// plus rename), so a crash mid-save leaves the previous checkpoint intact.
func (s *Store) SaveRaw(stream, position string) error {
	data, err := json.Marshal(state{Position: position})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "checkpoint_"+stream+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(stream)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored timestamp position for the stream.
func (s *Store) Load(stream string) (time.Time, bool) {
	raw, ok := s.LoadRaw(stream)
	if !ok {
		return time.Time{}, false
	}
	ts, ok := normalize.ParseTimestamp(raw)
	if !ok {
		s.log.WithComponent("checkpoint").WithFields(logger.Fields{
			"stream":   stream,
			"position": raw,
		}).Warn("unparseable checkpoint position; falling back to default lookback")
		return time.Time{}, false
	}
	return ts, true
}

// Save stores a timestamp position for the stream.
func (s *Store) Save(stream string, position time.Time) error {
	return s.SaveRaw(stream, normalize.FormatTimestamp(position))
}
