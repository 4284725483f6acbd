package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

const workerRegistryFile = "worker.json"

// FileRegistry implements domain.WorkerRegistry using a small JSON file.
// Writes are serialized with an advisory lock so two hosts sharing a
// state directory do not interleave.
type FileRegistry struct {
	path string
}

// NewFileRegistry creates a registry in dir (created on first write).
func NewFileRegistry(dir string) domain.WorkerRegistry {
	return &FileRegistry{path: filepath.Join(dir, workerRegistryFile)}
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string) domain.WorkerRegistry {
	return &FileRegistry{path: path}
}

// Path returns the registry file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Save records the worker, replacing any previous record.
func (r *FileRegistry) Save(rec domain.WorkerRecord) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create registry directory")
	}

	unlock, err := lockFile(r.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	return r.atomicWrite(&rec)
}

// Load returns the recorded worker, or nil when none is recorded.
func (r *FileRegistry) Load() (*domain.WorkerRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read worker registry")
	}

	var rec domain.WorkerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to parse worker registry")
	}
	if rec.PID == 0 {
		return nil, nil
	}
	return &rec, nil
}

// Clear removes the registry file. Clearing an empty registry is not an error.
func (r *FileRegistry) Clear() error {
	unlock, err := lockFile(r.path + ".lock")
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil
		}
		return err
	}
	defer unlock()

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove worker registry")
	}
	return nil
}

// atomicWrite writes the record to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(rec *domain.WorkerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode worker record")
	}

	// Unique per process to avoid racing another writer's temp file
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write worker registry")
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to replace worker registry")
	}
	return nil
}

// Ensure FileRegistry implements domain.WorkerRegistry.
var _ domain.WorkerRegistry = (*FileRegistry)(nil)
