package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage persists evidence documents on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./evidence"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes to the provided relative path under the base dir.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write stored file: %w", err)
	}
	return filename, nil
}

// SaveStream copies from reader into the target file path.
func (s *LocalStorage) SaveStream(filename string, r io.Reader) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create stored file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write stored stream: %w", err)
	}
	return filename, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	path := s.resolve(filename)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	path := s.resolve(filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// ModTime reports the stored file's last modification time.
func (s *LocalStorage) ModTime(filename string) (time.Time, error) {
	info, err := os.Stat(s.resolve(filename))
	if err != nil {
		return time.Time{}, fmt.Errorf("stat stored file: %w", err)
	}
	return info.ModTime(), nil
}

func (s *LocalStorage) resolve(filename string) string {
	return filepath.Join(s.baseDir, filepath.Clean("/"+filename))
}
