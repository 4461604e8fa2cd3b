package filemanager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const maxQuotaSize = 100 * 1024 * 1024 * 1024 // 100GB default quota

// partialSuffix ends the hidden name of a file still being assembled
const partialSuffix = ".partial"

// Custom errors
var (
	ErrInvalidAccess = errors.New("directory access denied")
	ErrFileNotFound  = errors.New("file not found")
	ErrInvalidName   = errors.New("invalid file name")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// FileInfo describes one shared file
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Manager serves the files of the node's shared directory
type Manager struct {
	baseDir   string
	quotaSize int64
	mu        sync.RWMutex
}

// NewManager creates a Manager for baseDir
func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:   baseDir,
		quotaSize: maxQuotaSize,
	}
}

// Dir returns the shared directory
func (m *Manager) Dir() string {
	return m.baseDir
}

// SetQuota sets the storage quota size in bytes
func (m *Manager) SetQuota(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaSize = size
}

// VerifyAccess checks that the shared directory exists, is a directory and can
// be read. With writeRequired it also checks that files can be created.
func (m *Manager) VerifyAccess(writeRequired bool) error {
	info, err := os.Stat(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory %s does not exist", m.baseDir)
		}
		return ErrInvalidAccess
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", m.baseDir)
	}

	if _, err := os.ReadDir(m.baseDir); err != nil {
		return ErrInvalidAccess
	}

	if writeRequired {
		probe, err := os.CreateTemp(m.baseDir, ".probe-*")
		if err != nil {
			return ErrInvalidAccess
		}
		probe.Close()
		os.Remove(probe.Name())
	}

	return nil
}

// List returns the regular files of the shared directory sorted by name.
// Names that cannot travel in a protocol token are left out.
func (m *Manager) List() ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", m.baseDir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !Shareable(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Stat returns the size of a shared file
func (m *Manager) Stat(name string) (FileInfo, error) {
	path, err := m.path(name)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return FileInfo{Name: name, Size: info.Size()}, nil
}

// ReadChunk reads up to chunkSize bytes of name at offset index*chunkSize.
// A chunk past the end of the file is empty.
func (m *Manager) ReadChunk(name string, chunkSize, index int) ([]byte, error) {
	if chunkSize <= 0 || index < 0 {
		return nil, fmt.Errorf("invalid chunk %d of size %d", index, chunkSize)
	}
	path, err := m.path(name)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, ErrInvalidAccess
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	n, err := f.ReadAt(buf, int64(index)*int64(chunkSize))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return buf[:n], nil
}

// CreatePartial opens the partial file that receives name while it is
// being assembled, truncated to size bytes. The partial file is hidden so it
// is never listed or served. The quota is checked against the current usage
// of the directory, not counting the files this download replaces.
func (m *Manager) CreatePartial(name string, size int64) (*os.File, error) {
	final, err := m.path(name)
	if err != nil {
		return nil, err
	}
	partial := m.partialPath(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	usage, err := m.diskUsageNoLock()
	if err != nil {
		return nil, fmt.Errorf("failed to check disk usage: %w", err)
	}
	usage -= fileSize(final) + fileSize(partial)
	if usage+size > m.quotaSize {
		return nil, fmt.Errorf("%w: would exceed %d bytes", ErrQuotaExceeded, m.quotaSize)
	}

	f, err := os.OpenFile(partial, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size %s: %w", name, err)
	}
	return f, nil
}

// Commit moves the partial file of name to its final place, where it is
// shared from then on
func (m *Manager) Commit(name string) (string, error) {
	final, err := m.path(name)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Rename(m.partialPath(name), final); err != nil {
		return "", fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return final, nil
}

// PartialPath returns the location of the partial file of name
func (m *Manager) PartialPath(name string) (string, error) {
	if _, err := m.path(name); err != nil {
		return "", err
	}
	return m.partialPath(name), nil
}

func (m *Manager) partialPath(name string) string {
	return filepath.Join(m.baseDir, "."+name+partialSuffix)
}

// Path returns the location of name inside the shared directory
func (m *Manager) Path(name string) (string, error) {
	return m.path(name)
}

func (m *Manager) path(name string) (string, error) {
	if !Shareable(name) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(m.baseDir, name), nil
}

// diskUsageNoLock returns the total size of the shared files without locking
func (m *Manager) diskUsageNoLock() (int64, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Shareable reports whether name can be listed and requested over the wire.
// Hidden files, partial downloads among them, are not shared.
func Shareable(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n/\\")
}
